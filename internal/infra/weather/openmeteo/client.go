package openmeteo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	apperrors "github.com/yanqian/cycleroute/pkg/errors"
	"github.com/yanqian/cycleroute/pkg/metrics"
	"github.com/yanqian/cycleroute/pkg/resilience"
	"github.com/yanqian/cycleroute/pkg/util"
)

const (
	defaultBaseURL     = "https://api.open-meteo.com/v1/forecast"
	defaultSampleCount = 5
	hourLayout         = "2006-01-02T15:04"
	hourlyVariables    = "temperature_2m,wind_speed_10m,wind_direction_10m,precipitation_probability,weather_code"
)

// Config configures the Open-Meteo forecast client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	SampleCount int
}

// Client fetches hourly forecasts from Open-Meteo. No API key is needed.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *slog.Logger
}

// NewClient builds a forecast client. breaker may be nil.
func NewClient(cfg Config, breaker *resilience.Breaker, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = defaultSampleCount
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger.With("component", "weather.openmeteo"),
	}
}

// RouteForecast samples the route evenly and returns one forecast per
// sample, taken at the rider's estimated arrival time. All samples share a
// single batched request.
func (c *Client) RouteForecast(ctx context.Context, locations []planner.Location, start time.Time, durationHours float64) ([]planner.WeatherForecast, error) {
	if len(locations) == 0 {
		return []planner.WeatherForecast{}, nil
	}
	start = start.UTC()
	indices := planner.SampleIndices(len(locations), c.cfg.SampleCount)
	sampled := make([]planner.Location, len(indices))
	arrivals := make([]time.Time, len(indices))
	for i, idx := range indices {
		sampled[i] = locations[idx]
		arrivals[i] = start
		if len(indices) > 1 {
			offset := durationHours * float64(i) / float64(len(indices)-1)
			arrivals[i] = start.Add(time.Duration(offset * float64(time.Hour)))
		}
	}

	from := util.HourFloor(start)
	to := util.HourFloor(arrivals[len(arrivals)-1]).Add(time.Hour)
	series, err := c.fetch(ctx, sampled, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]planner.WeatherForecast, 0, len(series))
	for i, s := range series {
		forecast, ok := s.nearest(arrivals[i])
		if !ok {
			return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable, "open-meteo returned no hourly data", nil)
		}
		out = append(out, forecast)
	}
	return out, nil
}

// Forecast returns every hourly slot in [start, start+hours] for one place.
func (c *Client) Forecast(ctx context.Context, location planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error) {
	start = start.UTC()
	end := start.Add(time.Duration(hours) * time.Hour)
	series, err := c.fetch(ctx, []planner.Location{location}, util.HourFloor(start), end)
	if err != nil {
		return nil, err
	}
	return series[0].between(start, end), nil
}

func (c *Client) fetch(ctx context.Context, locations []planner.Location, from, to time.Time) ([]hourlySeries, error) {
	series, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]hourlySeries, error) {
		return c.doFetch(ctx, locations, from, to)
	})
	metrics.RecordUpstream("open_meteo_forecast", err)
	if err != nil {
		if apperrors.IsCode(err, planner.CodeUpstreamUnavailable) {
			return nil, err
		}
		return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable, "weather provider unavailable", err)
	}
	return series, nil
}

func (c *Client) doFetch(ctx context.Context, locations []planner.Location, from, to time.Time) ([]hourlySeries, error) {
	lats := make([]string, len(locations))
	lngs := make([]string, len(locations))
	for i, loc := range locations {
		lats[i] = strconv.FormatFloat(loc.Lat, 'f', -1, 64)
		lngs[i] = strconv.FormatFloat(loc.Lng, 'f', -1, 64)
	}
	params := url.Values{}
	params.Set("latitude", strings.Join(lats, ","))
	params.Set("longitude", strings.Join(lngs, ","))
	params.Set("hourly", hourlyVariables)
	params.Set("wind_speed_unit", "ms")
	params.Set("timezone", "UTC")
	params.Set("start_hour", from.UTC().Format(hourLayout))
	params.Set("end_hour", to.UTC().Format(hourLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read forecast response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("forecast request error: status=%d body=%s", resp.StatusCode, truncate(body))
	}

	var payloads []forecastPayload
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &payloads)
	} else {
		var single forecastPayload
		err = json.Unmarshal(body, &single)
		payloads = []forecastPayload{single}
	}
	if err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}
	if len(payloads) != len(locations) {
		return nil, fmt.Errorf("forecast response has %d locations, want %d", len(payloads), len(locations))
	}

	out := make([]hourlySeries, len(payloads))
	for i, p := range payloads {
		series, err := p.Hourly.series()
		if err != nil {
			return nil, err
		}
		out[i] = series
	}
	return out, nil
}

type forecastPayload struct {
	Hourly hourlyPayload `json:"hourly"`
}

type hourlyPayload struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	WindSpeed                []*float64 `json:"wind_speed_10m"`
	WindDirection            []*float64 `json:"wind_direction_10m"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	WeatherCode              []*float64 `json:"weather_code"`
}

type hourlySeries []planner.WeatherForecast

// series converts the columnar payload. Missing or null values read as 0.
func (h hourlyPayload) series() (hourlySeries, error) {
	out := make(hourlySeries, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, err := time.ParseInLocation(hourLayout, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse forecast time %q: %w", raw, err)
		}
		code := int(valueAt(h.WeatherCode, i))
		out = append(out, planner.WeatherForecast{
			Time:                     ts,
			Temperature:              valueAt(h.Temperature, i),
			WindSpeed:                math.Max(valueAt(h.WindSpeed, i), 0),
			WindDirection:            valueAt(h.WindDirection, i),
			PrecipitationProbability: valueAt(h.PrecipitationProbability, i),
			WeatherCode:              code,
			Description:              Describe(code),
		})
	}
	return out, nil
}

func (s hourlySeries) nearest(at time.Time) (planner.WeatherForecast, bool) {
	if len(s) == 0 {
		return planner.WeatherForecast{}, false
	}
	best := 0
	bestDiff := absDuration(s[0].Time.Sub(at))
	for i := 1; i < len(s); i++ {
		if d := absDuration(s[i].Time.Sub(at)); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return s[best], true
}

func (s hourlySeries) between(start, end time.Time) []planner.WeatherForecast {
	out := make([]planner.WeatherForecast, 0, len(s))
	for _, f := range s {
		if f.Time.Before(start) || f.Time.After(end) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func truncate(body []byte) string {
	if len(body) > 4<<10 {
		body = body[:4<<10]
	}
	return string(body)
}

var _ planner.WeatherClient = (*Client)(nil)
