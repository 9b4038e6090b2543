package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	apperrors "github.com/yanqian/cycleroute/pkg/errors"
	"github.com/yanqian/cycleroute/pkg/metrics"
	"github.com/yanqian/cycleroute/pkg/resilience"
)

const (
	defaultBaseURL   = "https://api.open-meteo.com/v1/elevation"
	defaultMaxPoints = 100
)

// Config configures the Open-Meteo elevation client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	MaxPoints int
}

// Client looks up terrain elevation for route coordinates.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *slog.Logger
}

// NewClient builds an elevation client. breaker may be nil.
func NewClient(cfg Config, breaker *resilience.Breaker, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxPoints <= 1 {
		cfg.MaxPoints = defaultMaxPoints
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger.With("component", "elevation.openmeteo"),
	}
}

// Profile returns one elevation per coordinate, in input order. Long routes
// are sampled down to MaxPoints and linearly interpolated back.
func (c *Client) Profile(ctx context.Context, coords []planner.Coordinate) ([]float64, error) {
	if len(coords) == 0 {
		return []float64{}, nil
	}
	indices := planner.SampleIndices(len(coords), c.cfg.MaxPoints)
	sampled := make([]planner.Coordinate, len(indices))
	for i, idx := range indices {
		sampled[i] = coords[idx]
	}

	values, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]float64, error) {
		return c.fetch(ctx, sampled)
	})
	metrics.RecordUpstream("open_meteo_elevation", err)
	if err != nil {
		return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable, "elevation provider unavailable", err)
	}
	if len(values) != len(sampled) {
		return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable,
			fmt.Sprintf("elevation response has %d values, want %d", len(values), len(sampled)), nil)
	}
	if len(sampled) == len(coords) {
		return values, nil
	}
	c.logger.Debug("elevation sampled", "points", len(coords), "samples", len(sampled))
	return planner.InterpolateSamples(indices, values, len(coords)), nil
}

func (c *Client) fetch(ctx context.Context, coords []planner.Coordinate) ([]float64, error) {
	lats := make([]string, len(coords))
	lngs := make([]string, len(coords))
	for i, coord := range coords {
		lats[i] = strconv.FormatFloat(coord.Lat(), 'f', -1, 64)
		lngs[i] = strconv.FormatFloat(coord.Lng(), 'f', -1, 64)
	}
	params := url.Values{}
	params.Set("latitude", strings.Join(lats, ","))
	params.Set("longitude", strings.Join(lngs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build elevation request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("elevation request error: status=%d body=%s", resp.StatusCode, string(payload))
	}

	var body struct {
		Elevation []float64 `json:"elevation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode elevation response: %w", err)
	}
	if len(body.Elevation) == 0 {
		return nil, fmt.Errorf("no elevation data in response")
	}
	return body.Elevation, nil
}

var _ planner.ElevationService = (*Client)(nil)
