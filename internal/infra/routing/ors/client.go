package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	defaultBaseURL         = "https://api.openrouteservice.org"
	defaultSegmentTargetKm = 10.0
	defaultCountry         = "JP"
	maxGeocodeResults      = 5
)

// ORS error codes meaning the request was understood but no route exists.
var routeNotFoundCodes = map[int]struct{}{
	2004: {}, // route distance limit exceeded
	2009: {}, // route could not be found
	2010: {}, // point not routable
}

// Config configures the OpenRouteService client.
type Config struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	SegmentTargetKm float64
	DefaultProfile  string
	DefaultCountry  string
}

// Client calls the OpenRouteService directions and geocoding APIs.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *slog.Logger
}

// NewClient builds an ORS client. breaker may be nil.
func NewClient(cfg Config, breaker *resilience.Breaker, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openrouteservice api key cannot be empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SegmentTargetKm <= 0 {
		cfg.SegmentTargetKm = defaultSegmentTargetKm
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = "cycling-regular"
	}
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = defaultCountry
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger.With("component", "routing.ors"),
	}, nil
}

// IsRouteNotFound reports errors that must not count against the breaker.
func IsRouteNotFound(err error) bool {
	return apperrors.IsCode(err, planner.CodeConstraintUnsatisfiable)
}

// GenerateRoute requests a cycling route and splits it into segments.
func (c *Client) GenerateRoute(ctx context.Context, origin, destination planner.Location, prefs planner.RoutePreferences) ([]planner.RouteSegment, error) {
	profile := c.profileFor(prefs.Difficulty)
	body := directionsRequest{
		Coordinates:  [][2]float64{{origin.Lng, origin.Lat}, {destination.Lng, destination.Lat}},
		Preference:   preferenceFor(prefs),
		Elevation:    true,
		Instructions: true,
		ExtraInfo:    []string{"surface"},
	}

	resp, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (directionsResponse, error) {
		return c.postDirections(ctx, profile, body)
	})
	metrics.RecordUpstream("ors_directions", err)
	if err != nil {
		return nil, err
	}

	segments, err := buildSegments(resp, prefs, c.cfg.SegmentTargetKm)
	if err != nil {
		return nil, err
	}
	if err := planner.CheckMaxDistance(prefs, planner.SummarizeRouteStats(segments).TotalDistanceKm); err != nil {
		return nil, err
	}
	c.logger.Debug("route generated", "profile", profile, "preference", body.Preference, "segments", len(segments))
	return segments, nil
}

func (c *Client) postDirections(ctx context.Context, profile string, body directionsRequest) (directionsResponse, error) {
	var out directionsResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("encode directions request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/directions/%s/geojson", c.cfg.BaseURL, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("build directions request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, apperrors.Wrap(planner.CodeUpstreamUnavailable, "failed to connect to openrouteservice", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return out, classifyError(resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, apperrors.Wrap(planner.CodeUpstreamUnavailable, "decode openrouteservice response", err)
	}
	return out, nil
}

func classifyError(status int, raw []byte) error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != 0 {
		if _, ok := routeNotFoundCodes[body.Error.Code]; ok {
			msg := strings.TrimSpace(body.Error.Message)
			if msg == "" {
				msg = "no route found between the requested points"
			}
			return apperrors.Wrap(planner.CodeConstraintUnsatisfiable, msg, nil)
		}
	}
	return apperrors.Wrap(
		planner.CodeUpstreamUnavailable,
		"openrouteservice request failed",
		fmt.Errorf("status=%d body=%s", status, string(raw)),
	)
}

func (c *Client) profileFor(difficulty planner.Difficulty) string {
	if difficulty == planner.DifficultyHard {
		return "cycling-road"
	}
	return c.cfg.DefaultProfile
}

// preferenceFor maps rider preferences onto the ORS weighting. ORS has no
// traffic avoidance for cycling profiles, so avoid_traffic selects the
// bike-friendly "recommended" weighting.
func preferenceFor(prefs planner.RoutePreferences) string {
	switch {
	case prefs.PreferScenic, prefs.AvoidTraffic:
		return "recommended"
	case prefs.Difficulty == planner.DifficultyEasy:
		return "shortest"
	default:
		return "fastest"
	}
}

// Geocode resolves a place name to at most five candidate locations.
func (c *Client) Geocode(ctx context.Context, query, country string) ([]planner.GeocodeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Wrap(planner.CodeInvalidInput, "query cannot be empty", nil)
	}
	if country == "" {
		country = c.cfg.DefaultCountry
	}

	results, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]planner.GeocodeResult, error) {
		return c.search(ctx, query, country)
	})
	metrics.RecordUpstream("ors_geocode", err)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, apperrors.Wrap(planner.CodeNotFound, "no results found for the given query", nil)
	}
	return results, nil
}

func (c *Client) search(ctx context.Context, query, country string) ([]planner.GeocodeResult, error) {
	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("text", query)
	params.Set("boundary.country", country)
	params.Set("size", strconv.Itoa(maxGeocodeResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/geocode/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("geocode request error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	out := make([]planner.GeocodeResult, 0, len(body.Features))
	for _, f := range body.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		name := f.Properties.Label
		if name == "" {
			name = f.Properties.Name
		}
		if name == "" {
			name = "Unknown"
		}
		out = append(out, planner.GeocodeResult{
			Name:    name,
			Lat:     f.Geometry.Coordinates[1],
			Lng:     f.Geometry.Coordinates[0],
			Country: f.Properties.CountryCode,
			Region:  f.Properties.Region,
		})
		if len(out) == maxGeocodeResults {
			break
		}
	}
	return out, nil
}

type directionsRequest struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Preference   string       `json:"preference"`
	Elevation    bool         `json:"elevation"`
	Instructions bool         `json:"instructions"`
	ExtraInfo    []string     `json:"extra_info,omitempty"`
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties routeProperties `json:"properties"`
	} `json:"features"`
}

type routeProperties struct {
	Segments []orsSegment `json:"segments"`
	Summary  struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"summary"`
	Ascent  float64              `json:"ascent"`
	Descent float64              `json:"descent"`
	Extras  map[string]extraInfo `json:"extras"`
}

type orsSegment struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Ascent   float64   `json:"ascent"`
	Descent  float64   `json:"descent"`
	Steps    []orsStep `json:"steps"`
}

type orsStep struct {
	Distance  float64 `json:"distance"`
	Duration  float64 `json:"duration"`
	WayPoints []int   `json:"way_points"`
}

// extraInfo values are [fromWayPoint, toWayPoint, code] triples.
type extraInfo struct {
	Values [][]float64 `json:"values"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label       string `json:"label"`
			Name        string `json:"name"`
			CountryCode string `json:"country_a"`
			Region      string `json:"region"`
		} `json:"properties"`
	} `json:"features"`
}

var (
	_ planner.RoutingClient = (*Client)(nil)
	_ planner.Geocoder      = (*Client)(nil)
)
