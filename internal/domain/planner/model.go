package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yanqian/cycleroute/pkg/metrics"
)

// Difficulty is the rider's requested route difficulty.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
)

// SurfaceType classifies the road surface of a segment.
type SurfaceType string

const (
	SurfacePaved  SurfaceType = "paved"
	SurfaceGravel SurfaceType = "gravel"
	SurfaceDirt   SurfaceType = "dirt"
)

// Location is a point on the map with an optional display name.
type Location struct {
	Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `json:"lng" validate:"gte=-180,lte=180"`
	Name string  `json:"name,omitempty"`
}

// Label returns the display name, or the coordinates when unnamed.
func (l Location) Label() string {
	if name := strings.TrimSpace(l.Name); name != "" {
		return name
	}
	return fmt.Sprintf("%.4f, %.4f", l.Lat, l.Lng)
}

// Coordinate is a [lat, lng] pair.
type Coordinate [2]float64

// NewCoordinate builds a coordinate from latitude and longitude.
func NewCoordinate(lat, lng float64) Coordinate {
	return Coordinate{lat, lng}
}

func (c Coordinate) Lat() float64 { return c[0] }
func (c Coordinate) Lng() float64 { return c[1] }

// Location converts the coordinate to an unnamed Location.
func (c Coordinate) Location() Location {
	return Location{Lat: c[0], Lng: c[1]}
}

// RoutePreferences are supplied once per request and never mutated.
type RoutePreferences struct {
	Difficulty        Difficulty `json:"difficulty" validate:"required,oneof=easy moderate hard"`
	AvoidTraffic      bool       `json:"avoid_traffic"`
	PreferScenic      bool       `json:"prefer_scenic"`
	MaxDistanceKm     *float64   `json:"max_distance_km,omitempty" validate:"omitempty,gt=0"`
	MaxElevationGainM *float64   `json:"max_elevation_gain_m,omitempty" validate:"omitempty,gte=0"`
}

// RouteSegment is a contiguous portion of the route.
type RouteSegment struct {
	Coordinates          []Coordinate `json:"coordinates"`
	Elevations           []float64    `json:"elevations,omitempty"`
	DistanceKm           float64      `json:"distance_km"`
	ElevationGainM       float64      `json:"elevation_gain_m"`
	ElevationLossM       float64      `json:"elevation_loss_m"`
	EstimatedDurationMin int          `json:"estimated_duration_min"`
	SurfaceType          SurfaceType  `json:"surface_type"`
}

// WeatherForecast is one forecast sample for a place and hour.
type WeatherForecast struct {
	Time                     time.Time `json:"time"`
	Temperature              float64   `json:"temperature"`
	WindSpeed                float64   `json:"wind_speed"`
	WindDirection            float64   `json:"wind_direction"`
	PrecipitationProbability float64   `json:"precipitation_probability"`
	WeatherCode              int       `json:"weather_code"`
	Description              string    `json:"description"`
}

// RouteStats aggregates segment metadata.
type RouteStats struct {
	TotalDistanceKm     float64                 `json:"total_distance_km"`
	TotalElevationGainM float64                 `json:"total_elevation_gain_m"`
	TotalElevationLossM float64                 `json:"total_elevation_loss_m"`
	TotalDurationMin    int                     `json:"total_duration_min"`
	NumSegments         int                     `json:"num_segments"`
	SurfaceDistribution map[SurfaceType]float64 `json:"surface_distribution"`
}

// RiskAssessment is the deterministic hazard summary of a route.
type RiskAssessment struct {
	Warnings        []string `json:"warnings"`
	RecommendedGear []string `json:"recommended_gear"`
	RiskScore       float64  `json:"risk_score"`
}

// RoutePlan is the assembled result of one planning request.
type RoutePlan struct {
	ID                  string             `json:"id"`
	Origin              Location           `json:"origin"`
	Destination         Location           `json:"destination"`
	Preferences         RoutePreferences   `json:"preferences"`
	DepartureTime       time.Time          `json:"departure_time"`
	Segments            []RouteSegment     `json:"segments"`
	TotalDistanceKm     float64            `json:"total_distance_km"`
	TotalElevationGainM float64            `json:"total_elevation_gain_m"`
	TotalDurationMin    int                `json:"total_duration_min"`
	WeatherForecasts    []WeatherForecast  `json:"weather_forecasts"`
	ElevationProfile    []float64          `json:"elevation_profile,omitempty"`
	LLMAnalysis         string             `json:"llm_analysis"`
	Warnings            []string           `json:"warnings"`
	RecommendedGear     []string           `json:"recommended_gear"`
	RiskScore           float64            `json:"risk_score"`
	WeatherDegraded     bool               `json:"weather_degraded"`
	ElevationDegraded   bool               `json:"elevation_degraded"`
	TokenUsage          metrics.TokenUsage `json:"token_usage"`
	CreatedAt           time.Time          `json:"created_at"`
}

// newRoutePlan is the only place plan totals are assigned.
func newRoutePlan(id string, req PlanRequest, segments []RouteSegment, createdAt time.Time) RoutePlan {
	stats := SummarizeRouteStats(segments)
	return RoutePlan{
		ID:                  id,
		Origin:              req.Origin,
		Destination:         req.Destination,
		Preferences:         req.Preferences,
		DepartureTime:       req.DepartureTime.Time,
		Segments:            segments,
		TotalDistanceKm:     stats.TotalDistanceKm,
		TotalElevationGainM: stats.TotalElevationGainM,
		TotalDurationMin:    stats.TotalDurationMin,
		WeatherForecasts:    []WeatherForecast{},
		Warnings:            []string{},
		RecommendedGear:     []string{},
		CreatedAt:           createdAt,
	}
}

// Timestamp accepts RFC 3339 or a zone-less local time interpreted as UTC.
type Timestamp struct {
	time.Time
}

const naiveLayout = "2006-01-02T15:04:05"

// ParseTimestamp parses the request time formats.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Timestamp{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return Timestamp{Time: ts}, nil
	}
	for _, layout := range []string{naiveLayout, "2006-01-02T15:04", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return Timestamp{Time: ts}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized time %q", value)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("departure time must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// PlanRequest is the input of one planning request.
type PlanRequest struct {
	Origin        Location         `json:"origin"`
	Destination   Location         `json:"destination"`
	Preferences   RoutePreferences `json:"preferences"`
	DepartureTime Timestamp        `json:"departure_time"`
}

// EventType names an output unit of the plan stream.
type EventType string

const (
	EventRouteData EventType = "route_data"
	EventWeather   EventType = "weather"
	EventToken     EventType = "token"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one ordered output unit of Plan.
type Event struct {
	Type EventType
	Data any
}

// RouteData is the payload of the route_data unit.
type RouteData struct {
	Segments            []RouteSegment `json:"segments"`
	TotalDistanceKm     float64        `json:"total_distance_km"`
	TotalElevationGainM float64        `json:"total_elevation_gain_m"`
	TotalDurationMin    int            `json:"total_duration_min"`
}

// DonePayload is the payload of the done unit.
type DonePayload struct {
	Status          string   `json:"status"`
	PlanID          string   `json:"plan_id"`
	RiskScore       float64  `json:"risk_score"`
	Warnings        []string `json:"warnings"`
	RecommendedGear []string `json:"recommended_gear"`
}

// ErrorPayload is the payload of the error unit.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GeocodeResult is one candidate returned by a geocoder.
type GeocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Country string  `json:"country,omitempty"`
	Region  string  `json:"region,omitempty"`
}

// Prompt is the narrative engine input.
type Prompt struct {
	System string
	User   string
}
