package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// Subjects published by the planner.
const (
	SubjectPlanCompleted = "plans.completed"
)

// Event is the envelope for every published message.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an event with a unique ID and the current timestamp.
func NewEvent(eventType, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// PlanCompletedData summarizes a finished plan for downstream consumers.
type PlanCompletedData struct {
	PlanID              string    `json:"plan_id"`
	Origin              string    `json:"origin"`
	Destination         string    `json:"destination"`
	Difficulty          string    `json:"difficulty"`
	TotalDistanceKm     float64   `json:"total_distance_km"`
	TotalElevationGainM float64   `json:"total_elevation_gain_m"`
	TotalDurationMin    int       `json:"total_duration_min"`
	RiskScore           float64   `json:"risk_score"`
	Warnings            int       `json:"warnings"`
	Narrated            bool      `json:"narrated"`
	WeatherDegraded     bool      `json:"weather_degraded"`
	ElevationDegraded   bool      `json:"elevation_degraded"`
	DepartureTime       time.Time `json:"departure_time"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewPlanCompletedData projects a plan onto the event payload.
func NewPlanCompletedData(plan planner.RoutePlan) PlanCompletedData {
	return PlanCompletedData{
		PlanID:              plan.ID,
		Origin:              plan.Origin.Label(),
		Destination:         plan.Destination.Label(),
		Difficulty:          string(plan.Preferences.Difficulty),
		TotalDistanceKm:     plan.TotalDistanceKm,
		TotalElevationGainM: plan.TotalElevationGainM,
		TotalDurationMin:    plan.TotalDurationMin,
		RiskScore:           plan.RiskScore,
		Warnings:            len(plan.Warnings),
		Narrated:            plan.LLMAnalysis != "",
		WeatherDegraded:     plan.WeatherDegraded,
		ElevationDegraded:   plan.ElevationDegraded,
		DepartureTime:       plan.DepartureTime,
		CreatedAt:           plan.CreatedAt,
	}
}
