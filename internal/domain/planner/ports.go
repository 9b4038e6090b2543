package planner

import (
	"context"
	"time"
)

// RoutingClient fetches a path between two points.
type RoutingClient interface {
	GenerateRoute(ctx context.Context, origin, destination Location, prefs RoutePreferences) ([]RouteSegment, error)
}

// WeatherClient fetches forecast samples.
type WeatherClient interface {
	// RouteForecast returns one forecast per sampled location along the route.
	RouteForecast(ctx context.Context, locations []Location, start time.Time, durationHours float64) ([]WeatherForecast, error)
	Forecast(ctx context.Context, location Location, start time.Time, hours int) ([]WeatherForecast, error)
}

// ElevationService returns one height per input coordinate, in order.
type ElevationService interface {
	Profile(ctx context.Context, coordinates []Coordinate) ([]float64, error)
}

// Geocoder resolves free text into candidate locations.
type Geocoder interface {
	Geocode(ctx context.Context, query, country string) ([]GeocodeResult, error)
}

// NarrativeEngine turns a prompt into a stream of text fragments.
type NarrativeEngine interface {
	Stream(ctx context.Context, prompt Prompt) (TokenStream, error)
}

// TokenStream is a pull iterator over narrative fragments. Next returns
// io.EOF once the engine has finished. Close cancels generation and releases
// the underlying connection; it is safe to call more than once.
type TokenStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// PlanRepository stores finished plans for the history endpoints.
type PlanRepository interface {
	Save(ctx context.Context, plan RoutePlan) error
	List(ctx context.Context, limit int) ([]RoutePlan, error)
	Get(ctx context.Context, id string) (RoutePlan, bool, error)
}

// PlanSink receives every finished plan.
type PlanSink interface {
	Name() string
	Record(ctx context.Context, plan RoutePlan) error
}

// PlanSinks is the ordered set of sinks notified on completion.
type PlanSinks []PlanSink

// TokenCounter estimates LLM token counts.
type TokenCounter interface {
	Count(text string) int
}
