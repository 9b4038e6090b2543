package planner

import (
	"io"
	"log/slog"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func sampleRequest() PlanRequest {
	return PlanRequest{
		Origin:      Location{Lat: 34.573, Lng: 135.483, Name: "Sakai City"},
		Destination: Location{Lat: 34.396, Lng: 135.757, Name: "Yoshino Mountain"},
		Preferences: RoutePreferences{
			Difficulty:        DifficultyModerate,
			AvoidTraffic:      true,
			PreferScenic:      true,
			MaxDistanceKm:     floatPtr(100),
			MaxElevationGainM: floatPtr(1500),
		},
		DepartureTime: Timestamp{Time: time.Date(2025, 3, 15, 7, 0, 0, 0, time.UTC)},
	}
}

func sampleSegments() []RouteSegment {
	a := NewCoordinate(34.573, 135.483)
	b := NewCoordinate(34.520, 135.560)
	c := NewCoordinate(34.460, 135.650)
	d := NewCoordinate(34.396, 135.757)
	return []RouteSegment{
		{Coordinates: []Coordinate{a, b}, Elevations: []float64{10, 90}, DistanceKm: 10, ElevationGainM: 100, ElevationLossM: 20, EstimatedDurationMin: 40, SurfaceType: SurfacePaved},
		{Coordinates: []Coordinate{b, c}, Elevations: []float64{90, 340}, DistanceKm: 15, ElevationGainM: 300, ElevationLossM: 50, EstimatedDurationMin: 75, SurfaceType: SurfaceGravel},
		{Coordinates: []Coordinate{c, d}, Elevations: []float64{340, 740}, DistanceKm: 25, ElevationGainM: 500, ElevationLossM: 100, EstimatedDurationMin: 120, SurfaceType: SurfacePaved},
	}
}

func calmForecast(at time.Time) WeatherForecast {
	return WeatherForecast{
		Time:                     at,
		Temperature:              15,
		WindSpeed:                3,
		WindDirection:            180,
		PrecipitationProbability: 10,
		WeatherCode:              1,
		Description:              "Mainly clear",
	}
}

func sampleForecasts() []WeatherForecast {
	start := time.Date(2025, 3, 15, 7, 0, 0, 0, time.UTC)
	out := make([]WeatherForecast, 0, 3)
	for i := 0; i < 3; i++ {
		out = append(out, calmForecast(start.Add(time.Duration(i)*time.Hour)))
	}
	return out
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
