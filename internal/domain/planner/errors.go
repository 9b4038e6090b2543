package planner

import (
	"fmt"

	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

// Error codes surfaced by the planner.
const (
	CodeInvalidInput            = "invalid_input"
	CodeUpstreamUnavailable     = "upstream_unavailable"
	CodeConstraintUnsatisfiable = "constraint_unsatisfiable"
	CodeEngineFailure           = "engine_failure"
	CodeNotFound                = "not_found"
	CodeStorageFailure          = "storage_failure"
)

// Degradation warnings appended when an optional source fails.
const (
	WarningWeatherUnavailable   = "weather data unavailable"
	WarningElevationUnavailable = "elevation data unavailable"
	WarningNarrativeUnavailable = "narrative unavailable"
)

// CheckMaxDistance fails with constraint_unsatisfiable when a route exceeds
// the rider's distance bound.
func CheckMaxDistance(prefs RoutePreferences, distanceKm float64) error {
	if prefs.MaxDistanceKm == nil {
		return nil
	}
	if distanceKm > *prefs.MaxDistanceKm {
		msg := fmt.Sprintf("route distance %.1f km exceeds max_distance_km %.1f km", distanceKm, *prefs.MaxDistanceKm)
		return apperrors.Wrap(CodeConstraintUnsatisfiable, msg, nil)
	}
	return nil
}
