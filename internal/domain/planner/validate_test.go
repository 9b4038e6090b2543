package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

func TestValidateRequest(t *testing.T) {
	negative := -1.0
	zero := 0.0

	cases := []struct {
		name    string
		mutate  func(r *PlanRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(r *PlanRequest) {}},
		{name: "latitude out of range", mutate: func(r *PlanRequest) { r.Origin.Lat = 200 }, wantErr: "origin.lat must be <= 90"},
		{name: "longitude out of range", mutate: func(r *PlanRequest) { r.Destination.Lng = -181 }, wantErr: "destination.lng must be >= -180"},
		{name: "unknown difficulty", mutate: func(r *PlanRequest) { r.Preferences.Difficulty = "extreme" }, wantErr: "preferences.difficulty must be one of"},
		{name: "missing difficulty", mutate: func(r *PlanRequest) { r.Preferences.Difficulty = "" }, wantErr: "preferences.difficulty is required"},
		{name: "zero max distance", mutate: func(r *PlanRequest) { r.Preferences.MaxDistanceKm = &zero }, wantErr: "preferences.max_distance_km must be > 0"},
		{name: "negative elevation bound", mutate: func(r *PlanRequest) { r.Preferences.MaxElevationGainM = &negative }, wantErr: "preferences.max_elevation_gain_m must be >= 0"},
		{name: "zero elevation bound allowed", mutate: func(r *PlanRequest) { r.Preferences.MaxElevationGainM = &zero }},
		{name: "missing departure", mutate: func(r *PlanRequest) { r.DepartureTime = Timestamp{} }, wantErr: "departure_time is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := sampleRequest()
			tc.mutate(&req)
			err := ValidateRequest(req)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, apperrors.IsCode(err, CodeInvalidInput))
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	naive, err := ParseTimestamp("2025-03-15T07:00:00")
	require.NoError(t, err)
	require.Equal(t, "2025-03-15T07:00:00Z", naive.UTC().Format("2006-01-02T15:04:05Z07:00"))

	zoned, err := ParseTimestamp("2025-03-15T07:00:00+09:00")
	require.NoError(t, err)
	require.Equal(t, 22, zoned.UTC().Hour())

	_, err = ParseTimestamp("tomorrow")
	require.Error(t, err)
}
