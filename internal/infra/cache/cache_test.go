package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

type countingWeather struct {
	calls int
	err   error
}

func (c *countingWeather) RouteForecast(ctx context.Context, locs []planner.Location, start time.Time, hours float64) ([]planner.WeatherForecast, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []planner.WeatherForecast{{Time: start.UTC(), Temperature: 12, Description: "Fog"}}, nil
}

func (c *countingWeather) Forecast(ctx context.Context, loc planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error) {
	return c.RouteForecast(ctx, []planner.Location{loc}, start, float64(hours))
}

type countingElevation struct{ calls int }

func (c *countingElevation) Profile(ctx context.Context, coords []planner.Coordinate) ([]float64, error) {
	c.calls++
	out := make([]float64, len(coords))
	for i := range out {
		out[i] = float64(i)
	}
	return out, nil
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

var start = time.Date(2025, 3, 15, 7, 0, 0, 0, time.UTC)

func TestWeatherCachesSuccessfulLookups(t *testing.T) {
	upstream := &countingWeather{}
	cached := NewWeather(upstream, NewMemoryStore(), time.Minute, testLogger())
	locs := []planner.Location{{Lat: 34.5731, Lng: 135.4831}, {Lat: 34.4, Lng: 135.7}}

	first, err := cached.RouteForecast(context.Background(), locs, start, 3)
	require.NoError(t, err)
	// same departure minute and coordinates within rounding
	nearby := []planner.Location{{Lat: 34.57312, Lng: 135.48308}, {Lat: 34.4, Lng: 135.7}}
	second, err := cached.RouteForecast(context.Background(), nearby, start.Add(30*time.Second), 3)
	require.NoError(t, err)

	require.Equal(t, 1, upstream.calls)
	require.Equal(t, first, second)

	_, err = cached.RouteForecast(context.Background(), locs, start.Add(time.Hour), 3)
	require.NoError(t, err)
	require.Equal(t, 2, upstream.calls)
}

func TestWeatherRouteKeySeparatesDeparturesWithinAnHour(t *testing.T) {
	upstream := &countingWeather{}
	cached := NewWeather(upstream, NewMemoryStore(), time.Minute, testLogger())
	locs := []planner.Location{{Lat: 34.5731, Lng: 135.4831}, {Lat: 34.4, Lng: 135.7}}

	early, err := cached.RouteForecast(context.Background(), locs, start, 1.5)
	require.NoError(t, err)
	late, err := cached.RouteForecast(context.Background(), locs, start.Add(55*time.Minute), 1.5)
	require.NoError(t, err)

	require.Equal(t, 2, upstream.calls)
	require.Equal(t, start, early[0].Time)
	require.Equal(t, start.Add(55*time.Minute), late[0].Time)

	// point forecasts are hourly and still share a key within the hour
	_, err = cached.Forecast(context.Background(), locs[0], start, 24)
	require.NoError(t, err)
	_, err = cached.Forecast(context.Background(), locs[0], start.Add(55*time.Minute), 24)
	require.NoError(t, err)
	require.Equal(t, 3, upstream.calls)
}

func TestWeatherNeverMasksUpstreamFailure(t *testing.T) {
	store := NewMemoryStore()
	upstream := &countingWeather{}
	cached := NewWeather(upstream, store, time.Minute, testLogger())
	loc := planner.Location{Lat: 34, Lng: 135}

	_, err := cached.Forecast(context.Background(), loc, start, 24)
	require.NoError(t, err)

	upstream.err = errors.New("status=503")
	_, err = cached.Forecast(context.Background(), loc, start, 12)
	require.ErrorContains(t, err, "status=503")
}

func TestBrokenStoreFallsThrough(t *testing.T) {
	upstream := &countingWeather{}
	cached := NewWeather(upstream, brokenStore{}, time.Minute, testLogger())

	got, err := cached.Forecast(context.Background(), planner.Location{Lat: 34, Lng: 135}, start, 24)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, upstream.calls)
}

func TestElevationCache(t *testing.T) {
	upstream := &countingElevation{}
	cached := NewElevation(upstream, NewMemoryStore(), time.Hour, testLogger())
	coords := []planner.Coordinate{planner.NewCoordinate(34, 135), planner.NewCoordinate(34.1, 135.1)}

	for i := 0; i < 3; i++ {
		profile, err := cached.Profile(context.Background(), coords)
		require.NoError(t, err)
		require.Equal(t, []float64{0, 1}, profile)
	}
	require.Equal(t, 1, upstream.calls)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := start
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(context.Background(), "k", []byte("v"), time.Minute))
	got, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
