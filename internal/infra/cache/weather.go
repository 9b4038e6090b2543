package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	"github.com/yanqian/cycleroute/pkg/metrics"
)

// Weather memoizes forecasts. Upstream failures are never masked by cached
// data; the cache only short-circuits successful lookups.
type Weather struct {
	next   planner.WeatherClient
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewWeather wraps next with store.
func NewWeather(next planner.WeatherClient, store Store, ttl time.Duration, logger *slog.Logger) *Weather {
	return &Weather{next: next, store: store, ttl: ttl, logger: logger.With("component", "cache.weather")}
}

func (w *Weather) RouteForecast(ctx context.Context, locations []planner.Location, start time.Time, durationHours float64) ([]planner.WeatherForecast, error) {
	if len(locations) == 0 {
		return w.next.RouteForecast(ctx, locations, start, durationHours)
	}
	key := "weather:route:" + locationsKey(locations) + ":" + minuteKey(start) + ":" +
		strconv.FormatFloat(durationHours, 'f', 2, 64)
	return lookup(ctx, w.store, key, w.ttl, "weather", w.logger, func(ctx context.Context) ([]planner.WeatherForecast, error) {
		return w.next.RouteForecast(ctx, locations, start, durationHours)
	})
}

func (w *Weather) Forecast(ctx context.Context, location planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error) {
	key := "weather:point:" + roundedKey(location.Lat, location.Lng) + ":" + hourKey(start) + ":" + strconv.Itoa(hours)
	return lookup(ctx, w.store, key, w.ttl, "weather", w.logger, func(ctx context.Context) ([]planner.WeatherForecast, error) {
		return w.next.Forecast(ctx, location, start, hours)
	})
}

// lookup reads key from store and falls back to load on a miss or a cache
// error. Fresh values are written back best effort.
func lookup[T any](ctx context.Context, store Store, key string, ttl time.Duration, name string, logger *slog.Logger, load func(context.Context) (T, error)) (T, error) {
	if payload, ok, err := store.Get(ctx, key); err != nil {
		logger.Warn("cache read failed", "key", key, "error", err)
	} else if ok {
		var cached T
		if err := json.Unmarshal(payload, &cached); err == nil {
			metrics.RecordCacheLookup(name, true)
			return cached, nil
		}
		logger.Warn("cache entry corrupt", "key", key)
	}
	metrics.RecordCacheLookup(name, false)

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache encode failed", "key", key, "error", err)
		return value, nil
	}
	if err := store.Set(ctx, key, payload, ttl); err != nil {
		logger.Warn("cache write failed", "key", key, "error", err)
	}
	return value, nil
}

var _ planner.WeatherClient = (*Weather)(nil)
