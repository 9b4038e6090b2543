package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// Elevation memoizes elevation profiles by route geometry.
type Elevation struct {
	next   planner.ElevationService
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewElevation wraps next with store.
func NewElevation(next planner.ElevationService, store Store, ttl time.Duration, logger *slog.Logger) *Elevation {
	return &Elevation{next: next, store: store, ttl: ttl, logger: logger.With("component", "cache.elevation")}
}

func (e *Elevation) Profile(ctx context.Context, coords []planner.Coordinate) ([]float64, error) {
	if len(coords) == 0 {
		return e.next.Profile(ctx, coords)
	}
	key := "elevation:" + coordinatesKey(coords)
	return lookup(ctx, e.store, key, e.ttl, "elevation", e.logger, func(ctx context.Context) ([]float64, error) {
		return e.next.Profile(ctx, coords)
	})
}

var _ planner.ElevationService = (*Elevation)(nil)
