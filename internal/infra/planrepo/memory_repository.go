package planrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// MemoryRepository keeps plans in process memory for tests/dev.
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string]planner.RoutePlan
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string]planner.RoutePlan)}
}

// Save inserts or replaces the plan.
func (r *MemoryRepository) Save(_ context.Context, plan planner.RoutePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ID] = plan
	return nil
}

// List returns up to limit plans, newest first.
func (r *MemoryRepository) List(_ context.Context, limit int) ([]planner.RoutePlan, error) {
	r.mu.RLock()
	out := make([]planner.RoutePlan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (planner.RoutePlan, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[id]
	return plan, ok, nil
}

// Name implements planner.PlanSink.
func (r *MemoryRepository) Name() string { return "history" }

// Record implements planner.PlanSink.
func (r *MemoryRepository) Record(ctx context.Context, plan planner.RoutePlan) error {
	return r.Save(ctx, plan)
}

var (
	_ planner.PlanRepository = (*MemoryRepository)(nil)
	_ planner.PlanSink       = (*MemoryRepository)(nil)
)
