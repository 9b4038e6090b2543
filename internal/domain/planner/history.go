package planner

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

// History limits for the list endpoint.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// HistoryService exposes finished plans.
type HistoryService interface {
	List(ctx context.Context, limit int) ([]RoutePlan, error)
	Get(ctx context.Context, id string) (RoutePlan, error)
}

type historyService struct {
	repo   PlanRepository
	logger *slog.Logger
}

// NewHistoryService is a wire provider for plan history.
func NewHistoryService(repo PlanRepository, logger *slog.Logger) HistoryService {
	return &historyService{repo: repo, logger: logger.With("component", "planner.history")}
}

// List returns the newest plans first. A zero limit selects the default.
func (h *historyService) List(ctx context.Context, limit int) ([]RoutePlan, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, apperrors.Wrap(CodeInvalidInput, "limit must be between 1 and 100", nil)
	}
	plans, err := h.repo.List(ctx, limit)
	if err != nil {
		h.logger.Error("list plans failed", "error", err)
		return nil, apperrors.Wrap(CodeStorageFailure, "failed to retrieve history", err)
	}
	if plans == nil {
		plans = []RoutePlan{}
	}
	return plans, nil
}

func (h *historyService) Get(ctx context.Context, id string) (RoutePlan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return RoutePlan{}, apperrors.Wrap(CodeInvalidInput, "plan id cannot be empty", nil)
	}
	plan, ok, err := h.repo.Get(ctx, id)
	if err != nil {
		h.logger.Error("get plan failed", "plan_id", id, "error", err)
		return RoutePlan{}, apperrors.Wrap(CodeStorageFailure, "failed to retrieve plan", err)
	}
	if !ok {
		return RoutePlan{}, apperrors.Wrap(CodeNotFound, "route plan not found: "+id, nil)
	}
	return plan, nil
}
