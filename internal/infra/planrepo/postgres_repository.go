package planrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// PostgresRepository stores plans as JSONB documents in route_plans.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save upserts the plan document.
func (r *PostgresRepository) Save(ctx context.Context, plan planner.RoutePlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode route plan: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO route_plans (id, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, plan.ID, payload, plan.CreatedAt)
	return err
}

// List returns up to limit plans, newest first.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]planner.RoutePlan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT data
		FROM route_plans
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]planner.RoutePlan, 0, limit)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (planner.RoutePlan, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT data FROM route_plans WHERE id = $1`, id)
	plan, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return planner.RoutePlan{}, false, nil
	}
	if err != nil {
		return planner.RoutePlan{}, false, err
	}
	return plan, true, nil
}

// Name implements planner.PlanSink.
func (r *PostgresRepository) Name() string { return "history" }

// Record implements planner.PlanSink.
func (r *PostgresRepository) Record(ctx context.Context, plan planner.RoutePlan) error {
	return r.Save(ctx, plan)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (planner.RoutePlan, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return planner.RoutePlan{}, err
	}
	var plan planner.RoutePlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return planner.RoutePlan{}, fmt.Errorf("decode route plan: %w", err)
	}
	return plan, nil
}

var (
	_ planner.PlanRepository = (*PostgresRepository)(nil)
	_ planner.PlanSink       = (*PostgresRepository)(nil)
)
