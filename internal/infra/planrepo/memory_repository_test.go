package planrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

type fakeRow struct {
	payload []byte
	err     error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	*(dest[0].(*[]byte)) = f.payload
	return nil
}

func TestMemoryRepositoryListNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2025, 3, 15, 7, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Record(context.Background(), planner.RoutePlan{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	plans, err := repo.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "c", plans[0].ID)
	require.Equal(t, "b", plans[1].ID)

	got, ok, err := repo.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.ID)

	_, ok, err = repo.Get(context.Background(), "zzz")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "history", repo.Name())
}

func TestScanPlan(t *testing.T) {
	plan, err := scanPlan(fakeRow{payload: []byte(`{"id":"p1","total_distance_km":42.5,"warnings":["rain likely: 60% precipitation chance"]}`)})
	require.NoError(t, err)
	require.Equal(t, "p1", plan.ID)
	require.Equal(t, 42.5, plan.TotalDistanceKm)
	require.Len(t, plan.Warnings, 1)

	_, err = scanPlan(fakeRow{payload: []byte(`{`)})
	require.ErrorContains(t, err, "decode route plan")

	boom := errors.New("boom")
	_, err = scanPlan(fakeRow{err: boom})
	require.ErrorIs(t, err, boom)
}
