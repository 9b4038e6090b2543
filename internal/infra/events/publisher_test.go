package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

type recordingConn struct {
	subject string
	data    []byte
	err     error
}

func (r *recordingConn) Publish(subject string, data []byte) error {
	r.subject, r.data = subject, data
	return r.err
}

func TestPublisherRecord(t *testing.T) {
	conn := &recordingConn{}
	pub := NewPublisher(conn, "", "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	plan := planner.RoutePlan{
		ID:              "p1",
		Origin:          planner.Location{Lat: 34.57, Lng: 135.48, Name: "Sakai"},
		Destination:     planner.Location{Lat: 34.39, Lng: 135.75},
		Preferences:     planner.RoutePreferences{Difficulty: planner.DifficultyHard},
		TotalDistanceKm: 50,
		RiskScore:       31.5,
		Warnings:        []string{"a", "b"},
		LLMAnalysis:     "ok",
		CreatedAt:       time.Date(2025, 3, 15, 7, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Record(context.Background(), plan))
	require.Equal(t, SubjectPlanCompleted, conn.subject)

	var event Event
	require.NoError(t, json.Unmarshal(conn.data, &event))
	require.Equal(t, SubjectPlanCompleted, event.Type)
	require.Equal(t, "cycleroute", event.Source)
	_, err := uuid.Parse(event.ID)
	require.NoError(t, err)

	var data PlanCompletedData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	require.Equal(t, "p1", data.PlanID)
	require.Equal(t, "Sakai", data.Origin)
	require.Equal(t, "34.3900, 135.7500", data.Destination)
	require.Equal(t, "hard", data.Difficulty)
	require.Equal(t, 2, data.Warnings)
	require.True(t, data.Narrated)
}

func TestPublisherRecordErrors(t *testing.T) {
	conn := &recordingConn{err: errors.New("nats: connection closed")}
	pub := NewPublisher(conn, "custom.subject", "test", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := pub.Record(context.Background(), planner.RoutePlan{ID: "p1"})
	require.ErrorContains(t, err, "publish to custom.subject")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pub.Record(ctx, planner.RoutePlan{ID: "p2"}), context.Canceled)
}
