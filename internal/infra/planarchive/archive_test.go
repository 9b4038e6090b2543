package planarchive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

func TestObjectKey(t *testing.T) {
	// 05:00 JST on April 1st is still March in UTC
	plan := planner.RoutePlan{ID: "4b1d", CreatedAt: time.Date(2025, 4, 1, 5, 0, 0, 0, time.FixedZone("JST", 9*3600))}
	require.Equal(t, "plans/2025/03/4b1d.json", ObjectKey(plan))

	plan.CreatedAt = time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)
	require.Equal(t, "plans/2025/12/4b1d.json", ObjectKey(plan))
}

func TestSanitizeEndpoint(t *testing.T) {
	require.Equal(t, "acct.r2.cloudflarestorage.com", sanitizeEndpoint("https://acct.r2.cloudflarestorage.com/bucket"))
	require.Equal(t, "localhost:9000", sanitizeEndpoint(" http://localhost:9000 "))
	require.Empty(t, sanitizeEndpoint(""))
}

func TestNewArchiveRequiresBucket(t *testing.T) {
	_, err := NewArchive(Config{Endpoint: "localhost:9000"}, nil)
	require.Error(t, err)

	archive, err := NewArchive(Config{Endpoint: "http://localhost:9000", Bucket: "plans", AccessKey: "k", SecretKey: "s"}, nil)
	require.NoError(t, err)
	require.Equal(t, "archive", archive.Name())
}
