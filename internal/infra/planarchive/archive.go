package planarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// Config locates the S3-compatible bucket (R2, MinIO, S3).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// Archive writes every finished plan as a JSON object.
type Archive struct {
	client *minio.Client
	bucket string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewArchive constructs the archive sink.
func NewArchive(cfg Config, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("archive bucket cannot be empty")
	}
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.Endpoint)), "http://"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, logger: logger.With("component", "planarchive")}, nil
}

// Name implements planner.PlanSink.
func (a *Archive) Name() string { return "archive" }

// Record uploads the plan to plans/<yyyy>/<mm>/<id>.json.
func (a *Archive) Record(ctx context.Context, plan planner.RoutePlan) error {
	if err := a.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure archive bucket: %w", err)
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode route plan: %w", err)
	}
	key := ObjectKey(plan)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Debug("plan archived", "plan_id", plan.ID, "key", key, "bytes", len(payload))
	return nil
}

// ensureBucket creates the bucket on first use. A failed attempt is retried
// on the next plan.
func (a *Archive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil || !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return err
		}
	}
	a.bucketReady = true
	return nil
}

// ObjectKey partitions archived plans by creation month.
func ObjectKey(plan planner.RoutePlan) string {
	created := plan.CreatedAt.UTC()
	return fmt.Sprintf("plans/%04d/%02d/%s.json", created.Year(), int(created.Month()), plan.ID)
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

var _ planner.PlanSink = (*Archive)(nil)
