package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	"github.com/yanqian/cycleroute/internal/infra/cache"
	"github.com/yanqian/cycleroute/internal/infra/config"
	elevationmeteo "github.com/yanqian/cycleroute/internal/infra/elevation/openmeteo"
	"github.com/yanqian/cycleroute/internal/infra/events"
	"github.com/yanqian/cycleroute/internal/infra/llm/chatgpt"
	"github.com/yanqian/cycleroute/internal/infra/narrative"
	"github.com/yanqian/cycleroute/internal/infra/planarchive"
	"github.com/yanqian/cycleroute/internal/infra/planrepo"
	"github.com/yanqian/cycleroute/internal/infra/routing/ors"
	"github.com/yanqian/cycleroute/internal/infra/tokenizer"
	weathermeteo "github.com/yanqian/cycleroute/internal/infra/weather/openmeteo"
	"github.com/yanqian/cycleroute/pkg/logger"
	"github.com/yanqian/cycleroute/pkg/resilience"
)

// historyStore is a plan repository that also records finished plans.
type historyStore interface {
	planner.PlanRepository
	planner.PlanSink
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.Log.Service,
	})
}

func providePlannerConfig(cfg *config.Config) planner.Config {
	return planner.Config{
		SystemPrompt:   cfg.Narrative.SystemPrompt,
		Language:       cfg.Narrative.Language,
		PersistTimeout: cfg.Planner.PersistTimeout,
		ForecastHours:  cfg.Weather.ForecastHours,
	}
}

func newBreaker(cfg config.BreakerConfig, name string, ignore func(error) bool, logger *slog.Logger) *resilience.Breaker {
	if !cfg.Enabled {
		return nil
	}
	return resilience.NewBreaker(resilience.Settings{
		Name:             name,
		Interval:         cfg.Interval,
		Timeout:          cfg.OpenTimeout,
		FailureThreshold: cfg.FailureThreshold,
		HalfOpenRequests: cfg.HalfOpenRequests,
		Ignore:           ignore,
	}, logger)
}

func provideRoutingClient(cfg *config.Config, logger *slog.Logger) (*ors.Client, error) {
	breaker := newBreaker(cfg.Breaker, "openrouteservice", ors.IsRouteNotFound, logger)
	return ors.NewClient(ors.Config{
		APIKey:          cfg.Routing.APIKey,
		BaseURL:         cfg.Routing.BaseURL,
		Timeout:         cfg.Routing.Timeout,
		SegmentTargetKm: cfg.Routing.SegmentTargetKm,
		DefaultProfile:  cfg.Routing.DefaultProfile,
		DefaultCountry:  cfg.Routing.DefaultCountry,
	}, breaker, logger)
}

func provideWeatherClient(cfg *config.Config, store cache.Store, logger *slog.Logger) planner.WeatherClient {
	client := weathermeteo.NewClient(weathermeteo.Config{
		BaseURL:     cfg.Weather.BaseURL,
		Timeout:     cfg.Weather.Timeout,
		SampleCount: cfg.Weather.SampleCount,
	}, newBreaker(cfg.Breaker, "open-meteo-forecast", nil, logger), logger)
	if cfg.Cache.WeatherTTL <= 0 {
		return client
	}
	return cache.NewWeather(client, store, cfg.Cache.WeatherTTL, logger)
}

func provideElevationService(cfg *config.Config, store cache.Store, logger *slog.Logger) planner.ElevationService {
	client := elevationmeteo.NewClient(elevationmeteo.Config{
		BaseURL:   cfg.Elevation.BaseURL,
		Timeout:   cfg.Elevation.Timeout,
		MaxPoints: cfg.Elevation.MaxPoints,
	}, newBreaker(cfg.Breaker, "open-meteo-elevation", nil, logger), logger)
	if cfg.Cache.ElevationTTL <= 0 {
		return client
	}
	return cache.NewElevation(client, store, cfg.Cache.ElevationTTL, logger)
}

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout)
}

func provideNarrativeEngine(cfg *config.Config, client *chatgpt.Client, logger *slog.Logger) planner.NarrativeEngine {
	return narrative.NewEngine(client, narrative.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, newBreaker(cfg.Breaker, "llm", nil, logger), logger)
}

func provideTokenCounter(cfg *config.Config, logger *slog.Logger) planner.TokenCounter {
	return tokenizer.NewCounter(cfg.LLM.Model, logger)
}

func provideCacheStore(cfg *config.Config, logger *slog.Logger) (cache.Store, func()) {
	noop := func() {}
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryStore(), noop
	}
	opt, err := buildValkeyOptions(cfg.Cache.Redis.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory cache", "error", err)
		return cache.NewMemoryStore(), noop
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory cache", "error", err)
		return cache.NewMemoryStore(), noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory cache", "error", err)
		client.Close()
		return cache.NewMemoryStore(), noop
	}
	logger.Info("valkey cache enabled", "addr", cfg.Cache.Redis.Addr)
	return cache.NewValkeyStore(client, cfg.Cache.Redis.Prefix), client.Close
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func provideHistoryStore(cfg *config.Config, logger *slog.Logger) (historyStore, func()) {
	noop := func() {}
	fallback := planrepo.NewMemoryRepository()
	dsn := strings.TrimSpace(cfg.History.Postgres.DSN)
	if dsn == "" {
		logger.Info("history postgres dsn not set, using memory repository")
		return fallback, noop
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repository", "error", err)
		return fallback, noop
	}
	if cfg.History.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.History.Postgres.MaxConns
	}
	if cfg.History.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.History.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repository", "error", err)
		return fallback, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return fallback, noop
	}
	logger.Info("history postgres repository enabled")
	return planrepo.NewPostgresRepository(pool), pool.Close
}

func providePlanRepository(store historyStore) planner.PlanRepository {
	return store
}

func provideArchive(cfg *config.Config, logger *slog.Logger) *planarchive.Archive {
	if !cfg.Archive.Enabled {
		return nil
	}
	archive, err := planarchive.NewArchive(planarchive.Config{
		Endpoint:  cfg.Archive.Endpoint,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		Region:    cfg.Archive.Region,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize plan archive, archiving disabled", "error", err)
		return nil
	}
	logger.Info("plan archive enabled", "bucket", cfg.Archive.Bucket)
	return archive
}

func provideEventPublisher(cfg *config.Config, logger *slog.Logger) (*events.Publisher, func()) {
	if !cfg.Events.Enabled {
		return nil, func() {}
	}
	publisher, err := events.Connect(events.Config{
		URL:     cfg.Events.URL,
		Name:    "cycleroute",
		Subject: cfg.Events.Subject,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to nats, plan events disabled", "error", err)
		return nil, func() {}
	}
	return publisher, publisher.Close
}

func providePlanSinks(history historyStore, archive *planarchive.Archive, publisher *events.Publisher) planner.PlanSinks {
	sinks := planner.PlanSinks{history}
	if archive != nil {
		sinks = append(sinks, archive)
	}
	if publisher != nil {
		sinks = append(sinks, publisher)
	}
	return sinks
}
