package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	LLM       LLMConfig       `yaml:"llm"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Planner   PlannerConfig   `yaml:"planner"`
	Routing   RoutingConfig   `yaml:"routing"`
	Weather   WeatherConfig   `yaml:"weather"`
	Elevation ElevationConfig `yaml:"elevation"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Events    EventsConfig    `yaml:"events"`
}

// LogConfig selects the slog handler shared by every component.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address         string          `yaml:"address"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	StreamTimeout   time.Duration   `yaml:"streamTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	AllowedOrigins  []string        `yaml:"allowedOrigins"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
	Retry           RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig contains ChatGPT/OpenAI settings.
type LLMConfig struct {
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	// StreamTimeout caps how long a narration may keep streaming tokens.
	StreamTimeout time.Duration `yaml:"streamTimeout"`
}

// NarrativeConfig shapes the route analysis prompt.
type NarrativeConfig struct {
	SystemPrompt string `yaml:"systemPrompt"`
	Language     string `yaml:"language"`
}

// PlannerConfig tunes the planning pipeline.
type PlannerConfig struct {
	PersistTimeout time.Duration `yaml:"persistTimeout"`
}

// RoutingConfig configures OpenRouteService.
type RoutingConfig struct {
	APIKey          string        `yaml:"apiKey"`
	BaseURL         string        `yaml:"baseUrl"`
	Timeout         time.Duration `yaml:"timeout"`
	SegmentTargetKm float64       `yaml:"segmentTargetKm"`
	DefaultProfile  string        `yaml:"defaultProfile"`
	DefaultCountry  string        `yaml:"defaultCountry"`
}

// WeatherConfig configures the Open-Meteo forecast API.
type WeatherConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	SampleCount   int           `yaml:"sampleCount"`
	ForecastHours int           `yaml:"forecastHours"`
}

// ElevationConfig configures the Open-Meteo elevation API.
type ElevationConfig struct {
	BaseURL   string        `yaml:"baseUrl"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxPoints int           `yaml:"maxPoints"`
}

// BreakerConfig applies to every upstream circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failureThreshold"`
	OpenTimeout      time.Duration `yaml:"openTimeout"`
	Interval         time.Duration `yaml:"interval"`
	HalfOpenRequests uint32        `yaml:"halfOpenRequests"`
}

// CacheConfig controls upstream response caching.
type CacheConfig struct {
	Redis        RedisConfig   `yaml:"redis"`
	WeatherTTL   time.Duration `yaml:"weatherTtl"`
	ElevationTTL time.Duration `yaml:"elevationTtl"`
}

// RedisConfig contains connection information for cache storage.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// HistoryConfig selects where finished plans are stored.
type HistoryConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// ArchiveConfig locates the S3-compatible plan archive.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// EventsConfig controls plan completion events.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Load reads configuration from a YAML file, an optional .env file and
// environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Service, "LOG_SERVICE_NAME")

	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")
	setBool(&cfg.HTTP.Retry.Enabled, "HTTP_RETRY_ENABLED")
	setInt(&cfg.HTTP.Retry.MaxAttempts, "HTTP_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.HTTP.Retry.BaseBackoff, "HTTP_RETRY_BASE_BACKOFF")
	setDuration(&cfg.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	setDuration(&cfg.HTTP.StreamTimeout, "HTTP_STREAM_TIMEOUT")

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	setInt(&cfg.LLM.MaxTokens, "LLM_MAX_TOKENS")
	setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT")
	setDuration(&cfg.LLM.StreamTimeout, "LLM_STREAM_TIMEOUT")

	setString(&cfg.Narrative.SystemPrompt, "NARRATIVE_SYSTEM_PROMPT")
	setString(&cfg.Narrative.Language, "NARRATIVE_LANGUAGE")
	setDuration(&cfg.Planner.PersistTimeout, "PLANNER_PERSIST_TIMEOUT")

	setString(&cfg.Routing.APIKey, "ORS_API_KEY")
	setString(&cfg.Routing.BaseURL, "ORS_BASE_URL")
	setDuration(&cfg.Routing.Timeout, "ORS_TIMEOUT")
	if v := os.Getenv("ROUTING_SEGMENT_TARGET_KM"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Routing.SegmentTargetKm = parsed
		}
	}

	setString(&cfg.Weather.BaseURL, "WEATHER_BASE_URL")
	setDuration(&cfg.Weather.Timeout, "WEATHER_TIMEOUT")
	setInt(&cfg.Weather.SampleCount, "WEATHER_SAMPLE_COUNT")
	setString(&cfg.Elevation.BaseURL, "ELEVATION_BASE_URL")
	setDuration(&cfg.Elevation.Timeout, "ELEVATION_TIMEOUT")

	setBool(&cfg.Breaker.Enabled, "BREAKER_ENABLED")
	setDuration(&cfg.Breaker.OpenTimeout, "BREAKER_OPEN_TIMEOUT")

	setBool(&cfg.Cache.Redis.Enabled, "CACHE_REDIS_ENABLED")
	setString(&cfg.Cache.Redis.Addr, "CACHE_REDIS_ADDR")
	setDuration(&cfg.Cache.WeatherTTL, "CACHE_WEATHER_TTL")
	setDuration(&cfg.Cache.ElevationTTL, "CACHE_ELEVATION_TTL")

	setString(&cfg.History.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.History.Postgres.DSN, "HISTORY_POSTGRES_DSN")
	if v := os.Getenv("HISTORY_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.History.Postgres.MaxConns = int32(parsed)
		}
	}

	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setString(&cfg.Archive.Endpoint, "ARCHIVE_ENDPOINT")
	setString(&cfg.Archive.AccessKey, "ARCHIVE_ACCESS_KEY")
	setString(&cfg.Archive.SecretKey, "ARCHIVE_SECRET_KEY")
	setString(&cfg.Archive.Bucket, "ARCHIVE_BUCKET")
	setString(&cfg.Archive.Region, "ARCHIVE_REGION")

	setBool(&cfg.Events.Enabled, "EVENTS_ENABLED")
	setString(&cfg.Events.URL, "NATS_URL")
	setString(&cfg.Events.Subject, "EVENTS_SUBJECT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Service: "cycleroute",
		},
		HTTP: HTTPConfig{
			Address:     ":8080",
			ReadTimeout: 5 * time.Second,
			// plan streams replace this with PlanStreamTimeout
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/v1/plans/stream",
					"/metrics",
				},
			},
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
			MaxTokens:   1200,
			Timeout:       30 * time.Second,
			StreamTimeout: 2 * time.Minute,
		},
		Narrative: NarrativeConfig{
			SystemPrompt: "You are an experienced cycling coach and route advisor. Analyze the route data provided and give practical, safety-focused advice. Use the section headings requested by the user and keep each section brief.",
			Language:     "English",
		},
		Planner: PlannerConfig{
			PersistTimeout: 10 * time.Second,
		},
		Routing: RoutingConfig{
			BaseURL:         "https://api.openrouteservice.org",
			Timeout:         30 * time.Second,
			SegmentTargetKm: 10,
			DefaultProfile:  "cycling-regular",
			DefaultCountry:  "JP",
		},
		Weather: WeatherConfig{
			BaseURL:       "https://api.open-meteo.com/v1/forecast",
			Timeout:       15 * time.Second,
			SampleCount:   5,
			ForecastHours: 24,
		},
		Elevation: ElevationConfig{
			BaseURL:   "https://api.open-meteo.com/v1/elevation",
			Timeout:   15 * time.Second,
			MaxPoints: 100,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			Interval:         time.Minute,
			HalfOpenRequests: 1,
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				Enabled: false,
				Prefix:  "cycleroute",
			},
			WeatherTTL:   15 * time.Minute,
			ElevationTTL: 24 * time.Hour,
		},
		History: HistoryConfig{
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Archive: ArchiveConfig{
			Bucket: "route-plans",
			Region: "auto",
		},
		Events: EventsConfig{
			Subject: "plans.completed",
		},
	}
}

// PlanStreamTimeout is how long a plan stream may stay open. Unless set
// explicitly it is the sum of the sequential stage budgets: routing, the
// slower of weather and elevation, then narration.
func (c *Config) PlanStreamTimeout() time.Duration {
	if c.HTTP.StreamTimeout > 0 {
		return c.HTTP.StreamTimeout
	}
	return c.Routing.Timeout + max(c.Weather.Timeout, c.Elevation.Timeout) + c.LLM.Timeout + c.LLM.StreamTimeout
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	if strings.TrimSpace(c.Log.Service) == "" {
		return errors.New("log.service cannot be empty")
	}
	if c.HTTP.StreamTimeout < 0 || c.LLM.StreamTimeout < 0 {
		return errors.New("stream timeouts cannot be negative")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model cannot be empty")
	}
	if strings.TrimSpace(c.Narrative.SystemPrompt) == "" {
		return errors.New("narrative.systemPrompt cannot be empty")
	}
	if c.Routing.SegmentTargetKm <= 0 {
		return errors.New("routing.segmentTargetKm must be positive")
	}
	if c.Weather.SampleCount <= 0 {
		return errors.New("weather.sampleCount must be positive")
	}
	if c.Weather.ForecastHours <= 0 || c.Weather.ForecastHours > 16*24 {
		return errors.New("weather.forecastHours must be between 1 and 384")
	}
	if c.Elevation.MaxPoints < 2 || c.Elevation.MaxPoints > 100 {
		return errors.New("elevation.maxPoints must be between 2 and 100")
	}
	if c.Breaker.Enabled && c.Breaker.FailureThreshold == 0 {
		return errors.New("breaker.failureThreshold must be positive")
	}
	if c.Cache.WeatherTTL < 0 || c.Cache.ElevationTTL < 0 {
		return errors.New("cache ttl cannot be negative")
	}
	if c.Cache.Redis.Enabled && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return errors.New("cache.redis.addr cannot be empty when redis cache is enabled")
	}
	if c.Archive.Enabled && (strings.TrimSpace(c.Archive.Endpoint) == "" || strings.TrimSpace(c.Archive.Bucket) == "") {
		return errors.New("archive.endpoint and archive.bucket are required when the archive is enabled")
	}
	if c.Events.Enabled && strings.TrimSpace(c.Events.URL) == "" {
		return errors.New("events.url cannot be empty when events are enabled")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	return nil
}
