package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/yanqian/cycleroute/pkg/errors"
	"github.com/yanqian/cycleroute/pkg/metrics"
	"github.com/yanqian/cycleroute/pkg/util"
)

const tracerName = "github.com/yanqian/cycleroute/internal/domain/planner"

// Config tunes the planning pipeline.
type Config struct {
	SystemPrompt   string
	Language       string
	PersistTimeout time.Duration
	ForecastHours  int
}

// Service exposes route planning capabilities.
type Service interface {
	// Plan always returns a channel. Units arrive in the order route_data,
	// weather, token*, done; a fatal failure yields a single error unit. The
	// channel is closed once the request terminates.
	Plan(ctx context.Context, req PlanRequest) <-chan Event
	Forecast(ctx context.Context, location Location, start time.Time, hours int) ([]WeatherForecast, error)
	Geocode(ctx context.Context, query, country string) ([]GeocodeResult, error)
}

type service struct {
	cfg       Config
	routing   RoutingClient
	weather   WeatherClient
	elevation ElevationService
	geocoder  Geocoder
	narrative NarrativeEngine
	sinks     PlanSinks
	counter   TokenCounter
	assessor  RiskAssessor
	analyzer  RouteAnalyzer
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewService is a wire provider for the planner domain.
func NewService(
	cfg Config,
	routing RoutingClient,
	weather WeatherClient,
	elevation ElevationService,
	geocoder Geocoder,
	narrative NarrativeEngine,
	sinks PlanSinks,
	counter TokenCounter,
	logger *slog.Logger,
) Service {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.ForecastHours <= 0 {
		cfg.ForecastHours = 24
	}
	return &service{
		cfg:       cfg,
		routing:   routing,
		weather:   weather,
		elevation: elevation,
		geocoder:  geocoder,
		narrative: narrative,
		sinks:     sinks,
		counter:   counter,
		assessor:  NewRiskAssessor(),
		analyzer:  NewRouteAnalyzer(),
		logger:    logger.With("component", "planner.service"),
		tracer:    otel.Tracer(tracerName),
		now:       util.NowUTC,
		newID:     func() string { return uuid.NewString() },
	}
}

type stage string

const (
	stageIdle       stage = "idle"
	stageRouting    stage = "route_fetching"
	stageEnrichment stage = "enrichment_fetching"
	stageAssessing  stage = "assessing"
	stageNarrating  stage = "narrating"
	stageDone       stage = "done"
	stageFailed     stage = "failed"
)

// planRun is the per-request state owned by one Plan goroutine.
type planRun struct {
	ctx     context.Context
	out     chan<- Event
	stage   stage
	started time.Time
	logger  *slog.Logger
}

// emit blocks until the consumer takes the unit or the request is cancelled.
func (r *planRun) emit(typ EventType, data any) bool {
	select {
	case r.out <- Event{Type: typ, Data: data}:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *planRun) fail(code string, err error) {
	r.logger.Warn("plan request failed", "stage", r.stage, "code", code, "error", err)
	r.stage = stageFailed
	r.emit(EventError, ErrorPayload{Code: code, Message: apperrors.MessageOf(err)})
}

func (s *service) Plan(ctx context.Context, req PlanRequest) <-chan Event {
	out := make(chan Event)
	go s.run(ctx, req, out)
	return out
}

func (s *service) run(ctx context.Context, req PlanRequest, out chan<- Event) {
	defer close(out)

	ctx, span := s.tracer.Start(ctx, "planner.Plan")
	defer span.End()

	run := &planRun{ctx: ctx, out: out, stage: stageIdle, started: time.Now(), logger: s.logger}
	outcome := "cancelled"
	defer func() {
		metrics.ObservePlan(outcome, time.Since(run.started))
	}()

	if err := ValidateRequest(req); err != nil {
		outcome = "invalid"
		span.SetStatus(codes.Error, "invalid input")
		run.fail(CodeInvalidInput, err)
		return
	}

	planID := s.newID()
	run.logger = s.logger.With("plan_id", planID)
	span.SetAttributes(attribute.String("plan.id", planID))

	run.stage = stageRouting
	segments, err := s.fetchRoute(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		run.fail(apperrors.CodeOf(err, CodeUpstreamUnavailable), err)
		return
	}

	plan := newRoutePlan(planID, req, segments, s.now())
	run.logger.Info("route fetched", "segments", len(segments), "distance_km", plan.TotalDistanceKm)
	if !run.emit(EventRouteData, RouteData{
		Segments:            plan.Segments,
		TotalDistanceKm:     plan.TotalDistanceKm,
		TotalElevationGainM: plan.TotalElevationGainM,
		TotalDurationMin:    plan.TotalDurationMin,
	}) {
		return
	}

	run.stage = stageEnrichment
	if err := s.enrich(ctx, &plan); err != nil {
		return
	}
	if !run.emit(EventWeather, plan.WeatherForecasts) {
		return
	}

	run.stage = stageAssessing
	s.assess(ctx, &plan, run.logger)

	run.stage = stageNarrating
	narrateErr := s.narrate(ctx, run, &plan)
	switch {
	case narrateErr == nil:
	case ctx.Err() != nil:
		return
	default:
		outcome = "engine_failure"
		span.RecordError(narrateErr)
		plan.LLMAnalysis = ""
		plan.Warnings = append(plan.Warnings, WarningNarrativeUnavailable)
		s.persist(ctx, plan, run.logger)
		run.fail(CodeEngineFailure, narrateErr)
		return
	}

	run.stage = stageDone
	s.persist(ctx, plan, run.logger)
	outcome = "complete"
	if plan.WeatherDegraded || plan.ElevationDegraded {
		outcome = "degraded"
	}
	run.emit(EventDone, DonePayload{
		Status:          "complete",
		PlanID:          plan.ID,
		RiskScore:       plan.RiskScore,
		Warnings:        plan.Warnings,
		RecommendedGear: plan.RecommendedGear,
	})
}

func (s *service) fetchRoute(ctx context.Context, req PlanRequest) ([]RouteSegment, error) {
	ctx, span := s.tracer.Start(ctx, "planner.route")
	defer span.End()
	started := time.Now()
	defer func() { metrics.ObserveStage(string(stageRouting), time.Since(started)) }()

	segments, err := s.routing.GenerateRoute(ctx, req.Origin, req.Destination, req.Preferences)
	if err != nil {
		switch {
		case apperrors.IsCode(err, CodeConstraintUnsatisfiable), apperrors.IsCode(err, CodeInvalidInput):
			return nil, err
		default:
			return nil, apperrors.Wrap(CodeUpstreamUnavailable, "routing provider unavailable", err)
		}
	}
	if len(segments) == 0 {
		return nil, apperrors.Wrap(CodeUpstreamUnavailable, "routing provider returned no route", nil)
	}
	for _, seg := range segments {
		if len(seg.Coordinates) == 0 {
			return nil, apperrors.Wrap(CodeUpstreamUnavailable, "routing provider returned an empty segment", nil)
		}
	}
	if err := CheckMaxDistance(req.Preferences, SummarizeRouteStats(segments).TotalDistanceKm); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("route.segments", len(segments)))
	return segments, nil
}

// enrich fetches weather and elevation concurrently. Either may fail without
// affecting the other; only cancellation is returned.
func (s *service) enrich(ctx context.Context, plan *RoutePlan) error {
	ctx, span := s.tracer.Start(ctx, "planner.enrich")
	defer span.End()
	started := time.Now()
	defer func() { metrics.ObserveStage(string(stageEnrichment), time.Since(started)) }()

	coords := RouteCoordinates(plan.Segments)
	locations := make([]Location, len(coords))
	for i, c := range coords {
		locations[i] = c.Location()
	}
	durationHours := float64(plan.TotalDurationMin) / 60

	var (
		forecasts  []WeatherForecast
		profile    []float64
		weatherErr error
		elevErr    error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		forecasts, weatherErr = s.weather.RouteForecast(gctx, locations, plan.DepartureTime, durationHours)
		return ctx.Err()
	})
	g.Go(func() error {
		profile, elevErr = s.elevation.Profile(gctx, coords)
		if elevErr == nil && len(profile) != len(coords) {
			elevErr = apperrors.Wrap(CodeUpstreamUnavailable, "elevation profile length mismatch", nil)
		}
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if weatherErr != nil {
		s.logger.Warn("weather degraded", "plan_id", plan.ID, "error", weatherErr)
		metrics.RecordDegraded("weather")
		span.AddEvent("weather degraded")
		plan.WeatherDegraded = true
		plan.Warnings = append(plan.Warnings, WarningWeatherUnavailable)
		forecasts = nil
	}
	if forecasts == nil {
		forecasts = []WeatherForecast{}
	}
	plan.WeatherForecasts = forecasts

	if elevErr != nil {
		s.logger.Warn("elevation degraded", "plan_id", plan.ID, "error", elevErr)
		metrics.RecordDegraded("elevation")
		span.AddEvent("elevation degraded")
		plan.ElevationDegraded = true
		plan.Warnings = append(plan.Warnings, WarningElevationUnavailable)
		profile = nil
	}
	plan.ElevationProfile = profile
	return nil
}

func (s *service) assess(ctx context.Context, plan *RoutePlan, logger *slog.Logger) {
	_, span := s.tracer.Start(ctx, "planner.assess")
	defer span.End()

	result, err := s.assessor.Assess(plan.Segments, plan.WeatherForecasts, plan.Preferences)
	if err != nil {
		// fetchRoute guarantees at least one segment
		logger.Error("risk assessment failed", "error", err)
		return
	}
	plan.Warnings = append(plan.Warnings, result.Warnings...)
	plan.RecommendedGear = result.RecommendedGear
	plan.RiskScore = result.RiskScore
	span.SetAttributes(attribute.Float64("plan.risk_score", result.RiskScore))
}

func (s *service) narrate(ctx context.Context, run *planRun, plan *RoutePlan) error {
	ctx, span := s.tracer.Start(ctx, "planner.narrate")
	defer span.End()
	started := time.Now()
	defer func() { metrics.ObserveStage(string(stageNarrating), time.Since(started)) }()

	prompt := Prompt{
		System: s.cfg.SystemPrompt,
		User: s.analyzer.BuildContext(ContextInput{
			Origin:           plan.Origin,
			Destination:      plan.Destination,
			DepartureTime:    plan.DepartureTime,
			Segments:         plan.Segments,
			Forecasts:        plan.WeatherForecasts,
			ElevationProfile: plan.ElevationProfile,
			Preferences:      plan.Preferences,
			Warnings:         plan.Warnings,
			Gear:             plan.RecommendedGear,
			Language:         s.cfg.Language,
		}),
	}

	stream, err := s.narrative.Stream(ctx, prompt)
	if err != nil {
		return apperrors.Wrap(CodeEngineFailure, "narrative engine unavailable", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		token, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.Wrap(CodeEngineFailure, "narrative stream interrupted", err)
		}
		if token == "" {
			continue
		}
		builder.WriteString(token)
		if !run.emit(EventToken, token) {
			return ctx.Err()
		}
	}

	plan.LLMAnalysis = builder.String()
	if s.counter != nil {
		plan.TokenUsage = metrics.NewTokenUsage(
			s.counter.Count(prompt.System+"\n"+prompt.User),
			s.counter.Count(plan.LLMAnalysis),
		)
		metrics.RecordTokenUsage(plan.TokenUsage)
	}
	return nil
}

// persist hands the frozen plan to every sink. Failures are logged only.
func (s *service) persist(ctx context.Context, plan RoutePlan, logger *slog.Logger) {
	if len(s.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, plan); err != nil {
			metrics.RecordSinkFailure(sink.Name())
			logger.Error("plan sink failed", "sink", sink.Name(), "error", err)
		}
	}
}

func (s *service) Forecast(ctx context.Context, location Location, start time.Time, hours int) ([]WeatherForecast, error) {
	if err := ValidateLocation(location); err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = s.cfg.ForecastHours
	}
	if start.IsZero() {
		start = util.HourFloor(s.now())
	}
	forecasts, err := s.weather.Forecast(ctx, location, start, hours)
	if err != nil {
		return nil, apperrors.Wrap(CodeUpstreamUnavailable, "weather provider unavailable", err)
	}
	if forecasts == nil {
		forecasts = []WeatherForecast{}
	}
	return forecasts, nil
}

func (s *service) Geocode(ctx context.Context, query, country string) ([]GeocodeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Wrap(CodeInvalidInput, "query cannot be empty", nil)
	}
	if s.geocoder == nil {
		return nil, apperrors.Wrap(CodeUpstreamUnavailable, "geocoding is not configured", nil)
	}
	results, err := s.geocoder.Geocode(ctx, query, strings.TrimSpace(country))
	if err != nil {
		if apperrors.IsCode(err, CodeInvalidInput) || apperrors.IsCode(err, CodeNotFound) {
			return nil, err
		}
		return nil, apperrors.Wrap(CodeUpstreamUnavailable, "geocoding provider unavailable", err)
	}
	if results == nil {
		results = []GeocodeResult{}
	}
	return results, nil
}
