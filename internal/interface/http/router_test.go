package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	"github.com/yanqian/cycleroute/internal/infra/config"
	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

const planBody = `{
  "origin": {"lat": 35.6812, "lng": 139.7671, "name": "Tokyo Station"},
  "destination": {"lat": 35.6586, "lng": 139.7454},
  "preferences": {"difficulty": "moderate"},
  "departure_time": "2025-03-01T08:00:00"
}`

func TestRouter_StreamPlanSuccess(t *testing.T) {
	svc := &stubPlanner{
		planFn: func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
			require.Equal(t, "Tokyo Station", req.Origin.Name)
			require.Equal(t, planner.DifficultyModerate, req.Preferences.Difficulty)
			require.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), req.DepartureTime.Time)
			return emitAll(
				planner.Event{Type: planner.EventRouteData, Data: planner.RouteData{TotalDistanceKm: 4.2, TotalDurationMin: 17}},
				planner.Event{Type: planner.EventWeather, Data: []planner.WeatherForecast{}},
				planner.Event{Type: planner.EventToken, Data: "Ride\nearly"},
				planner.Event{Type: planner.EventDone, Data: planner.DonePayload{Status: "complete", PlanID: "plan-1", Warnings: []string{}, RecommendedGear: []string{}}},
			)
		},
	}

	recorder := performRequest(http.MethodPost, "/api/v1/plans/stream", planBody, newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{}))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))

	frames := parseFrames(t, recorder.Body.String())
	require.Len(t, frames, 4)
	require.Equal(t, []string{"route_data", "weather", "token", "done"}, []string{frames[0].event, frames[1].event, frames[2].event, frames[3].event})

	var route planner.RouteData
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &route))
	require.Equal(t, 4.2, route.TotalDistanceKm)
	require.Equal(t, "[]", frames[1].data)

	var token string
	require.NoError(t, json.Unmarshal([]byte(frames[2].data), &token))
	require.Equal(t, "Ride\nearly", token)

	var done planner.DonePayload
	require.NoError(t, json.Unmarshal([]byte(frames[3].data), &done))
	require.Equal(t, "plan-1", done.PlanID)
	require.Equal(t, "complete", done.Status)
}

func TestRouter_StreamPlanErrorEvent(t *testing.T) {
	svc := &stubPlanner{
		planFn: func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
			return emitAll(planner.Event{Type: planner.EventError, Data: planner.ErrorPayload{Code: planner.CodeInvalidInput, Message: "origin latitude out of range"}})
		},
	}

	recorder := performRequest(http.MethodPost, "/api/v1/plans/stream", planBody, newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{}))
	require.Equal(t, http.StatusOK, recorder.Code)

	frames := parseFrames(t, recorder.Body.String())
	require.Len(t, frames, 1)
	require.Equal(t, "error", frames[0].event)
	var payload planner.ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &payload))
	require.Equal(t, planner.CodeInvalidInput, payload.Code)
}

func TestRouter_StreamPlanInvalidJSON(t *testing.T) {
	svc := &stubPlanner{
		planFn: func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
			t.Fatal("planner must not run for malformed bodies")
			return nil
		},
	}

	recorder := performRequest(http.MethodPost, "/api/v1/plans/stream", `{"origin":"nowhere"}`, newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{}))
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
	require.NotEmpty(t, errBody["error"]["message"])
}

func TestRouter_StreamPlanCancelsPlannerWhenHandlerReturns(t *testing.T) {
	var cancelled atomic.Bool
	svc := &stubPlanner{
		planFn: func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
			out := make(chan planner.Event)
			go func() {
				defer close(out)
				<-ctx.Done()
				cancelled.Store(true)
			}()
			return out
		},
	}
	server := newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/stream", strings.NewReader(planBody)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the client went away")
	}
	require.True(t, cancelled.Load())
}

func TestRouter_StreamPlanOutlivesServerWriteTimeout(t *testing.T) {
	svc := &stubPlanner{
		planFn: func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
			out := make(chan planner.Event)
			go func() {
				defer close(out)
				events := []planner.Event{
					{Type: planner.EventRouteData, Data: planner.RouteData{TotalDistanceKm: 4.2}},
					{Type: planner.EventWeather, Data: []planner.WeatherForecast{}},
					{Type: planner.EventToken, Data: "Ride "},
					{Type: planner.EventToken, Data: "early"},
					{Type: planner.EventDone, Data: planner.DonePayload{Status: "complete", PlanID: "plan-1"}},
				}
				for _, ev := range events {
					select {
					case <-time.After(80 * time.Millisecond):
					case <-ctx.Done():
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out
		},
	}
	server := newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{StreamTimeout: 5 * time.Second})

	srv := httptest.NewUnstartedServer(server.Handler)
	srv.Config.WriteTimeout = 150 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/plans/stream", "application/json", strings.NewReader(planBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	frames := parseFrames(t, string(body))
	require.Len(t, frames, 5)
	require.Equal(t, "done", frames[4].event)
}

func TestRouter_StreamPlanTimeoutEndsWithError(t *testing.T) {
	svc := &stubPlanner{
		planFn: func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
			out := make(chan planner.Event, 1)
			out <- planner.Event{Type: planner.EventRouteData, Data: planner.RouteData{TotalDistanceKm: 4.2}}
			go func() {
				defer close(out)
				<-ctx.Done()
			}()
			return out
		},
	}
	server := newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{StreamTimeout: 50 * time.Millisecond})

	recorder := performRequest(http.MethodPost, "/api/v1/plans/stream", planBody, server)
	require.Equal(t, http.StatusOK, recorder.Code)

	frames := parseFrames(t, recorder.Body.String())
	require.Len(t, frames, 2)
	require.Equal(t, "route_data", frames[0].event)
	require.Equal(t, "error", frames[1].event)
	var payload planner.ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(frames[1].data), &payload))
	require.Equal(t, planner.CodeUpstreamUnavailable, payload.Code)
}

func TestRouter_ListPlans(t *testing.T) {
	history := &stubHistory{
		listFn: func(ctx context.Context, limit int) ([]planner.RoutePlan, error) {
			require.Equal(t, 2, limit)
			return []planner.RoutePlan{{ID: "b"}, {ID: "a"}}, nil
		},
	}

	recorder := performRequest(http.MethodGet, "/api/v1/plans?limit=2", "", newRouterUnderTest(t, &stubPlanner{}, history, config.HTTPConfig{}))
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data []planner.RoutePlan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "b", body.Data[0].ID)
}

func TestRouter_ListPlansRejectsBadLimit(t *testing.T) {
	history := &stubHistory{
		listFn: func(ctx context.Context, limit int) ([]planner.RoutePlan, error) {
			return nil, apperrors.Wrap(planner.CodeInvalidInput, "limit must be between 1 and 100", nil)
		},
	}
	server := newRouterUnderTest(t, &stubPlanner{}, history, config.HTTPConfig{})

	recorder := performRequest(http.MethodGet, "/api/v1/plans?limit=abc", "", server)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, "invalid_request", decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])

	recorder = performRequest(http.MethodGet, "/api/v1/plans?limit=500", "", server)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, planner.CodeInvalidInput, errBody["error"]["code"])
	require.Equal(t, "limit must be between 1 and 100", errBody["error"]["message"])
}

func TestRouter_GetPlanNotFound(t *testing.T) {
	history := &stubHistory{
		getFn: func(ctx context.Context, id string) (planner.RoutePlan, error) {
			require.Equal(t, "missing", id)
			return planner.RoutePlan{}, apperrors.Wrap(planner.CodeNotFound, "route plan not found: missing", nil)
		},
	}

	recorder := performRequest(http.MethodGet, "/api/v1/plans/missing", "", newRouterUnderTest(t, &stubPlanner{}, history, config.HTTPConfig{}))
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, planner.CodeNotFound, decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
}

func TestRouter_Forecast(t *testing.T) {
	svc := &stubPlanner{
		forecastFn: func(ctx context.Context, loc planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error) {
			require.Equal(t, 35.0, loc.Lat)
			require.Equal(t, 139.5, loc.Lng)
			require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), start)
			require.Equal(t, 24, hours)
			return []planner.WeatherForecast{{Temperature: 12, Description: "Clear sky"}}, nil
		},
	}

	recorder := performRequest(http.MethodGet, "/api/v1/weather?lat=35&lng=139.5&date=2025-03-01", "", newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{}))
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data []planner.WeatherForecast `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "Clear sky", body.Data[0].Description)
}

func TestRouter_ForecastRejectsBadQuery(t *testing.T) {
	server := newRouterUnderTest(t, &stubPlanner{}, &stubHistory{}, config.HTTPConfig{})

	for _, path := range []string{
		"/api/v1/weather?lng=139",
		"/api/v1/weather?lat=35&lng=east",
		"/api/v1/weather?lat=35&lng=139&date=yesterday",
	} {
		recorder := performRequest(http.MethodGet, path, "", server)
		require.Equal(t, http.StatusBadRequest, recorder.Code, path)
	}
}

func TestRouter_ForecastRetriesGatewayFailures(t *testing.T) {
	var calls atomic.Int32
	svc := &stubPlanner{
		forecastFn: func(ctx context.Context, loc planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error) {
			if calls.Add(1) == 1 {
				return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable, "weather provider unavailable", nil)
			}
			return []planner.WeatherForecast{{Temperature: 20}}, nil
		},
	}
	httpCfg := config.HTTPConfig{
		Retry: config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: time.Millisecond},
	}

	recorder := performRequest(http.MethodGet, "/api/v1/weather?lat=35&lng=139", "", newRouterUnderTest(t, svc, &stubHistory{}, httpCfg))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.EqualValues(t, 2, calls.Load())
}

func TestRouter_GeocodeFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not found", err: apperrors.Wrap(planner.CodeNotFound, "no results", nil), status: http.StatusNotFound, code: planner.CodeNotFound},
		{name: "upstream", err: apperrors.Wrap(planner.CodeUpstreamUnavailable, "geocoding provider unavailable", nil), status: http.StatusBadGateway, code: planner.CodeUpstreamUnavailable},
		{name: "unknown", err: io.ErrUnexpectedEOF, status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPlanner{
				geocodeFn: func(ctx context.Context, query, country string) ([]planner.GeocodeResult, error) {
					require.Equal(t, "Kyoto", query)
					require.Equal(t, "JP", country)
					return nil, tc.err
				},
			}
			recorder := performRequest(http.MethodGet, "/api/v1/geocode?query=Kyoto&country=JP", "", newRouterUnderTest(t, svc, &stubHistory{}, config.HTTPConfig{}))
			require.Equal(t, tc.status, recorder.Code)
			require.Equal(t, tc.code, decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
		})
	}
}

func TestRouter_HealthAndCORS(t *testing.T) {
	httpCfg := config.HTTPConfig{AllowedOrigins: []string{"https://ride.example.com"}}
	server := newRouterUnderTest(t, &stubPlanner{}, &stubHistory{}, httpCfg)

	recorder := performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"status":"healthy"}`, recorder.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plans/stream", nil)
	req.Header.Set("Origin", "https://ride.example.com")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://ride.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestRouter_CORSIgnoresUnknownOrigin(t *testing.T) {
	httpCfg := config.HTTPConfig{AllowedOrigins: []string{"https://ride.example.com"}}
	server := newRouterUnderTest(t, &stubPlanner{}, &stubHistory{}, httpCfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plans/stream", nil)
	req.Header.Set("Origin", "https://elsewhere.example.org")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRouter_RateLimitAppliesToUpstreamRoutes(t *testing.T) {
	httpCfg := config.HTTPConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2},
	}
	server := newRouterUnderTest(t, &stubPlanner{}, &stubHistory{}, httpCfg)

	require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/api/v1/geocode?query=Kyoto", "", server).Code)
	require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/api/v1/weather?lat=35.0&lng=135.7&date=2025-03-01", "", server).Code)

	// the bucket is shared across limited routes
	recorder := performRequest(http.MethodPost, "/api/v1/plans/stream", planBody, server)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
	require.NotEmpty(t, recorder.Header().Get("Retry-After"))

	recorder = performRequest(http.MethodGet, "/api/v1/geocode?query=Kyoto", "", server)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
}

func TestRouter_RateLimitSkipsLocalRoutes(t *testing.T) {
	httpCfg := config.HTTPConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1},
	}
	server := newRouterUnderTest(t, &stubPlanner{}, &stubHistory{}, httpCfg)

	require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/api/v1/geocode?query=Kyoto", "", server).Code)
	require.Equal(t, http.StatusTooManyRequests, performRequest(http.MethodGet, "/api/v1/geocode?query=Kyoto", "", server).Code)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/api/v1/plans", "", server).Code)
		require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/healthz", "", server).Code)
		require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/metrics", "", server).Code)
	}
}

type sseFrame struct {
	event string
	data  string
}

func parseFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, raw := range strings.Split(strings.TrimSpace(body), "\n\n") {
		lines := strings.Split(raw, "\n")
		require.Len(t, lines, 2, raw)
		require.True(t, strings.HasPrefix(lines[0], "event: "), raw)
		require.True(t, strings.HasPrefix(lines[1], "data: "), raw)
		frames = append(frames, sseFrame{
			event: strings.TrimPrefix(lines[0], "event: "),
			data:  strings.TrimPrefix(lines[1], "data: "),
		})
	}
	return frames
}

func emitAll(events ...planner.Event) <-chan planner.Event {
	out := make(chan planner.Event, len(events))
	for _, ev := range events {
		out <- ev
	}
	close(out)
	return out
}

func performRequest(method, path, body string, server *http.Server) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newRouterUnderTest(t *testing.T, svc planner.Service, history planner.HistoryService, httpCfg config.HTTPConfig) *http.Server {
	t.Helper()
	httpCfg.Address = ":0"
	httpCfg.ReadTimeout = time.Second
	httpCfg.WriteTimeout = time.Second
	cfg := &config.Config{HTTP: httpCfg}
	return NewRouter(cfg, NewHandler(cfg, svc, history, newTestLogger()))
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubPlanner struct {
	planFn     func(ctx context.Context, req planner.PlanRequest) <-chan planner.Event
	forecastFn func(ctx context.Context, loc planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error)
	geocodeFn  func(ctx context.Context, query, country string) ([]planner.GeocodeResult, error)
}

func (s *stubPlanner) Plan(ctx context.Context, req planner.PlanRequest) <-chan planner.Event {
	if s.planFn != nil {
		return s.planFn(ctx, req)
	}
	return emitAll()
}

func (s *stubPlanner) Forecast(ctx context.Context, loc planner.Location, start time.Time, hours int) ([]planner.WeatherForecast, error) {
	if s.forecastFn != nil {
		return s.forecastFn(ctx, loc, start, hours)
	}
	return []planner.WeatherForecast{}, nil
}

func (s *stubPlanner) Geocode(ctx context.Context, query, country string) ([]planner.GeocodeResult, error) {
	if s.geocodeFn != nil {
		return s.geocodeFn(ctx, query, country)
	}
	return []planner.GeocodeResult{}, nil
}

type stubHistory struct {
	listFn func(ctx context.Context, limit int) ([]planner.RoutePlan, error)
	getFn  func(ctx context.Context, id string) (planner.RoutePlan, error)
}

func (s *stubHistory) List(ctx context.Context, limit int) ([]planner.RoutePlan, error) {
	if s.listFn != nil {
		return s.listFn(ctx, limit)
	}
	return []planner.RoutePlan{}, nil
}

func (s *stubHistory) Get(ctx context.Context, id string) (planner.RoutePlan, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return planner.RoutePlan{}, nil
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
