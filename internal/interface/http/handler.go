package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	"github.com/yanqian/cycleroute/internal/infra/config"
)

// forecastHours is the horizon of the single point weather endpoint.
const forecastHours = 24

// streamFlushGrace leaves room to write the timeout error after the plan
// deadline passes.
const streamFlushGrace = 5 * time.Second

// Handler wires the HTTP transport to domain services.
type Handler struct {
	plannerSvc    planner.Service
	historySvc    planner.HistoryService
	streamTimeout time.Duration
	logger        *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(cfg *config.Config, plannerSvc planner.Service, historySvc planner.HistoryService, logger *slog.Logger) *Handler {
	return &Handler{
		plannerSvc:    plannerSvc,
		historySvc:    historySvc,
		streamTimeout: cfg.PlanStreamTimeout(),
		logger:        logger.With("component", "http.handler"),
	}
}

// StreamPlan plans a route and streams the result using Server-Sent Events.
func (h *Handler) StreamPlan(c *gin.Context) {
	var req planner.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	// the planner stops emitting once this context ends
	var (
		ctx           context.Context
		cancel        context.CancelFunc
		writeDeadline time.Time
	)
	if h.streamTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.Request.Context(), h.streamTimeout)
		writeDeadline = time.Now().Add(h.streamTimeout + streamFlushGrace)
	} else {
		ctx, cancel = context.WithCancel(c.Request.Context())
	}
	defer cancel()

	// the server WriteTimeout is sized for short replies; a plan stream
	// is bounded by its own deadline instead
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(writeDeadline); err != nil {
		h.logger.Debug("write deadline not adjustable", "error", err)
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	terminated := false
	for event := range h.plannerSvc.Plan(ctx, req) {
		if err := writeEvent(c.Writer, event); err != nil {
			h.logger.Info("plan stream closed by client", "error", err)
			return
		}
		flusher.Flush()
		terminated = event.Type == planner.EventDone || event.Type == planner.EventError
	}

	if !terminated && errors.Is(ctx.Err(), context.DeadlineExceeded) && c.Request.Context().Err() == nil {
		h.logger.Warn("plan stream timed out", "timeout", h.streamTimeout)
		timeout := planner.Event{Type: planner.EventError, Data: planner.ErrorPayload{
			Code:    planner.CodeUpstreamUnavailable,
			Message: "planning took too long, try again later",
		}}
		if err := writeEvent(c.Writer, timeout); err == nil {
			flusher.Flush()
		}
	}
}

func writeEvent(w gin.ResponseWriter, event planner.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.Grow(len(payload) + len(event.Type) + 16)
	b.WriteString("event: ")
	b.WriteString(string(event.Type))
	b.WriteString("\ndata: ")
	b.Write(payload)
	b.WriteString("\n\n")
	_, err = w.WriteString(b.String())
	return err
}

// ListPlans returns the newest finished plans.
func (h *Handler) ListPlans(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "limit must be an integer", err))
			return
		}
		limit = parsed
	}

	plans, err := h.historySvc.List(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

// GetPlan returns one finished plan.
func (h *Handler) GetPlan(c *gin.Context) {
	plan, err := h.historySvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// Forecast returns the hourly forecast for one point starting at the given date.
func (h *Handler) Forecast(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "lat must be a number", err))
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "lng must be a number", err))
		return
	}
	start, err := planner.ParseTimestamp(c.Query("date"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "date must be ISO 8601 (YYYY-MM-DD)", err))
		return
	}

	forecasts, err := h.plannerSvc.Forecast(c.Request.Context(), planner.Location{Lat: lat, Lng: lng}, start.UTC(), forecastHours)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": forecasts})
}

// Geocode resolves a place name into candidate locations.
func (h *Handler) Geocode(c *gin.Context) {
	country := c.DefaultQuery("country", "")
	results, err := h.plannerSvc.Geocode(c.Request.Context(), c.Query("query"), country)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
