package http

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/cycleroute/internal/infra/config"
	"github.com/yanqian/cycleroute/pkg/metrics"
)

func errorHandlingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		httpErr := asHTTPError(c.Errors.Last().Err)
		message := httpErr.Message
		if message == "" {
			message = http.StatusText(httpErr.Status)
		}

		attrs := []any{"code", httpErr.Code, "status", httpErr.Status, "route", c.FullPath(), "error", httpErr.Err}
		if httpErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
		} else {
			logger.Warn("request failed", attrs...)
		}

		c.JSON(httpErr.Status, gin.H{
			"error": gin.H{
				"code":    httpErr.Code,
				"message": message,
			},
		})
	}
}

// upstreamLimiter throttles the routes that fan out to routing, weather or
// LLM providers. History reads, health and metrics are served from local
// state and are attached without it. One bucket per client is shared across
// every limited route.
type upstreamLimiter struct {
	buckets *ipRateLimiter
	logger  *slog.Logger
}

func newUpstreamLimiter(cfg config.RateLimitConfig, logger *slog.Logger) *upstreamLimiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return &upstreamLimiter{logger: logger}
	}
	return &upstreamLimiter{buckets: newIPRateLimiter(cfg), logger: logger}
}

func (l *upstreamLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.buckets == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		wait, ok := l.buckets.allow(ip)
		if ok {
			c.Next()
			return
		}
		route := c.FullPath()
		metrics.RecordRateLimited(route)
		l.logger.Warn("rate limit exceeded", "ip", ip, "route", route, "retry_after", wait)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		abortWithError(c, NewHTTPError(http.StatusTooManyRequests, "rate_limit_exceeded", "too many planning requests, retry later", nil))
	}
}

type ipRateLimiter struct {
	visitors      map[string]*visitor
	mu            sync.Mutex
	ratePerMinute float64
	burst         float64
	ttl           time.Duration
	now           func() time.Time
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

func newIPRateLimiter(cfg config.RateLimitConfig) *ipRateLimiter {
	return &ipRateLimiter{
		visitors:      make(map[string]*visitor),
		ratePerMinute: float64(cfg.RequestsPerMinute),
		burst:         float64(cfg.Burst),
		ttl:           5 * time.Minute,
		now:           time.Now,
	}
}

// allow spends a token for ip. When none is left it reports how long until
// the next one refills.
func (l *ipRateLimiter) allow(ip string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{tokens: l.burst, lastSeen: now}
		l.visitors[ip] = v
	} else {
		elapsed := now.Sub(v.lastSeen).Minutes()
		if elapsed > 0 {
			v.tokens = math.Min(l.burst, v.tokens+elapsed*l.ratePerMinute)
		}
		v.lastSeen = now
	}
	l.cleanupLocked(now)
	if v.tokens < 1 {
		missing := 1 - v.tokens
		return time.Duration(missing / l.ratePerMinute * float64(time.Minute)), false
	}
	v.tokens--
	return 0, true
}

func (l *ipRateLimiter) cleanupLocked(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
		}
	}
}
