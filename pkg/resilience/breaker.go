package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker refuses a call because it is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Settings defines runtime options for a breaker.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	HalfOpenRequests uint32
	// Ignore marks errors that say nothing about upstream health, such as
	// a well-formed "no route" answer.
	Ignore func(err error) bool
}

// Breaker fails fast on an unhealthy upstream. It never retries.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps gobreaker with the service defaults.
func NewBreaker(settings Settings, logger *slog.Logger) *Breaker {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "resilience.breaker", "breaker", settings.Name)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a caller walking away says nothing about upstream health
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return settings.Ignore != nil && settings.Ignore(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{name: settings.Name, cb: cb}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Open reports whether calls are currently rejected.
func (b *Breaker) Open() bool {
	if b == nil || b.cb == nil {
		return false
	}
	return b.cb.State() == gobreaker.StateOpen
}

// Call runs op through the breaker. A nil breaker calls op directly.
func Call[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return op(ctx)
	}
	res, err := b.cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}
