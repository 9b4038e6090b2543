package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// Config holds NATS connection settings.
type Config struct {
	URL     string
	Name    string
	Subject string
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher announces finished plans on NATS.
type Publisher struct {
	conn    Conn
	subject string
	source  string
	logger  *slog.Logger
	closer  func()
}

// Connect dials NATS and returns a publisher that owns the connection.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	log := logger.With("component", "events.publisher")
	name := cfg.Name
	if name == "" {
		name = "cycleroute"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	p := NewPublisher(nc, cfg.Subject, name, logger)
	p.closer = nc.Close
	log.Info("nats publisher connected", "url", cfg.URL, "subject", p.subject)
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, subject, source string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = SubjectPlanCompleted
	}
	if source == "" {
		source = "cycleroute"
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		source:  source,
		logger:  logger.With("component", "events.publisher"),
	}
}

// Name implements planner.PlanSink.
func (p *Publisher) Name() string { return "events" }

// Record publishes a plans.completed event.
func (p *Publisher) Record(ctx context.Context, plan planner.RoutePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event, err := NewEvent(SubjectPlanCompleted, p.source, NewPlanCompletedData(plan))
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.logger.Debug("event published", "subject", p.subject, "event_id", event.ID, "plan_id", plan.ID)
	return nil
}

// Close drops the connection when the publisher owns it.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

var _ planner.PlanSink = (*Publisher)(nil)
