// Package events publishes grading domain events to NATS subjects.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectSubmissionGraded   = "submission.graded"
	SubjectSubmissionReviewed = "submission.reviewed"
	SubjectQuizCompleted      = "quiz.completed"
	SubjectPlacementCompleted = "placement.completed"
	SubjectStreakMilestone    = "streak.milestone"
)

// Publisher emits domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}

// Envelope wraps every published payload.
type Envelope struct {
	Subject       string      `json:"subject"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Payload       interface{} `json:"payload"`
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id that will be stamped on published envelopes.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// NewNATSPublisher publishes JSON envelopes to "<prefix>.<subject>". A nil
// connection yields a publisher that drops events.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) Publisher {
	if conn == nil {
		return Nop()
	}
	return &natsPublisher{
		conn:   conn,
		prefix: strings.Trim(strings.ReplaceAll(prefix, ":", "."), "."),
		logger: logger.With().Str("component", "event_publisher").Logger(),
		now:    time.Now,
	}
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}

	body, err := json.Marshal(Envelope{
		Subject:       subject,
		CorrelationID: correlationID(ctx),
		OccurredAt:    p.now().UTC(),
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	if err := p.conn.Publish(full, body); err != nil {
		return err
	}
	p.logger.Debug().Str("subject", full).Msg("event published")
	return nil
}

type nopPublisher struct{}

// Nop returns a publisher that discards every event.
func Nop() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, string, interface{}) error {
	return nil
}
