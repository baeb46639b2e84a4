package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Evaluation lifecycle event types published to interested consumers.
const (
	EventEvaluationCompleted  = "completed"
	EventEvaluationFailed     = "failed"
	EventEvaluationOverridden = "overridden"
)

// EvaluationEvent describes a state change in a document's evaluation.
type EvaluationEvent struct {
	Type         string    `json:"type"`
	DocumentID   uuid.UUID `json:"document_id"`
	UserID       uuid.UUID `json:"user_id"`
	OverallScore *int      `json:"overall_score,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher emits evaluation lifecycle events. Publication is strictly
// best-effort: a failed publish is logged and never surfaces to the workflow.
type EventPublisher interface {
	Publish(ctx context.Context, event EvaluationEvent)
}

type natsPublisher struct {
	conn        *nats.Conn
	subjectBase string
	logger      zerolog.Logger
}

// NewNATSPublisher constructs a publisher emitting to <subjectBase>.<event type>.
// A nil connection yields a silent no-op publisher.
func NewNATSPublisher(conn *nats.Conn, subjectBase string, logger zerolog.Logger) EventPublisher {
	if subjectBase == "" {
		subjectBase = "stde.evaluations"
	}

	return &natsPublisher{
		conn:        conn,
		subjectBase: subjectBase,
		logger:      logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(_ context.Context, event EvaluationEvent) {
	if p.conn == nil {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to encode evaluation event")
		return
	}

	subject := p.subjectBase + "." + event.Type
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish evaluation event")
	}
}
