// Package messaging defines the abstract capabilities the relay consumes:
// a broker Sender, a payload Serializer, and inbound event-id resolvers.
// Concrete broker clients live outside this module.
package messaging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// SendResult partitions a batch's per-event delivery outcomes.
type SendResult struct {
	ProcessedIDs []uuid.UUID
	FailedIDs    []uuid.UUID
}

// Sender delivers a batch of events to a topic. Per-event failures are
// reported through the result partition, never as an error; an error means
// the batch could not be attempted at all.
type Sender interface {
	Send(ctx context.Context, topic string, events []*domain.OutboxEvent) (*SendResult, error)
}

// LoggingSender is a Sender that logs events instead of delivering them.
// It reports every event as processed, which makes the worker runnable end
// to end without a broker.
type LoggingSender struct {
	logger *slog.Logger
}

// NewLoggingSender creates a new LoggingSender.
func NewLoggingSender(logger *slog.Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

// Send logs each event and reports it processed.
func (s *LoggingSender) Send(
	ctx context.Context,
	topic string,
	events []*domain.OutboxEvent,
) (*SendResult, error) {
	result := &SendResult{ProcessedIDs: make([]uuid.UUID, 0, len(events))}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			result.FailedIDs = append(result.FailedIDs, event.ID)
			continue
		}

		s.logger.Info("delivering outbox event",
			slog.String("topic", topic),
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.EventType),
		)
		result.ProcessedIDs = append(result.ProcessedIDs, event.ID)
	}

	return result, nil
}
