package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/outbox/internal/errors"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// Serializer turns an application payload into an outbox event ready for
// enqueueing: it assigns the id, captures the payload type name, and encodes
// the body.
type Serializer interface {
	Serialize(eventType string, payload any) (*domain.OutboxEvent, error)
}

// JSONSerializer implements Serializer with JSON payload encoding and
// time-ordered UUIDv7 ids.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSONSerializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize builds a PENDING outbox event from the given payload.
func (s *JSONSerializer) Serialize(eventType string, payload any) (*domain.OutboxEvent, error) {
	if eventType == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "event type must not be blank")
	}
	if payload == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "payload must not be nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode payload")
	}

	now := time.Now().UTC()
	return &domain.OutboxEvent{
		ID:          uuid.Must(uuid.NewV7()),
		Status:      domain.OutboxEventStatusPending,
		EventType:   eventType,
		PayloadType: fmt.Sprintf("%T", payload),
		Payload:     string(body),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
