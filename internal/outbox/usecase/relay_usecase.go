package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/outbox/internal/messaging"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// Policy holds the per-event-type relay tuning knobs.
type Policy struct {
	// Topic is the destination topic. Blank means the event type name.
	Topic string
	// BatchSize is the number of events claimed per tick.
	BatchSize int
	// MaxRetryCount is the delivery retry budget.
	MaxRetryCount int
	// RetryBackoff is the base delay of the exponential backoff.
	RetryBackoff time.Duration
}

// maxRetryBackoff caps the exponential backoff growth.
const maxRetryBackoff = time.Hour

// NextRetryAt maps a retry count to the next eligible retry time using
// exponential backoff on the configured base delay.
func (p Policy) NextRetryAt(retryCount int) time.Time {
	backoff := p.RetryBackoff
	for i := 1; i < retryCount; i++ {
		backoff *= 2
		if backoff >= maxRetryBackoff {
			backoff = maxRetryBackoff
			break
		}
	}
	return time.Now().UTC().Add(backoff)
}

// TopicFor returns the destination topic for an event type.
func (p Policy) TopicFor(eventType string) string {
	if p.Topic != "" {
		return p.Topic
	}
	return eventType
}

// PolicyRegistry resolves the relay policy for an event type, falling back to
// a default policy for unregistered types.
type PolicyRegistry struct {
	defaultPolicy Policy
	policies      map[string]Policy
}

// NewPolicyRegistry creates a registry with the given default policy.
func NewPolicyRegistry(defaultPolicy Policy) *PolicyRegistry {
	return &PolicyRegistry{
		defaultPolicy: defaultPolicy,
		policies:      make(map[string]Policy),
	}
}

// Register sets the policy for an event type.
func (r *PolicyRegistry) Register(eventType string, policy Policy) {
	r.policies[eventType] = policy
}

// PolicyFor returns the policy for an event type.
func (r *PolicyRegistry) PolicyFor(eventType string) Policy {
	if policy, ok := r.policies[eventType]; ok {
		return policy
	}
	return r.defaultPolicy
}

// RelayUseCase orchestrates one relay tick: claim a batch, send it through
// the abstract Sender under an emergency timeout, and report the partitioned
// outcome back to the outbox manager.
type RelayUseCase struct {
	outbox      UseCase
	sender      messaging.Sender
	policies    *PolicyRegistry
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewRelayUseCase creates a new RelayUseCase.
func NewRelayUseCase(
	outbox UseCase,
	sender messaging.Sender,
	policies *PolicyRegistry,
	sendTimeout time.Duration,
	logger *slog.Logger,
) *RelayUseCase {
	return &RelayUseCase{
		outbox:      outbox,
		sender:      sender,
		policies:    policies,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// ProcessEventType claims and delivers one batch of the given event type.
// Returns the number of events claimed.
func (uc *RelayUseCase) ProcessEventType(ctx context.Context, eventType string) (int, error) {
	policy := uc.policies.PolicyFor(eventType)

	events, err := uc.outbox.ClaimBatchByEventType(ctx, eventType, policy.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := uc.deliver(ctx, policy.TopicFor(eventType), events, policy); err != nil {
		return len(events), err
	}
	return len(events), nil
}

// Process claims one batch of any event type and delivers it grouped by
// event type, finalizing each group under its own policy.
func (uc *RelayUseCase) Process(ctx context.Context) (int, error) {
	policy := uc.policies.defaultPolicy

	events, err := uc.outbox.ClaimBatch(ctx, policy.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	groups := make(map[string][]*domain.OutboxEvent)
	for _, event := range events {
		groups[event.EventType] = append(groups[event.EventType], event)
	}

	for eventType, group := range groups {
		groupPolicy := uc.policies.PolicyFor(eventType)
		if err := uc.deliver(ctx, groupPolicy.TopicFor(eventType), group, groupPolicy); err != nil {
			return len(events), err
		}
	}

	return len(events), nil
}

// deliver sends one claimed group and finalizes it. A send that cannot be
// attempted, including one cut off by the emergency timeout, reports every
// event in the group as failed so nothing stays IN_PROCESS waiting on an
// unresponsive broker.
func (uc *RelayUseCase) deliver(
	ctx context.Context,
	topic string,
	events []*domain.OutboxEvent,
	policy Policy,
) error {
	sendCtx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()

	result, err := uc.sender.Send(sendCtx, topic, events)
	if err != nil {
		uc.logger.Error("failed to send outbox batch",
			slog.String("topic", topic),
			slog.Int("batch_size", len(events)),
			slog.Any("error", err),
		)
		result = &messaging.SendResult{FailedIDs: eventIDs(events)}
	}

	return uc.outbox.FinalizeBatch(
		ctx, events, result.ProcessedIDs, result.FailedIDs, policy.MaxRetryCount, policy.NextRetryAt,
	)
}
