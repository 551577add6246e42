package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	dlqDomain "github.com/allisson/outbox/internal/dlq/domain"
	outboxDomain "github.com/allisson/outbox/internal/outbox/domain"
	outboxUsecase "github.com/allisson/outbox/internal/outbox/usecase"
)

// MockOutboxUseCase is a testify mock for the outbox manager interface.
type MockOutboxUseCase struct {
	mock.Mock
}

func (m *MockOutboxUseCase) Enqueue(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxUseCase) EnqueueBatch(ctx context.Context, events []*outboxDomain.OutboxEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockOutboxUseCase) ClaimBatch(ctx context.Context, batchSize int) ([]*outboxDomain.OutboxEvent, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxUseCase) ClaimBatchByEventType(
	ctx context.Context,
	eventType string,
	batchSize int,
) ([]*outboxDomain.OutboxEvent, error) {
	args := m.Called(ctx, eventType, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxUseCase) FinalizeBatch(
	ctx context.Context,
	events []*outboxDomain.OutboxEvent,
	processedIDs []uuid.UUID,
	failedIDs []uuid.UUID,
	maxRetryCount int,
	nextRetryAt outboxUsecase.BackoffFunc,
) error {
	args := m.Called(ctx, events, processedIDs, failedIDs, maxRetryCount, nextRetryAt)
	return args.Error(0)
}

func (m *MockOutboxUseCase) RecoverStuckBatch(
	ctx context.Context,
	maxProcessingTime time.Duration,
	batchSize int,
) (int64, error) {
	args := m.Called(ctx, maxProcessingTime, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxUseCase) CleanBatchByTTL(
	ctx context.Context,
	ttl time.Duration,
	batchSize int,
) (int64, error) {
	args := m.Called(ctx, ttl, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxUseCase) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxUseCase) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxUseCase) CountByStatus(
	ctx context.Context,
	status outboxDomain.OutboxEventStatus,
) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxUseCase) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status outboxDomain.OutboxEventStatus,
) (int64, error) {
	args := m.Called(ctx, eventType, status)
	return args.Get(0).(int64), args.Error(1)
}

// MockConsumerUseCase is a testify mock for the idempotent consumer interface.
type MockConsumerUseCase struct {
	mock.Mock
}

func (m *MockConsumerUseCase) IsConsumed(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockConsumerUseCase) MarkConsumedBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockConsumerUseCase) Consume(
	ctx context.Context,
	id uuid.UUID,
	fn func(ctx context.Context) error,
) error {
	args := m.Called(ctx, id, fn)
	return args.Error(0)
}

func (m *MockConsumerUseCase) CleanBatchByTTL(
	ctx context.Context,
	ttl time.Duration,
	batchSize int,
) (int64, error) {
	args := m.Called(ctx, ttl, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConsumerUseCase) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockDlqUseCase is a testify mock for the dead letter manager interface.
type MockDlqUseCase struct {
	mock.Mock
}

func (m *MockDlqUseCase) Get(ctx context.Context, id uuid.UUID) (*dlqDomain.DlqEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dlqDomain.DlqEvent), args.Error(1)
}

func (m *MockDlqUseCase) GetBatch(ctx context.Context, ids []uuid.UUID) ([]*dlqDomain.DlqEvent, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dlqDomain.DlqEvent), args.Error(1)
}

func (m *MockDlqUseCase) ClaimBatch(ctx context.Context, batchSize int) ([]*dlqDomain.DlqEvent, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dlqDomain.DlqEvent), args.Error(1)
}

func (m *MockDlqUseCase) Release(
	ctx context.Context,
	id uuid.UUID,
	dlqStatus dlqDomain.DlqEventStatus,
) error {
	args := m.Called(ctx, id, dlqStatus)
	return args.Error(0)
}

func (m *MockDlqUseCase) MarkToRetry(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDlqUseCase) MarkToRetryBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDlqUseCase) MarkResolved(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDlqUseCase) MarkResolvedBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDlqUseCase) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDlqUseCase) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDlqUseCase) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDlqUseCase) CountByStatus(
	ctx context.Context,
	dlqStatus dlqDomain.DlqEventStatus,
) (int64, error) {
	args := m.Called(ctx, dlqStatus)
	return args.Get(0).(int64), args.Error(1)
}
