package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/outbox/internal/dlq/domain"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// MockOutboxEventRepository is a mock implementation of the outbox event
// repository surface the transfer protocol uses.
type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) Create(ctx context.Context, event *outboxdomain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) CreateBatch(ctx context.Context, events []*outboxdomain.OutboxEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) FindBatchAndLock(
	ctx context.Context,
	status outboxdomain.OutboxEventStatus,
	limit int,
) ([]*outboxdomain.OutboxEvent, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxdomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) FindBatchByEventTypeAndLock(
	ctx context.Context,
	eventType string,
	status outboxdomain.OutboxEventStatus,
	limit int,
) ([]*outboxdomain.OutboxEvent, error) {
	args := m.Called(ctx, eventType, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxdomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	status outboxdomain.OutboxEventStatus,
) error {
	args := m.Called(ctx, ids, status)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) MarkRetryBatch(
	ctx context.Context,
	ids []uuid.UUID,
	nextRetryAt time.Time,
) error {
	args := m.Called(ctx, ids, nextRetryAt)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) DeleteProcessedOlderThan(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	args := m.Called(ctx, threshold, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) RecoverStuck(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	args := m.Called(ctx, threshold, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) CountByStatus(
	ctx context.Context,
	status outboxdomain.OutboxEventStatus,
) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status outboxdomain.OutboxEventStatus,
) (int64, error) {
	args := m.Called(ctx, eventType, status)
	return args.Get(0).(int64), args.Error(1)
}

// recordingNotifier captures the letters passed to NotifyMoved.
type recordingNotifier struct {
	moved []*domain.DlqEvent
	err   error
	panic bool
}

func (n *recordingNotifier) NotifyMoved(_ context.Context, events []*domain.DlqEvent) error {
	if n.panic {
		panic("notifier exploded")
	}
	n.moved = events
	return n.err
}

func newTestTransfer(notifier TransferNotifier) (*TransferUseCase, *MockTxManager, *MockOutboxEventRepository, *MockDlqEventRepository) {
	txManager := &MockTxManager{}
	outboxRepo := &MockOutboxEventRepository{}
	dlqRepo := &MockDlqEventRepository{}
	uc := NewTransferUseCase(txManager, outboxRepo, dlqRepo, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return uc, txManager, outboxRepo, dlqRepo
}

func failedOutboxEvent() *outboxdomain.OutboxEvent {
	now := time.Now().UTC().Add(-time.Hour)
	return &outboxdomain.OutboxEvent{
		ID:          uuid.Must(uuid.NewV7()),
		Status:      outboxdomain.OutboxEventStatusFailed,
		EventType:   "order-created",
		PayloadType: "orders.OrderCreated",
		Payload:     `{"order_id":"123"}`,
		RetryCount:  3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestTransferUseCase_TransferToDlq(t *testing.T) {
	t.Run("invalid batch size", func(t *testing.T) {
		uc, _, _, _ := newTestTransfer(nil)

		_, err := uc.TransferToDlq(context.Background(), 0)
		assert.ErrorIs(t, err, outboxdomain.ErrInvalidBatchSize)
	})

	t.Run("nothing to move", func(t *testing.T) {
		notifier := &recordingNotifier{}
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(notifier)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("FindBatchAndLock", mock.Anything, outboxdomain.OutboxEventStatusFailed, 10).
			Return([]*outboxdomain.OutboxEvent{}, nil)

		count, err := uc.TransferToDlq(context.Background(), 10)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Nil(t, notifier.moved)
		dlqRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("moves failed events as new letters and notifies", func(t *testing.T) {
		notifier := &recordingNotifier{}
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(notifier)

		event := failedOutboxEvent()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("FindBatchAndLock", mock.Anything, outboxdomain.OutboxEventStatusFailed, 10).
			Return([]*outboxdomain.OutboxEvent{event}, nil)
		dlqRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(letters []*domain.DlqEvent) bool {
			return len(letters) == 1 &&
				letters[0].ID == event.ID &&
				letters[0].DlqStatus == domain.DlqEventStatusNew &&
				!letters[0].MovedAt.IsZero() &&
				letters[0].CreatedAt.Equal(event.CreatedAt)
		})).Return(nil)
		outboxRepo.On("DeleteBatch", mock.Anything, []uuid.UUID{event.ID}).Return(nil)

		count, err := uc.TransferToDlq(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		require.Len(t, notifier.moved, 1)
		assert.Equal(t, event.ID, notifier.moved[0].ID)
		outboxRepo.AssertExpectations(t)
		dlqRepo.AssertExpectations(t)
	})

	t.Run("insert failure aborts the whole move", func(t *testing.T) {
		notifier := &recordingNotifier{}
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(notifier)

		event := failedOutboxEvent()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("FindBatchAndLock", mock.Anything, outboxdomain.OutboxEventStatusFailed, 10).
			Return([]*outboxdomain.OutboxEvent{event}, nil)
		dlqRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

		_, err := uc.TransferToDlq(context.Background(), 10)
		assert.Error(t, err)
		assert.Nil(t, notifier.moved)
		outboxRepo.AssertNotCalled(t, "DeleteBatch", mock.Anything, mock.Anything)
	})

	t.Run("notifier failure never fails the transfer", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("pager down")}
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(notifier)

		event := failedOutboxEvent()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("FindBatchAndLock", mock.Anything, outboxdomain.OutboxEventStatusFailed, 10).
			Return([]*outboxdomain.OutboxEvent{event}, nil)
		dlqRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("DeleteBatch", mock.Anything, []uuid.UUID{event.ID}).Return(nil)

		count, err := uc.TransferToDlq(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("notifier panic never fails the transfer", func(t *testing.T) {
		notifier := &recordingNotifier{panic: true}
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(notifier)

		event := failedOutboxEvent()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("FindBatchAndLock", mock.Anything, outboxdomain.OutboxEventStatusFailed, 10).
			Return([]*outboxdomain.OutboxEvent{event}, nil)
		dlqRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)
		outboxRepo.On("DeleteBatch", mock.Anything, []uuid.UUID{event.ID}).Return(nil)

		count, err := uc.TransferToDlq(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestTransferUseCase_TransferFromDlq(t *testing.T) {
	t.Run("invalid batch size", func(t *testing.T) {
		uc, _, _, _ := newTestTransfer(nil)

		_, err := uc.TransferFromDlq(context.Background(), -1)
		assert.ErrorIs(t, err, outboxdomain.ErrInvalidBatchSize)
	})

	t.Run("reinserts with a fresh retry budget", func(t *testing.T) {
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(nil)

		createdAt := time.Now().UTC().Add(-24 * time.Hour)
		nextRetryAt := time.Now().UTC().Add(-time.Hour)
		letter := testLetter(domain.DlqEventStatusToRetry)
		letter.CreatedAt = createdAt
		letter.NextRetryAt = &nextRetryAt
		letter.RetryCount = 5

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		dlqRepo.On("FindBatchAndLock", mock.Anything, domain.DlqEventStatusToRetry, 10).
			Return([]*domain.DlqEvent{letter}, nil)
		outboxRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(events []*outboxdomain.OutboxEvent) bool {
			return len(events) == 1 &&
				events[0].ID == letter.ID &&
				events[0].Status == outboxdomain.OutboxEventStatusPending &&
				events[0].RetryCount == 0 &&
				events[0].NextRetryAt == nil &&
				events[0].CreatedAt.Equal(createdAt) &&
				events[0].UpdatedAt.After(createdAt)
		})).Return(nil)
		dlqRepo.On("DeleteBatch", mock.Anything, []uuid.UUID{letter.ID}).Return(nil)

		count, err := uc.TransferFromDlq(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		outboxRepo.AssertExpectations(t)
		dlqRepo.AssertExpectations(t)
	})

	t.Run("delete failure aborts the whole move", func(t *testing.T) {
		uc, txManager, outboxRepo, dlqRepo := newTestTransfer(nil)

		letter := testLetter(domain.DlqEventStatusToRetry)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		dlqRepo.On("FindBatchAndLock", mock.Anything, domain.DlqEventStatusToRetry, 10).
			Return([]*domain.DlqEvent{letter}, nil)
		outboxRepo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)
		dlqRepo.On("DeleteBatch", mock.Anything, []uuid.UUID{letter.ID}).Return(errors.New("delete failed"))

		_, err := uc.TransferFromDlq(context.Background(), 10)
		assert.Error(t, err)
	})
}
