package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/outbox/internal/dlq/domain"
	apperrors "github.com/allisson/outbox/internal/errors"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockDlqEventRepository is a mock implementation of DlqEventRepository.
type MockDlqEventRepository struct {
	mock.Mock
}

func (m *MockDlqEventRepository) Create(ctx context.Context, event *domain.DlqEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDlqEventRepository) CreateBatch(ctx context.Context, events []*domain.DlqEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockDlqEventRepository) Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DlqEvent), args.Error(1)
}

func (m *MockDlqEventRepository) GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DlqEvent), args.Error(1)
}

func (m *MockDlqEventRepository) GetBatchAndLock(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DlqEvent), args.Error(1)
}

func (m *MockDlqEventRepository) FindBatchAndLock(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
	limit int,
) ([]*domain.DlqEvent, error) {
	args := m.Called(ctx, dlqStatus, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DlqEvent), args.Error(1)
}

func (m *MockDlqEventRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	args := m.Called(ctx, id, dlqStatus)
	return args.Error(0)
}

func (m *MockDlqEventRepository) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	args := m.Called(ctx, ids, dlqStatus)
	return args.Error(0)
}

func (m *MockDlqEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDlqEventRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDlqEventRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDlqEventRepository) CountByStatus(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
) (int64, error) {
	args := m.Called(ctx, dlqStatus)
	return args.Get(0).(int64), args.Error(1)
}

func newTestDlqUseCase() (*DlqUseCase, *MockTxManager, *MockDlqEventRepository) {
	txManager := &MockTxManager{}
	repo := &MockDlqEventRepository{}
	uc := NewDlqUseCase(txManager, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return uc, txManager, repo
}

func testLetter(dlqStatus domain.DlqEventStatus) *domain.DlqEvent {
	return &domain.DlqEvent{
		OutboxEvent: outboxdomain.OutboxEvent{
			ID:          uuid.Must(uuid.NewV7()),
			Status:      outboxdomain.OutboxEventStatusFailed,
			EventType:   "order-created",
			PayloadType: "orders.OrderCreated",
			Payload:     `{"order_id":"123"}`,
			RetryCount:  3,
		},
		DlqStatus: dlqStatus,
	}
}

func TestDlqUseCase_GetBatch(t *testing.T) {
	t.Run("nil id set", func(t *testing.T) {
		uc, _, _ := newTestDlqUseCase()

		_, err := uc.GetBatch(context.Background(), nil)
		assert.ErrorIs(t, err, outboxdomain.ErrNilIDBatch)
	})

	t.Run("all missing ids reported together", func(t *testing.T) {
		uc, _, repo := newTestDlqUseCase()

		found := testLetter(domain.DlqEventStatusNew)
		missingA := uuid.Must(uuid.NewV7())
		missingB := uuid.Must(uuid.NewV7())
		ids := []uuid.UUID{found.ID, missingA, missingB}

		repo.On("GetBatch", mock.Anything, ids).Return([]*domain.DlqEvent{found}, nil)

		_, err := uc.GetBatch(context.Background(), ids)

		var notFound *domain.BatchNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.ElementsMatch(t, []uuid.UUID{missingA, missingB}, notFound.MissingIDs)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("full batch found", func(t *testing.T) {
		uc, _, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusNew)
		ids := []uuid.UUID{letter.ID}

		repo.On("GetBatch", mock.Anything, ids).Return([]*domain.DlqEvent{letter}, nil)

		events, err := uc.GetBatch(context.Background(), ids)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestDlqUseCase_ClaimBatch(t *testing.T) {
	uc, txManager, repo := newTestDlqUseCase()

	letter := testLetter(domain.DlqEventStatusNew)

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	repo.On("FindBatchAndLock", mock.Anything, domain.DlqEventStatusNew, 10).
		Return([]*domain.DlqEvent{letter}, nil)
	repo.On("UpdateStatusBatch", mock.Anything, []uuid.UUID{letter.ID}, domain.DlqEventStatusInProcess).
		Return(nil)

	events, err := uc.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.DlqEventStatusInProcess, events[0].DlqStatus)
	repo.AssertExpectations(t)
}

func TestDlqUseCase_Release(t *testing.T) {
	t.Run("invalid target state", func(t *testing.T) {
		uc, _, _ := newTestDlqUseCase()

		err := uc.Release(context.Background(), uuid.Must(uuid.NewV7()), domain.DlqEventStatusNew)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("letter not held", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusNew)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("Get", mock.Anything, letter.ID).Return(letter, nil)

		err := uc.Release(context.Background(), letter.ID, domain.DlqEventStatusResolved)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("held letter released to to_retry", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusInProcess)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("Get", mock.Anything, letter.ID).Return(letter, nil)
		repo.On("UpdateStatus", mock.Anything, letter.ID, domain.DlqEventStatusToRetry).Return(nil)

		err := uc.Release(context.Background(), letter.ID, domain.DlqEventStatusToRetry)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestDlqUseCase_MarkToRetry(t *testing.T) {
	t.Run("missing letter", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		id := uuid.Must(uuid.NewV7())

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, []uuid.UUID{id}).Return([]*domain.DlqEvent{}, nil)
		repo.On("Get", mock.Anything, id).Return(nil, &domain.EventNotFoundError{ID: id})

		err := uc.MarkToRetry(context.Background(), id)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("in-process letter is protected", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusInProcess)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, []uuid.UUID{letter.ID}).
			Return([]*domain.DlqEvent{letter}, nil)

		err := uc.MarkToRetry(context.Background(), letter.ID)

		var inProcess *domain.EventInProcessError
		require.ErrorAs(t, err, &inProcess)
		assert.Equal(t, letter.ID, inProcess.ID)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("new letter scheduled for retry", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusNew)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, []uuid.UUID{letter.ID}).
			Return([]*domain.DlqEvent{letter}, nil)
		repo.On("UpdateStatus", mock.Anything, letter.ID, domain.DlqEventStatusToRetry).Return(nil)

		err := uc.MarkToRetry(context.Background(), letter.ID)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestDlqUseCase_MarkResolved(t *testing.T) {
	t.Run("letter claimed by a concurrent worker is protected", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		// The letter looked NEW before the guard ran, but a worker's claim
		// transaction holds its row lock: the locking read skips it while a
		// plain read still finds it.
		letter := testLetter(domain.DlqEventStatusNew)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, []uuid.UUID{letter.ID}).
			Return([]*domain.DlqEvent{}, nil)
		repo.On("Get", mock.Anything, letter.ID).Return(letter, nil)

		err := uc.MarkResolved(context.Background(), letter.ID)

		var inProcess *domain.EventInProcessError
		require.ErrorAs(t, err, &inProcess)
		assert.Equal(t, letter.ID, inProcess.ID)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("new letter resolved", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusNew)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, []uuid.UUID{letter.ID}).
			Return([]*domain.DlqEvent{letter}, nil)
		repo.On("UpdateStatus", mock.Anything, letter.ID, domain.DlqEventStatusResolved).Return(nil)

		err := uc.MarkResolved(context.Background(), letter.ID)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestDlqUseCase_MarkResolvedBatch(t *testing.T) {
	t.Run("one in-process letter blocks the whole batch", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		clean := testLetter(domain.DlqEventStatusNew)
		held := testLetter(domain.DlqEventStatusInProcess)
		ids := []uuid.UUID{clean.ID, held.ID}

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, ids).Return([]*domain.DlqEvent{clean, held}, nil)

		err := uc.MarkResolvedBatch(context.Background(), ids)

		var inProcess *domain.EventInProcessError
		require.ErrorAs(t, err, &inProcess)
		assert.Equal(t, held.ID, inProcess.ID)
		repo.AssertNotCalled(t, "UpdateStatusBatch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("letter claimed by a concurrent worker blocks the batch", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		clean := testLetter(domain.DlqEventStatusNew)
		held := testLetter(domain.DlqEventStatusNew)
		ids := []uuid.UUID{clean.ID, held.ID}

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, ids).Return([]*domain.DlqEvent{clean}, nil)
		repo.On("GetBatch", mock.Anything, []uuid.UUID{held.ID}).
			Return([]*domain.DlqEvent{held}, nil)

		err := uc.MarkResolvedBatch(context.Background(), ids)

		var inProcess *domain.EventInProcessError
		require.ErrorAs(t, err, &inProcess)
		assert.Equal(t, held.ID, inProcess.ID)
		repo.AssertNotCalled(t, "UpdateStatusBatch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("clean batch resolved", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusNew)
		ids := []uuid.UUID{letter.ID}

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, ids).Return([]*domain.DlqEvent{letter}, nil)
		repo.On("UpdateStatusBatch", mock.Anything, ids, domain.DlqEventStatusResolved).Return(nil)

		err := uc.MarkResolvedBatch(context.Background(), ids)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestDlqUseCase_DeleteBatch(t *testing.T) {
	t.Run("missing ids reported together", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		missing := uuid.Must(uuid.NewV7())
		ids := []uuid.UUID{missing}

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, ids).Return([]*domain.DlqEvent{}, nil)
		repo.On("GetBatch", mock.Anything, ids).Return([]*domain.DlqEvent{}, nil)

		err := uc.DeleteBatch(context.Background(), ids)

		var notFound *domain.BatchNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, []uuid.UUID{missing}, notFound.MissingIDs)
		repo.AssertNotCalled(t, "DeleteBatch", mock.Anything, mock.Anything)
	})

	t.Run("clean batch deleted", func(t *testing.T) {
		uc, txManager, repo := newTestDlqUseCase()

		letter := testLetter(domain.DlqEventStatusResolved)
		ids := []uuid.UUID{letter.ID}

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetBatchAndLock", mock.Anything, ids).Return([]*domain.DlqEvent{letter}, nil)
		repo.On("DeleteBatch", mock.Anything, ids).Return(nil)

		err := uc.DeleteBatch(context.Background(), ids)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestDlqUseCase_Counts(t *testing.T) {
	uc, _, repo := newTestDlqUseCase()

	repo.On("Count", mock.Anything).Return(int64(12), nil)
	repo.On("CountByStatus", mock.Anything, domain.DlqEventStatusNew).Return(int64(4), nil)

	count, err := uc.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(12), count)

	count, err = uc.CountByStatus(context.Background(), domain.DlqEventStatusNew)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
