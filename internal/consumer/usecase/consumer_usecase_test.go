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

	"github.com/allisson/outbox/internal/consumer/domain"
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

// MockConsumedEventRepository is a mock implementation of ConsumedEventRepository.
type MockConsumedEventRepository struct {
	mock.Mock
}

func (m *MockConsumedEventRepository) SaveIfAbsent(
	ctx context.Context,
	record *domain.ConsumedEventRecord,
) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockConsumedEventRepository) SaveIfAbsentBatch(
	ctx context.Context,
	records []*domain.ConsumedEventRecord,
) ([]uuid.UUID, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockConsumedEventRepository) DeleteOlderThan(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	args := m.Called(ctx, threshold, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConsumedEventRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func newTestConsumerUseCase() (*ConsumerUseCase, *MockTxManager, *MockConsumedEventRepository) {
	txManager := &MockTxManager{}
	repo := &MockConsumedEventRepository{}
	uc := NewConsumerUseCase(txManager, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return uc, txManager, repo
}

func TestConsumerUseCase_IsConsumed(t *testing.T) {
	t.Run("first call inserts and reports not consumed", func(t *testing.T) {
		uc, _, repo := newTestConsumerUseCase()

		id := uuid.Must(uuid.NewV7())

		repo.On("SaveIfAbsent", mock.Anything, mock.MatchedBy(func(record *domain.ConsumedEventRecord) bool {
			return record.ID == id && !record.ConsumedAt.IsZero()
		})).Return(true, nil)

		consumed, err := uc.IsConsumed(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, consumed)
	})

	t.Run("second call reports consumed", func(t *testing.T) {
		uc, _, repo := newTestConsumerUseCase()

		repo.On("SaveIfAbsent", mock.Anything, mock.Anything).Return(false, nil)

		consumed, err := uc.IsConsumed(context.Background(), uuid.Must(uuid.NewV7()))
		require.NoError(t, err)
		assert.True(t, consumed)
	})
}

func TestConsumerUseCase_MarkConsumedBatch(t *testing.T) {
	t.Run("nil id set", func(t *testing.T) {
		uc, _, _ := newTestConsumerUseCase()

		_, err := uc.MarkConsumedBatch(context.Background(), nil)
		assert.ErrorIs(t, err, outboxdomain.ErrNilIDBatch)
	})

	t.Run("empty id set is a no-op", func(t *testing.T) {
		uc, _, repo := newTestConsumerUseCase()

		marked, err := uc.MarkConsumedBatch(context.Background(), []uuid.UUID{})
		assert.NoError(t, err)
		assert.Empty(t, marked)
		repo.AssertNotCalled(t, "SaveIfAbsentBatch", mock.Anything, mock.Anything)
	})

	t.Run("returns only the newly marked ids", func(t *testing.T) {
		uc, _, repo := newTestConsumerUseCase()

		already := uuid.Must(uuid.NewV7())
		fresh := uuid.Must(uuid.NewV7())
		ids := []uuid.UUID{already, fresh}

		repo.On("SaveIfAbsentBatch", mock.Anything, mock.MatchedBy(func(records []*domain.ConsumedEventRecord) bool {
			return len(records) == 2
		})).Return([]uuid.UUID{fresh}, nil)

		marked, err := uc.MarkConsumedBatch(context.Background(), ids)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{fresh}, marked)
	})
}

func TestConsumerUseCase_Consume(t *testing.T) {
	t.Run("first consumption runs the work", func(t *testing.T) {
		uc, txManager, repo := newTestConsumerUseCase()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("SaveIfAbsent", mock.Anything, mock.Anything).Return(true, nil)

		ran := false
		err := uc.Consume(context.Background(), uuid.Must(uuid.NewV7()), func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("duplicate consumption skips the work", func(t *testing.T) {
		uc, txManager, repo := newTestConsumerUseCase()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("SaveIfAbsent", mock.Anything, mock.Anything).Return(false, nil)

		ran := false
		err := uc.Consume(context.Background(), uuid.Must(uuid.NewV7()), func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("failed work surfaces so the mark rolls back with it", func(t *testing.T) {
		uc, txManager, repo := newTestConsumerUseCase()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("SaveIfAbsent", mock.Anything, mock.Anything).Return(true, nil)

		err := uc.Consume(context.Background(), uuid.Must(uuid.NewV7()), func(context.Context) error {
			return errors.New("handler failed")
		})
		assert.Error(t, err)
	})
}

func TestConsumerUseCase_CleanBatchByTTL(t *testing.T) {
	t.Run("invalid batch size", func(t *testing.T) {
		uc, _, _ := newTestConsumerUseCase()

		_, err := uc.CleanBatchByTTL(context.Background(), time.Hour, 0)
		assert.ErrorIs(t, err, outboxdomain.ErrInvalidBatchSize)
	})

	t.Run("deletes aged records", func(t *testing.T) {
		uc, txManager, repo := newTestConsumerUseCase()

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("DeleteOlderThan", mock.Anything, mock.Anything, 200).Return(int64(8), nil)

		count, err := uc.CleanBatchByTTL(context.Background(), time.Hour, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(8), count)
	})
}
