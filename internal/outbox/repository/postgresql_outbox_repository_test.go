package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/outbox/internal/outbox/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db, mock
}

func postgresEventRows(events ...*domain.OutboxEvent) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "status", "event_type", "payload_type", "payload",
		"retry_count", "next_retry_at", "created_at", "updated_at",
	})
	for _, event := range events {
		rows.AddRow(
			event.ID, event.Status, event.EventType, event.PayloadType, event.Payload,
			event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
		)
	}
	return rows
}

func testEvent(eventType string) *domain.OutboxEvent {
	now := time.Now().UTC()
	return &domain.OutboxEvent{
		ID:          uuid.Must(uuid.NewV7()),
		Status:      domain.OutboxEventStatusPending,
		EventType:   eventType,
		PayloadType: "orders.OrderCreated",
		Payload:     `{"order_id":"123"}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgreSQLOutboxEventRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	event := testEvent("order-created")

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(
			event.ID, event.Status, event.EventType, event.PayloadType, event.Payload,
			event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), event)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxEventRepository_CreateBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	t.Run("empty batch is a no-op", func(t *testing.T) {
		err := repo.CreateBatch(context.Background(), nil)
		assert.NoError(t, err)
	})

	t.Run("inserts all events in one statement", func(t *testing.T) {
		events := []*domain.OutboxEvent{testEvent("order-created"), testEvent("order-created")}

		mock.ExpectExec("INSERT INTO outbox_events").
			WillReturnResult(sqlmock.NewResult(0, 2))

		err := repo.CreateBatch(context.Background(), events)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLOutboxEventRepository_FindBatchAndLock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	event := testEvent("order-created")

	mock.ExpectQuery("SELECT (.+) FROM outbox_events").
		WithArgs(domain.OutboxEventStatusPending, 10).
		WillReturnRows(postgresEventRows(event))

	events, err := repo.FindBatchAndLock(context.Background(), domain.OutboxEventStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, domain.OutboxEventStatusPending, events[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxEventRepository_FindBatchByEventTypeAndLock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	event := testEvent("payment-settled")

	mock.ExpectQuery("SELECT (.+) FROM outbox_events").
		WithArgs("payment-settled", domain.OutboxEventStatusPending, 5).
		WillReturnRows(postgresEventRows(event))

	events, err := repo.FindBatchByEventTypeAndLock(
		context.Background(), "payment-settled", domain.OutboxEventStatusPending, 5,
	)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "payment-settled", events[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxEventRepository_UpdateStatusBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	t.Run("nil id batch is rejected without I/O", func(t *testing.T) {
		err := repo.UpdateStatusBatch(context.Background(), nil, domain.OutboxEventStatusProcessed)
		assert.ErrorIs(t, err, domain.ErrNilIDBatch)
	})

	t.Run("empty id batch is a no-op", func(t *testing.T) {
		err := repo.UpdateStatusBatch(context.Background(), []uuid.UUID{}, domain.OutboxEventStatusProcessed)
		assert.NoError(t, err)
	})

	t.Run("oversized id batch is rejected", func(t *testing.T) {
		ids := make([]uuid.UUID, domain.MaxBatchIDs+1)
		for i := range ids {
			ids[i] = uuid.Must(uuid.NewV7())
		}
		err := repo.UpdateStatusBatch(context.Background(), ids, domain.OutboxEventStatusProcessed)
		assert.ErrorIs(t, err, domain.ErrIDBatchTooLarge)
	})

	t.Run("updates statuses", func(t *testing.T) {
		ids := []uuid.UUID{uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())}

		mock.ExpectExec("UPDATE outbox_events SET status").
			WillReturnResult(sqlmock.NewResult(0, 2))

		err := repo.UpdateStatusBatch(context.Background(), ids, domain.OutboxEventStatusInProcess)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLOutboxEventRepository_MarkRetryBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	ids := []uuid.UUID{uuid.Must(uuid.NewV7())}
	nextRetryAt := time.Now().UTC().Add(time.Minute)

	mock.ExpectExec("UPDATE outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRetryBatch(context.Background(), ids, nextRetryAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxEventRepository_DeleteBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	t.Run("nil id batch is rejected", func(t *testing.T) {
		err := repo.DeleteBatch(context.Background(), nil)
		assert.ErrorIs(t, err, domain.ErrNilIDBatch)
	})

	t.Run("deletes by id set", func(t *testing.T) {
		ids := []uuid.UUID{uuid.Must(uuid.NewV7())}

		mock.ExpectExec("DELETE FROM outbox_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteBatch(context.Background(), ids)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLOutboxEventRepository_DeleteProcessedOlderThan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	mock.ExpectExec("DELETE FROM outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteProcessedOlderThan(context.Background(), time.Now().UTC(), 100)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxEventRepository_RecoverStuck(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)

	mock.ExpectExec("UPDATE outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.RecoverStuck(context.Background(), time.Now().UTC().Add(-5*time.Minute), 100)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxEventRepository_Counts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	count, err := repo.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), count)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(domain.OutboxEventStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	count, err = repo.CountByStatus(ctx, domain.OutboxEventStatusPending)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), count)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("order-created", domain.OutboxEventStatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	count, err = repo.CountByEventTypeAndStatus(ctx, "order-created", domain.OutboxEventStatusFailed)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}
