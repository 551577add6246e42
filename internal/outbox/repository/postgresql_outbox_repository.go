package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/outbox/internal/database"
	apperrors "github.com/allisson/outbox/internal/errors"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// PostgreSQLOutboxEventRepository implements outbox event persistence for
// PostgreSQL. Uses native UUID types with transaction support via
// database.GetTx(). Claim and cleanup queries rely on FOR UPDATE SKIP LOCKED
// so concurrent instances never block on each other's rows.
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQLOutboxEventRepository.
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{db: db}
}

const postgresOutboxColumns = `id, status, event_type, payload_type, payload, retry_count, next_retry_at, created_at, updated_at`

// Create inserts a new outbox event. Timestamps come from the event itself so
// DLQ transfers can preserve the original created_at.
func (r *PostgreSQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (` + postgresOutboxColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query,
		event.ID, event.Status, event.EventType, event.PayloadType, event.Payload,
		event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// CreateBatch inserts a batch of outbox events with a single statement.
func (r *PostgreSQLOutboxEventRepository) CreateBatch(ctx context.Context, events []*domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > domain.MaxBatchIDs {
		return domain.ErrIDBatchTooLarge
	}

	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (` + postgresOutboxColumns + `) VALUES `
	args := make([]any, 0, len(events)*9)
	for i, event := range events {
		if i > 0 {
			query += ", "
		}
		query += placeholderRow(i*9, 9)
		args = append(args,
			event.ID, event.Status, event.EventType, event.PayloadType, event.Payload,
			event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
		)
	}

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to create outbox events")
	}
	return nil
}

// FindBatchAndLock selects up to limit eligible events in creation order and
// locks them, skipping rows held by concurrent claimers. Rows whose
// next_retry_at lies in the future are not eligible. Must run inside a
// transaction so the locks survive until the caller's status update commits.
func (r *PostgreSQLOutboxEventRepository) FindBatchAndLock(
	ctx context.Context,
	status domain.OutboxEventStatus,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresOutboxColumns + `
			  FROM outbox_events
			  WHERE status = $1
			    AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			  ORDER BY created_at ASC
			  LIMIT $2
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock outbox events")
	}
	defer rows.Close() //nolint:errcheck

	return scanPostgresOutboxEvents(rows)
}

// FindBatchByEventTypeAndLock behaves like FindBatchAndLock restricted to one
// event type, backing per-type relay tasks.
func (r *PostgreSQLOutboxEventRepository) FindBatchByEventTypeAndLock(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresOutboxColumns + `
			  FROM outbox_events
			  WHERE event_type = $1
			    AND status = $2
			    AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			  ORDER BY created_at ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, eventType, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock outbox events by type")
	}
	defer rows.Close() //nolint:errcheck

	return scanPostgresOutboxEvents(rows)
}

// UpdateStatusBatch transitions all given ids to status in one statement.
func (r *PostgreSQLOutboxEventRepository) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	status domain.OutboxEventStatus,
) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events SET status = $1, updated_at = NOW() WHERE id = ANY($2)`

	if _, err := querier.ExecContext(ctx, query, status, pq.Array(ids)); err != nil {
		return apperrors.Wrap(err, "failed to update outbox event statuses")
	}
	return nil
}

// MarkRetryBatch returns the given ids to PENDING with an incremented retry
// count and the supplied next retry time.
func (r *PostgreSQLOutboxEventRepository) MarkRetryBatch(
	ctx context.Context,
	ids []uuid.UUID,
	nextRetryAt time.Time,
) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, retry_count = retry_count + 1, next_retry_at = $2, updated_at = NOW()
			  WHERE id = ANY($3)`

	if _, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusPending, nextRetryAt, pq.Array(ids)); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox events for retry")
	}
	return nil
}

// DeleteBatch hard-deletes the given ids.
func (r *PostgreSQLOutboxEventRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE id = ANY($1)`

	if _, err := querier.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return apperrors.Wrap(err, "failed to delete outbox events")
	}
	return nil
}

// DeleteProcessedOlderThan deletes up to limit PROCESSED rows last updated
// before threshold. The selection skips locked rows so cleanup never contends
// with claim or finalize traffic. Must run inside a transaction.
func (r *PostgreSQLOutboxEventRepository) DeleteProcessedOlderThan(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events
			  WHERE id IN (
			      SELECT id FROM outbox_events
			      WHERE status = $1 AND updated_at < $2
			      ORDER BY created_at ASC
			      LIMIT $3
			      FOR UPDATE SKIP LOCKED
			  )`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusProcessed, threshold, limit)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete processed outbox events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}
	return count, nil
}

// RecoverStuck resets up to limit IN_PROCESS rows last updated before
// threshold back to PENDING so they become claimable again. Rows still locked
// by a live worker are skipped. Must run inside a transaction.
func (r *PostgreSQLOutboxEventRepository) RecoverStuck(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, updated_at = NOW()
			  WHERE id IN (
			      SELECT id FROM outbox_events
			      WHERE status = $2 AND updated_at < $3
			      ORDER BY created_at ASC
			      LIMIT $4
			      FOR UPDATE SKIP LOCKED
			  )`

	result, err := querier.ExecContext(
		ctx, query,
		domain.OutboxEventStatusPending, domain.OutboxEventStatusInProcess, threshold, limit,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to recover stuck outbox events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read recovered row count")
	}
	return count, nil
}

// Count returns the total number of outbox events.
func (r *PostgreSQLOutboxEventRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events`).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count outbox events")
	}
	return count, nil
}

// CountByStatus returns the number of outbox events with the given status.
func (r *PostgreSQLOutboxEventRepository) CountByStatus(
	ctx context.Context,
	status domain.OutboxEventStatus,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count outbox events by status")
	}
	return count, nil
}

// CountByEventTypeAndStatus returns the number of outbox events with the
// given event type and status.
func (r *PostgreSQLOutboxEventRepository) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE event_type = $1 AND status = $2`,
		eventType, status,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count outbox events by type and status")
	}
	return count, nil
}

// placeholderRow builds a "($n, $n+1, ...)" group for multi-row inserts.
func placeholderRow(offset, width int) string {
	row := "("
	for i := 0; i < width; i++ {
		if i > 0 {
			row += ", "
		}
		row += "$" + strconv.Itoa(offset+i+1)
	}
	return row + ")"
}

// scanPostgresOutboxEvents scans rows in postgresOutboxColumns order.
func scanPostgresOutboxEvents(rows *sql.Rows) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent

		err := rows.Scan(
			&event.ID, &event.Status, &event.EventType, &event.PayloadType, &event.Payload,
			&event.RetryCount, &event.NextRetryAt, &event.CreatedAt, &event.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event")
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}
	return events, nil
}
