package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/database"
	apperrors "github.com/allisson/outbox/internal/errors"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// MySQLOutboxEventRepository implements outbox event persistence for MySQL.
// Uses BINARY(16) for UUID storage with transaction support via
// database.GetTx(). MySQL cannot combine SKIP LOCKED row selection with a
// same-table DELETE/UPDATE subquery, so the bounded cleanup and recovery
// operations run a locking select followed by a keyed statement; both belong
// to the same transaction supplied by the caller.
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a new MySQLOutboxEventRepository.
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{db: db}
}

const mysqlOutboxColumns = `id, status, event_type, payload_type, payload, retry_count, next_retry_at, created_at, updated_at`

// Create inserts a new outbox event using BINARY(16) for the UUID.
func (r *MySQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	id, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `INSERT INTO outbox_events (` + mysqlOutboxColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query,
		id, event.Status, event.EventType, event.PayloadType, event.Payload,
		event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// CreateBatch inserts a batch of outbox events with a single statement.
func (r *MySQLOutboxEventRepository) CreateBatch(ctx context.Context, events []*domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > domain.MaxBatchIDs {
		return domain.ErrIDBatchTooLarge
	}

	querier := database.GetTx(ctx, r.db)

	rows := make([]string, len(events))
	args := make([]any, 0, len(events)*9)
	for i, event := range events {
		id, err := event.ID.MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal outbox event id")
		}
		rows[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			id, event.Status, event.EventType, event.PayloadType, event.Payload,
			event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
		)
	}

	query := `INSERT INTO outbox_events (` + mysqlOutboxColumns + `) VALUES ` + strings.Join(rows, ", ")

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to create outbox events")
	}
	return nil
}

// FindBatchAndLock selects up to limit eligible events in creation order and
// locks them, skipping rows held by concurrent claimers. Must run inside a
// transaction.
func (r *MySQLOutboxEventRepository) FindBatchAndLock(
	ctx context.Context,
	status domain.OutboxEventStatus,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlOutboxColumns + `
			  FROM outbox_events
			  WHERE status = ?
			    AND (next_retry_at IS NULL OR next_retry_at <= NOW(6))
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock outbox events")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLOutboxEvents(rows)
}

// FindBatchByEventTypeAndLock behaves like FindBatchAndLock restricted to one
// event type.
func (r *MySQLOutboxEventRepository) FindBatchByEventTypeAndLock(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlOutboxColumns + `
			  FROM outbox_events
			  WHERE event_type = ?
			    AND status = ?
			    AND (next_retry_at IS NULL OR next_retry_at <= NOW(6))
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, eventType, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock outbox events by type")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLOutboxEvents(rows)
}

// UpdateStatusBatch transitions all given ids to status in one statement.
func (r *MySQLOutboxEventRepository) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	status domain.OutboxEventStatus,
) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	idArgs, err := marshalUUIDs(ids)
	if err != nil {
		return err
	}

	query := `UPDATE outbox_events SET status = ?, updated_at = NOW(6) WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	args := append([]any{status}, idArgs...)
	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to update outbox event statuses")
	}
	return nil
}

// MarkRetryBatch returns the given ids to PENDING with an incremented retry
// count and the supplied next retry time.
func (r *MySQLOutboxEventRepository) MarkRetryBatch(
	ctx context.Context,
	ids []uuid.UUID,
	nextRetryAt time.Time,
) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	idArgs, err := marshalUUIDs(ids)
	if err != nil {
		return err
	}

	query := `UPDATE outbox_events
			  SET status = ?, retry_count = retry_count + 1, next_retry_at = ?, updated_at = NOW(6)
			  WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	args := append([]any{domain.OutboxEventStatusPending, nextRetryAt}, idArgs...)
	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox events for retry")
	}
	return nil
}

// DeleteBatch hard-deletes the given ids.
func (r *MySQLOutboxEventRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	idArgs, err := marshalUUIDs(ids)
	if err != nil {
		return err
	}

	query := `DELETE FROM outbox_events WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	if _, err := querier.ExecContext(ctx, query, idArgs...); err != nil {
		return apperrors.Wrap(err, "failed to delete outbox events")
	}
	return nil
}

// DeleteProcessedOlderThan deletes up to limit PROCESSED rows last updated
// before threshold, skipping locked rows. Must run inside a transaction.
func (r *MySQLOutboxEventRepository) DeleteProcessedOlderThan(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	ids, err := r.lockIDs(ctx, domain.OutboxEventStatusProcessed, threshold, limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM outbox_events WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	result, err := querier.ExecContext(ctx, query, ids...)
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
// threshold back to PENDING, skipping rows locked by a live worker. Must run
// inside a transaction.
func (r *MySQLOutboxEventRepository) RecoverStuck(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	ids, err := r.lockIDs(ctx, domain.OutboxEventStatusInProcess, threshold, limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE outbox_events SET status = ?, updated_at = NOW(6) WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	args := append([]any{domain.OutboxEventStatusPending}, ids...)
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to recover stuck outbox events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read recovered row count")
	}
	return count, nil
}

// lockIDs selects and locks ids with the given status last updated before
// threshold, skipping rows locked elsewhere.
func (r *MySQLOutboxEventRepository) lockIDs(
	ctx context.Context,
	status domain.OutboxEventStatus,
	threshold time.Time,
	limit int,
) ([]any, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id FROM outbox_events
			  WHERE status = ? AND updated_at < ?
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, status, threshold, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock outbox event ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []any
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event id")
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox event ids")
	}
	return ids, nil
}

// Count returns the total number of outbox events.
func (r *MySQLOutboxEventRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events`).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count outbox events")
	}
	return count, nil
}

// CountByStatus returns the number of outbox events with the given status.
func (r *MySQLOutboxEventRepository) CountByStatus(
	ctx context.Context,
	status domain.OutboxEventStatus,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count outbox events by status")
	}
	return count, nil
}

// CountByEventTypeAndStatus returns the number of outbox events with the
// given event type and status.
func (r *MySQLOutboxEventRepository) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE event_type = ? AND status = ?`,
		eventType, status,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count outbox events by type and status")
	}
	return count, nil
}

// marshalUUIDs converts UUIDs to BINARY(16) query arguments.
func marshalUUIDs(ids []uuid.UUID) ([]any, error) {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal id")
		}
		args = append(args, b)
	}
	return args, nil
}

// inPlaceholders builds a "?, ?, ..." list of n placeholders.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanMySQLOutboxEvents scans rows in mysqlOutboxColumns order, decoding
// BINARY(16) ids.
func scanMySQLOutboxEvents(rows *sql.Rows) ([]*domain.OutboxEvent, error) {
	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			event domain.OutboxEvent
			id    []byte
		)

		err := rows.Scan(
			&id, &event.Status, &event.EventType, &event.PayloadType, &event.Payload,
			&event.RetryCount, &event.NextRetryAt, &event.CreatedAt, &event.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event")
		}

		parsed, err := uuid.FromBytes(id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse outbox event id")
		}
		event.ID = parsed

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}
	return events, nil
}
