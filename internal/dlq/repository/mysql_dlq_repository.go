package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/dlq/domain"
	apperrors "github.com/allisson/outbox/internal/errors"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// MySQLDlqEventRepository implements dead letter persistence for MySQL.
// Uses BINARY(16) for UUID storage with transaction support via
// database.GetTx().
type MySQLDlqEventRepository struct {
	db *sql.DB
}

// NewMySQLDlqEventRepository creates a new MySQLDlqEventRepository.
func NewMySQLDlqEventRepository(db *sql.DB) *MySQLDlqEventRepository {
	return &MySQLDlqEventRepository{db: db}
}

const mysqlDlqColumns = `id, status, event_type, payload_type, payload, retry_count, next_retry_at, created_at, updated_at, dlq_status, moved_at`

// Create inserts a new dead letter using BINARY(16) for the UUID.
func (r *MySQLDlqEventRepository) Create(ctx context.Context, event *domain.DlqEvent) error {
	querier := database.GetTx(ctx, r.db)

	id, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dlq event id")
	}

	query := `INSERT INTO outbox_dlq_events (` + mysqlDlqColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query,
		id, event.Status, event.EventType, event.PayloadType, event.Payload,
		event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
		event.DlqStatus, event.MovedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create dlq event")
	}
	return nil
}

// CreateBatch inserts a batch of dead letters with a single statement.
func (r *MySQLDlqEventRepository) CreateBatch(ctx context.Context, events []*domain.DlqEvent) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > outboxdomain.MaxBatchIDs {
		return outboxdomain.ErrIDBatchTooLarge
	}

	querier := database.GetTx(ctx, r.db)

	rows := make([]string, len(events))
	args := make([]any, 0, len(events)*11)
	for i, event := range events {
		id, err := event.ID.MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal dlq event id")
		}
		rows[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			id, event.Status, event.EventType, event.PayloadType, event.Payload,
			event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
			event.DlqStatus, event.MovedAt,
		)
	}

	query := `INSERT INTO outbox_dlq_events (` + mysqlDlqColumns + `) VALUES ` + strings.Join(rows, ", ")

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to create dlq events")
	}
	return nil
}

// Get returns one dead letter by id.
func (r *MySQLDlqEventRepository) Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error) {
	querier := database.GetTx(ctx, r.db)

	binaryID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal dlq event id")
	}

	query := `SELECT ` + mysqlDlqColumns + ` FROM outbox_dlq_events WHERE id = ?`

	var (
		event domain.DlqEvent
		rawID []byte
	)
	err = querier.QueryRowContext(ctx, query, binaryID).Scan(
		&rawID, &event.Status, &event.EventType, &event.PayloadType, &event.Payload,
		&event.RetryCount, &event.NextRetryAt, &event.CreatedAt, &event.UpdatedAt,
		&event.DlqStatus, &event.MovedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.EventNotFoundError{ID: id}
		}
		return nil, apperrors.Wrap(err, "failed to get dlq event")
	}

	parsed, err := uuid.FromBytes(rawID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse dlq event id")
	}
	event.ID = parsed

	return &event, nil
}

// GetBatch returns the dead letters matching the given id set, in creation
// order. Missing ids are not an error at this layer.
func (r *MySQLDlqEventRepository) GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error) {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return nil, err
	}

	querier := database.GetTx(ctx, r.db)

	args, err := marshalUUIDs(ids)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + mysqlDlqColumns + `
			  FROM outbox_dlq_events
			  WHERE id IN (` + inPlaceholders(len(ids)) + `)
			  ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get dlq events")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLDlqEvents(rows)
}

// GetBatchAndLock returns the dead letters matching the given id set and
// locks them, skipping rows held by a concurrent transaction. A skipped row
// is simply absent from the result. Must run inside a transaction.
func (r *MySQLDlqEventRepository) GetBatchAndLock(
	ctx context.Context,
	ids []uuid.UUID,
) ([]*domain.DlqEvent, error) {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return nil, err
	}

	querier := database.GetTx(ctx, r.db)

	args, err := marshalUUIDs(ids)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + mysqlDlqColumns + `
			  FROM outbox_dlq_events
			  WHERE id IN (` + inPlaceholders(len(ids)) + `)
			  ORDER BY created_at ASC
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock dlq events")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLDlqEvents(rows)
}

// FindBatchAndLock selects up to limit dead letters in the given triage state
// in creation order and locks them, skipping rows held by concurrent workers.
// Must run inside a transaction.
func (r *MySQLDlqEventRepository) FindBatchAndLock(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
	limit int,
) ([]*domain.DlqEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlDlqColumns + `
			  FROM outbox_dlq_events
			  WHERE dlq_status = ?
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, dlqStatus, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock dlq events")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLDlqEvents(rows)
}

// UpdateStatus transitions one dead letter to the given triage state.
func (r *MySQLDlqEventRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	querier := database.GetTx(ctx, r.db)

	binaryID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dlq event id")
	}

	query := `UPDATE outbox_dlq_events SET dlq_status = ?, updated_at = NOW(6) WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, dlqStatus, binaryID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update dlq event status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read updated row count")
	}
	if affected == 0 {
		return &domain.EventNotFoundError{ID: id}
	}
	return nil
}

// UpdateStatusBatch transitions all given ids to the given triage state in
// one statement.
func (r *MySQLDlqEventRepository) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	args, err := marshalUUIDs(ids)
	if err != nil {
		return err
	}

	query := `UPDATE outbox_dlq_events
			  SET dlq_status = ?, updated_at = NOW(6)
			  WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	if _, err := querier.ExecContext(ctx, query, append([]any{dlqStatus}, args...)...); err != nil {
		return apperrors.Wrap(err, "failed to update dlq event statuses")
	}
	return nil
}

// Delete hard-deletes one dead letter.
func (r *MySQLDlqEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	binaryID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dlq event id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM outbox_dlq_events WHERE id = ?`, binaryID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete dlq event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read deleted row count")
	}
	if affected == 0 {
		return &domain.EventNotFoundError{ID: id}
	}
	return nil
}

// DeleteBatch hard-deletes the given ids.
func (r *MySQLDlqEventRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	args, err := marshalUUIDs(ids)
	if err != nil {
		return err
	}

	query := `DELETE FROM outbox_dlq_events WHERE id IN (` + inPlaceholders(len(ids)) + `)`

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to delete dlq events")
	}
	return nil
}

// Count returns the total number of dead letters.
func (r *MySQLDlqEventRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_dlq_events`).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count dlq events")
	}
	return count, nil
}

// CountByStatus returns the number of dead letters in the given triage state.
func (r *MySQLDlqEventRepository) CountByStatus(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(
		ctx, `SELECT COUNT(*) FROM outbox_dlq_events WHERE dlq_status = ?`, dlqStatus,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count dlq events by status")
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

// scanMySQLDlqEvents scans rows in mysqlDlqColumns order, decoding
// BINARY(16) ids.
func scanMySQLDlqEvents(rows *sql.Rows) ([]*domain.DlqEvent, error) {
	var events []*domain.DlqEvent
	for rows.Next() {
		var (
			event domain.DlqEvent
			id    []byte
		)

		err := rows.Scan(
			&id, &event.Status, &event.EventType, &event.PayloadType, &event.Payload,
			&event.RetryCount, &event.NextRetryAt, &event.CreatedAt, &event.UpdatedAt,
			&event.DlqStatus, &event.MovedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dlq event")
		}

		parsed, err := uuid.FromBytes(id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse dlq event id")
		}
		event.ID = parsed

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dlq events")
	}
	return events, nil
}
