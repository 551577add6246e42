// Package repository provides data persistence implementations for dead
// letter events.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/dlq/domain"
	apperrors "github.com/allisson/outbox/internal/errors"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// PostgreSQLDlqEventRepository implements dead letter persistence for
// PostgreSQL. The table carries the full outbox event snapshot plus the
// triage columns, so a letter can be moved back without consulting any
// other table.
type PostgreSQLDlqEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLDlqEventRepository creates a new PostgreSQLDlqEventRepository.
func NewPostgreSQLDlqEventRepository(db *sql.DB) *PostgreSQLDlqEventRepository {
	return &PostgreSQLDlqEventRepository{db: db}
}

const postgresDlqColumns = `id, status, event_type, payload_type, payload, retry_count, next_retry_at, created_at, updated_at, dlq_status, moved_at`

// Create inserts a new dead letter.
func (r *PostgreSQLDlqEventRepository) Create(ctx context.Context, event *domain.DlqEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_dlq_events (` + postgresDlqColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(ctx, query,
		event.ID, event.Status, event.EventType, event.PayloadType, event.Payload,
		event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
		event.DlqStatus, event.MovedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create dlq event")
	}
	return nil
}

// CreateBatch inserts a batch of dead letters with a single statement.
func (r *PostgreSQLDlqEventRepository) CreateBatch(ctx context.Context, events []*domain.DlqEvent) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > outboxdomain.MaxBatchIDs {
		return outboxdomain.ErrIDBatchTooLarge
	}

	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_dlq_events (` + postgresDlqColumns + `) VALUES `
	args := make([]any, 0, len(events)*11)
	for i, event := range events {
		if i > 0 {
			query += ", "
		}
		query += placeholderRow(i*11, 11)
		args = append(args,
			event.ID, event.Status, event.EventType, event.PayloadType, event.Payload,
			event.RetryCount, event.NextRetryAt, event.CreatedAt, event.UpdatedAt,
			event.DlqStatus, event.MovedAt,
		)
	}

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to create dlq events")
	}
	return nil
}

// Get returns one dead letter by id.
func (r *PostgreSQLDlqEventRepository) Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresDlqColumns + ` FROM outbox_dlq_events WHERE id = $1`

	var event domain.DlqEvent
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.Status, &event.EventType, &event.PayloadType, &event.Payload,
		&event.RetryCount, &event.NextRetryAt, &event.CreatedAt, &event.UpdatedAt,
		&event.DlqStatus, &event.MovedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.EventNotFoundError{ID: id}
		}
		return nil, apperrors.Wrap(err, "failed to get dlq event")
	}
	return &event, nil
}

// GetBatch returns the dead letters matching the given id set, in creation
// order. Missing ids are not an error at this layer.
func (r *PostgreSQLDlqEventRepository) GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error) {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return nil, err
	}

	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresDlqColumns + `
			  FROM outbox_dlq_events
			  WHERE id = ANY($1)
			  ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get dlq events")
	}
	defer rows.Close() //nolint:errcheck

	return scanPostgresDlqEvents(rows)
}

// GetBatchAndLock returns the dead letters matching the given id set and
// locks them, skipping rows held by a concurrent transaction. A skipped row
// is simply absent from the result. Must run inside a transaction.
func (r *PostgreSQLDlqEventRepository) GetBatchAndLock(
	ctx context.Context,
	ids []uuid.UUID,
) ([]*domain.DlqEvent, error) {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return nil, err
	}

	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresDlqColumns + `
			  FROM outbox_dlq_events
			  WHERE id = ANY($1)
			  ORDER BY created_at ASC
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock dlq events")
	}
	defer rows.Close() //nolint:errcheck

	return scanPostgresDlqEvents(rows)
}

// FindBatchAndLock selects up to limit dead letters in the given triage state
// in creation order and locks them, skipping rows held by concurrent workers.
// Must run inside a transaction.
func (r *PostgreSQLDlqEventRepository) FindBatchAndLock(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
	limit int,
) ([]*domain.DlqEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresDlqColumns + `
			  FROM outbox_dlq_events
			  WHERE dlq_status = $1
			  ORDER BY created_at ASC
			  LIMIT $2
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, dlqStatus, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock dlq events")
	}
	defer rows.Close() //nolint:errcheck

	return scanPostgresDlqEvents(rows)
}

// UpdateStatus transitions one dead letter to the given triage state.
func (r *PostgreSQLDlqEventRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_dlq_events SET dlq_status = $1, updated_at = NOW() WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, dlqStatus, id)
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
func (r *PostgreSQLDlqEventRepository) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_dlq_events SET dlq_status = $1, updated_at = NOW() WHERE id = ANY($2)`

	if _, err := querier.ExecContext(ctx, query, dlqStatus, pq.Array(ids)); err != nil {
		return apperrors.Wrap(err, "failed to update dlq event statuses")
	}
	return nil
}

// Delete hard-deletes one dead letter.
func (r *PostgreSQLDlqEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM outbox_dlq_events WHERE id = $1`, id)
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
func (r *PostgreSQLDlqEventRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	proceed, err := validateIDBatch(ids)
	if err != nil || !proceed {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM outbox_dlq_events WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return apperrors.Wrap(err, "failed to delete dlq events")
	}
	return nil
}

// Count returns the total number of dead letters.
func (r *PostgreSQLDlqEventRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_dlq_events`).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count dlq events")
	}
	return count, nil
}

// CountByStatus returns the number of dead letters in the given triage state.
func (r *PostgreSQLDlqEventRepository) CountByStatus(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(
		ctx, `SELECT COUNT(*) FROM outbox_dlq_events WHERE dlq_status = $1`, dlqStatus,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count dlq events by status")
	}
	return count, nil
}

// scanPostgresDlqEvents scans rows in postgresDlqColumns order.
func scanPostgresDlqEvents(rows *sql.Rows) ([]*domain.DlqEvent, error) {
	var events []*domain.DlqEvent
	for rows.Next() {
		var event domain.DlqEvent

		err := rows.Scan(
			&event.ID, &event.Status, &event.EventType, &event.PayloadType, &event.Payload,
			&event.RetryCount, &event.NextRetryAt, &event.CreatedAt, &event.UpdatedAt,
			&event.DlqStatus, &event.MovedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dlq event")
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dlq events")
	}
	return events, nil
}
