// Package repository provides data persistence implementations for consumed
// event records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/outbox/internal/consumer/domain"
	"github.com/allisson/outbox/internal/database"
	apperrors "github.com/allisson/outbox/internal/errors"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// PostgreSQLConsumedEventRepository implements consumed-id persistence for
// PostgreSQL. The insert-if-absent primitive rides the primary key
// constraint, so the check and the mark are one atomic statement.
type PostgreSQLConsumedEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLConsumedEventRepository creates a new PostgreSQLConsumedEventRepository.
func NewPostgreSQLConsumedEventRepository(db *sql.DB) *PostgreSQLConsumedEventRepository {
	return &PostgreSQLConsumedEventRepository{db: db}
}

// SaveIfAbsent inserts the record unless its id already exists. Returns true
// when this call performed the insert, false when the id was already present.
// Concurrent duplicate inserts never error.
func (r *PostgreSQLConsumedEventRepository) SaveIfAbsent(
	ctx context.Context,
	record *domain.ConsumedEventRecord,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO consumed_outbox_events (id, consumed_at)
			  VALUES ($1, $2)
			  ON CONFLICT (id) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, record.ID, record.ConsumedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to save consumed event record")
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read inserted row count")
	}
	return inserted == 1, nil
}

// SaveIfAbsentBatch inserts the records whose ids are not yet present and
// returns the ids this call inserted. Ids found by the pre-check are
// skipped. A uniqueness violation that still occurs, meaning another
// instance inserted part of the complement between the check and the
// insert, surfaces as a ConcurrentInsertError reporting which ids raced in
// so the caller can retry the rest.
func (r *PostgreSQLConsumedEventRepository) SaveIfAbsentBatch(
	ctx context.Context,
	records []*domain.ConsumedEventRecord,
) ([]uuid.UUID, error) {
	if records == nil {
		return nil, outboxdomain.ErrNilIDBatch
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > outboxdomain.MaxBatchIDs {
		return nil, outboxdomain.ErrIDBatchTooLarge
	}

	querier := database.GetTx(ctx, r.db)

	existing, err := r.findExistingIDs(ctx, recordIDs(records))
	if err != nil {
		return nil, err
	}

	complement := make([]*domain.ConsumedEventRecord, 0, len(records))
	for _, record := range records {
		if _, ok := existing[record.ID]; !ok {
			complement = append(complement, record)
		}
	}
	if len(complement) == 0 {
		return nil, nil
	}

	query := `INSERT INTO consumed_outbox_events (id, consumed_at) VALUES `
	args := make([]any, 0, len(complement)*2)
	for i, record := range complement {
		if i > 0 {
			query += ", "
		}
		query += "($" + strconv.Itoa(i*2+1) + ", $" + strconv.Itoa(i*2+2) + ")"
		args = append(args, record.ID, record.ConsumedAt)
	}

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return nil, r.concurrentInsertError(ctx, recordIDs(complement))
		}
		return nil, apperrors.Wrap(err, "failed to save consumed event records")
	}

	return recordIDs(complement), nil
}

// concurrentInsertError re-checks which attempted ids the racing instance
// committed, so the error reports the offending subset rather than the whole
// attempt.
func (r *PostgreSQLConsumedEventRepository) concurrentInsertError(
	ctx context.Context,
	attempted []uuid.UUID,
) error {
	existing, err := r.findExistingIDs(ctx, attempted)
	if err != nil {
		return apperrors.Wrap(err, "failed to identify racing consumed event ids")
	}

	offending := make([]uuid.UUID, 0, len(existing))
	for _, id := range attempted {
		if _, ok := existing[id]; ok {
			offending = append(offending, id)
		}
	}

	return &domain.ConcurrentInsertError{
		Expected: len(attempted),
		Actual:   len(attempted) - len(offending),
		IDs:      offending,
	}
}

// findExistingIDs returns the subset of ids already present.
func (r *PostgreSQLConsumedEventRepository) findExistingIDs(
	ctx context.Context,
	ids []uuid.UUID,
) (map[uuid.UUID]struct{}, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id FROM consumed_outbox_events WHERE id = ANY($1)`

	rows, err := querier.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find existing consumed event ids")
	}
	defer rows.Close() //nolint:errcheck

	existing := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan consumed event id")
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate consumed event ids")
	}
	return existing, nil
}

// DeleteOlderThan deletes up to limit records consumed before threshold. The
// selection skips locked rows so cleanup never contends with concurrent
// consume checks. Must run inside a transaction.
func (r *PostgreSQLConsumedEventRepository) DeleteOlderThan(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM consumed_outbox_events
			  WHERE id IN (
			      SELECT id FROM consumed_outbox_events
			      WHERE consumed_at < $1
			      ORDER BY consumed_at ASC
			      LIMIT $2
			      FOR UPDATE SKIP LOCKED
			  )`

	result, err := querier.ExecContext(ctx, query, threshold, limit)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete consumed event records")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}
	return count, nil
}

// Count returns the total number of consumed event records.
func (r *PostgreSQLConsumedEventRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM consumed_outbox_events`).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count consumed event records")
	}
	return count, nil
}

// recordIDs collects the ids of the given records.
func recordIDs(records []*domain.ConsumedEventRecord) []uuid.UUID {
	ids := make([]uuid.UUID, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	return ids
}
