package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/consumer/domain"
	"github.com/allisson/outbox/internal/database"
	apperrors "github.com/allisson/outbox/internal/errors"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// mysqlDuplicateEntry is the MySQL error number for duplicate key entries.
const mysqlDuplicateEntry = 1062

// MySQLConsumedEventRepository implements consumed-id persistence for MySQL.
// Uses BINARY(16) for UUID storage; INSERT IGNORE gives the atomic
// insert-if-absent primitive.
type MySQLConsumedEventRepository struct {
	db *sql.DB
}

// NewMySQLConsumedEventRepository creates a new MySQLConsumedEventRepository.
func NewMySQLConsumedEventRepository(db *sql.DB) *MySQLConsumedEventRepository {
	return &MySQLConsumedEventRepository{db: db}
}

// SaveIfAbsent inserts the record unless its id already exists. Returns true
// when this call performed the insert, false when the id was already present.
func (r *MySQLConsumedEventRepository) SaveIfAbsent(
	ctx context.Context,
	record *domain.ConsumedEventRecord,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := record.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal consumed event id")
	}

	query := `INSERT IGNORE INTO consumed_outbox_events (id, consumed_at) VALUES (?, ?)`

	result, err := querier.ExecContext(ctx, query, id, record.ConsumedAt)
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
// returns the ids this call inserted. A duplicate entry raced in by another
// instance surfaces as a ConcurrentInsertError reporting which ids raced in
// so the caller can retry the rest.
func (r *MySQLConsumedEventRepository) SaveIfAbsentBatch(
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

	rows := make([]string, len(complement))
	args := make([]any, 0, len(complement)*2)
	for i, record := range complement {
		id, err := record.ID.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal consumed event id")
		}
		rows[i] = "(?, ?)"
		args = append(args, id, record.ConsumedAt)
	}

	query := `INSERT INTO consumed_outbox_events (id, consumed_at) VALUES ` + strings.Join(rows, ", ")

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil, r.concurrentInsertError(ctx, recordIDs(complement))
		}
		return nil, apperrors.Wrap(err, "failed to save consumed event records")
	}

	return recordIDs(complement), nil
}

// concurrentInsertError re-checks which attempted ids the racing instance
// committed, so the error reports the offending subset rather than the whole
// attempt.
func (r *MySQLConsumedEventRepository) concurrentInsertError(
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
func (r *MySQLConsumedEventRepository) findExistingIDs(
	ctx context.Context,
	ids []uuid.UUID,
) (map[uuid.UUID]struct{}, error) {
	querier := database.GetTx(ctx, r.db)

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal consumed event id")
		}
		args = append(args, b)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `SELECT id FROM consumed_outbox_events WHERE id IN (` + placeholders + `)`

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find existing consumed event ids")
	}
	defer rows.Close() //nolint:errcheck

	existing := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan consumed event id")
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse consumed event id")
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate consumed event ids")
	}
	return existing, nil
}

// DeleteOlderThan deletes up to limit records consumed before threshold.
// MySQL cannot combine SKIP LOCKED selection with a same-table delete
// subquery, so the rows are locked first and deleted by id; both statements
// belong to the caller's transaction.
func (r *MySQLConsumedEventRepository) DeleteOlderThan(
	ctx context.Context,
	threshold time.Time,
	limit int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	lockQuery := `SELECT id FROM consumed_outbox_events
				  WHERE consumed_at < ?
				  ORDER BY consumed_at ASC
				  LIMIT ?
				  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, lockQuery, threshold, limit)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to lock consumed event ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []any
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return 0, apperrors.Wrap(err, "failed to scan consumed event id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, apperrors.Wrap(err, "failed to iterate consumed event ids")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	deleteQuery := `DELETE FROM consumed_outbox_events WHERE id IN (` + placeholders + `)`

	result, err := querier.ExecContext(ctx, deleteQuery, ids...)
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
func (r *MySQLConsumedEventRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM consumed_outbox_events`).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count consumed event records")
	}
	return count, nil
}
