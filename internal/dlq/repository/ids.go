package repository

import (
	"strconv"

	"github.com/google/uuid"

	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// validateIDBatch enforces the batch preconditions shared by every id-set
// operation: nil sets are a validation error, empty sets are a cheap no-op,
// and oversized sets are rejected before building an IN (...) clause.
// It returns false when the caller should return immediately without I/O.
func validateIDBatch(ids []uuid.UUID) (bool, error) {
	if ids == nil {
		return false, outboxdomain.ErrNilIDBatch
	}
	if len(ids) == 0 {
		return false, nil
	}
	if len(ids) > outboxdomain.MaxBatchIDs {
		return false, outboxdomain.ErrIDBatchTooLarge
	}
	return true, nil
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
