// Package repository provides data persistence implementations for outbox events.
package repository

import (
	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// validateIDBatch enforces the batch preconditions shared by every id-set
// operation: nil sets are a validation error, empty sets are a cheap no-op,
// and oversized sets are rejected before building an IN (...) clause.
// It returns false when the caller should return immediately without I/O.
func validateIDBatch(ids []uuid.UUID) (bool, error) {
	if ids == nil {
		return false, domain.ErrNilIDBatch
	}
	if len(ids) == 0 {
		return false, nil
	}
	if len(ids) > domain.MaxBatchIDs {
		return false, domain.ErrIDBatchTooLarge
	}
	return true, nil
}
