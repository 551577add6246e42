package domain

import (
	"fmt"

	apperrors "github.com/allisson/outbox/internal/errors"
)

// Validation errors shared by the outbox repositories and managers. All of
// them classify as ErrInvalidInput and are raised before any I/O happens.
var (
	// ErrNilIDBatch indicates a nil id set was passed to a batch operation.
	ErrNilIDBatch = fmt.Errorf("%w: id batch must not be nil", apperrors.ErrInvalidInput)

	// ErrIDBatchTooLarge indicates a batch operation exceeded MaxBatchIDs ids.
	ErrIDBatchTooLarge = fmt.Errorf("%w: id batch exceeds %d ids", apperrors.ErrInvalidInput, MaxBatchIDs)

	// ErrInvalidBatchSize indicates a non-positive batch size.
	ErrInvalidBatchSize = fmt.Errorf("%w: batch size must be positive", apperrors.ErrInvalidInput)

	// ErrInvalidMaxRetryCount indicates a negative retry budget.
	ErrInvalidMaxRetryCount = fmt.Errorf("%w: max retry count must not be negative", apperrors.ErrInvalidInput)

	// ErrNilBackoffFunc indicates a retry transition was requested without a
	// backoff function.
	ErrNilBackoffFunc = fmt.Errorf("%w: backoff function must not be nil", apperrors.ErrInvalidInput)
)
