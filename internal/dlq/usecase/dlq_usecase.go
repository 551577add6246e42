package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/dlq/domain"
	apperrors "github.com/allisson/outbox/internal/errors"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// DlqUseCase implements the dead letter lifecycle over a dialect-specific
// repository. Mutations are guarded against letters held IN_PROCESS so
// manual intervention never races an in-flight transfer.
type DlqUseCase struct {
	txManager database.TxManager
	repo      DlqEventRepository
	logger    *slog.Logger
}

// NewDlqUseCase creates a new DlqUseCase.
func NewDlqUseCase(txManager database.TxManager, repo DlqEventRepository, logger *slog.Logger) *DlqUseCase {
	return &DlqUseCase{
		txManager: txManager,
		repo:      repo,
		logger:    logger,
	}
}

// Get returns one dead letter by id.
func (uc *DlqUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error) {
	return uc.repo.Get(ctx, id)
}

// GetBatch returns the dead letters for the given id set. All missing ids
// are reported together instead of failing on the first miss.
func (uc *DlqUseCase) GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error) {
	if ids == nil {
		return nil, outboxdomain.ErrNilIDBatch
	}
	if len(ids) == 0 {
		return nil, nil
	}

	events, err := uc.repo.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	if missing := missingIDs(ids, events); len(missing) > 0 {
		return nil, &domain.BatchNotFoundError{MissingIDs: missing}
	}
	return events, nil
}

// ClaimBatch locks up to batchSize NEW letters and transitions them to
// IN_PROCESS, mirroring the outbox claim protocol.
func (uc *DlqUseCase) ClaimBatch(ctx context.Context, batchSize int) ([]*domain.DlqEvent, error) {
	if batchSize <= 0 {
		return nil, outboxdomain.ErrInvalidBatchSize
	}

	var events []*domain.DlqEvent

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		events, err = uc.repo.FindBatchAndLock(ctx, domain.DlqEventStatusNew, batchSize)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		ids := dlqEventIDs(events)
		return uc.repo.UpdateStatusBatch(ctx, ids, domain.DlqEventStatusInProcess)
	})
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		event.DlqStatus = domain.DlqEventStatusInProcess
	}

	return events, nil
}

// Release transitions an IN_PROCESS letter to TO_RETRY or RESOLVED. This is
// the holder's completion call, so the in-process guard does not apply.
func (uc *DlqUseCase) Release(ctx context.Context, id uuid.UUID, dlqStatus domain.DlqEventStatus) error {
	if dlqStatus != domain.DlqEventStatusToRetry && dlqStatus != domain.DlqEventStatusResolved {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "release target must be to_retry or resolved")
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		event, err := uc.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !event.IsInProcess() {
			return apperrors.Wrap(apperrors.ErrConflict, "dlq event is not held in process")
		}
		return uc.repo.UpdateStatus(ctx, id, dlqStatus)
	})
}

// MarkToRetry schedules a letter for transfer back to the outbox.
func (uc *DlqUseCase) MarkToRetry(ctx context.Context, id uuid.UUID) error {
	return uc.updateStatusGuarded(ctx, id, domain.DlqEventStatusToRetry)
}

// MarkToRetryBatch schedules a batch of letters for transfer back to the
// outbox.
func (uc *DlqUseCase) MarkToRetryBatch(ctx context.Context, ids []uuid.UUID) error {
	return uc.updateStatusBatchGuarded(ctx, ids, domain.DlqEventStatusToRetry)
}

// MarkResolved closes a letter handled out of band.
func (uc *DlqUseCase) MarkResolved(ctx context.Context, id uuid.UUID) error {
	return uc.updateStatusGuarded(ctx, id, domain.DlqEventStatusResolved)
}

// MarkResolvedBatch closes a batch of letters handled out of band.
func (uc *DlqUseCase) MarkResolvedBatch(ctx context.Context, ids []uuid.UUID) error {
	return uc.updateStatusBatchGuarded(ctx, ids, domain.DlqEventStatusResolved)
}

// Delete hard-deletes one letter after the in-process guard.
func (uc *DlqUseCase) Delete(ctx context.Context, id uuid.UUID) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.guard(ctx, id); err != nil {
			return err
		}
		return uc.repo.Delete(ctx, id)
	})
}

// DeleteBatch hard-deletes a batch of letters after the in-process guard.
func (uc *DlqUseCase) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.guardBatch(ctx, ids); err != nil {
			return err
		}
		return uc.repo.DeleteBatch(ctx, ids)
	})
}

// Count returns the total number of dead letters.
func (uc *DlqUseCase) Count(ctx context.Context) (int64, error) {
	return uc.repo.Count(ctx)
}

// CountByStatus returns the number of dead letters in the given triage state.
func (uc *DlqUseCase) CountByStatus(ctx context.Context, dlqStatus domain.DlqEventStatus) (int64, error) {
	return uc.repo.CountByStatus(ctx, dlqStatus)
}

func (uc *DlqUseCase) updateStatusGuarded(
	ctx context.Context,
	id uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.guard(ctx, id); err != nil {
			return err
		}
		return uc.repo.UpdateStatus(ctx, id, dlqStatus)
	})
}

func (uc *DlqUseCase) updateStatusBatchGuarded(
	ctx context.Context,
	ids []uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.guardBatch(ctx, ids); err != nil {
			return err
		}
		return uc.repo.UpdateStatusBatch(ctx, ids, dlqStatus)
	})
}

// guard verifies one letter exists and is not held IN_PROCESS. The read
// locks the row with SKIP LOCKED: a letter a concurrent claim holds is
// skipped instead of waited on, so the guarded write that follows can never
// land on a letter claimed between a snapshot read and the write.
func (uc *DlqUseCase) guard(ctx context.Context, id uuid.UUID) error {
	locked, err := uc.repo.GetBatchAndLock(ctx, []uuid.UUID{id})
	if err != nil {
		return err
	}
	if len(locked) == 0 {
		// Skipped means either absent or row-locked by a concurrent claim.
		if _, err := uc.repo.Get(ctx, id); err != nil {
			return err
		}
		return &domain.EventInProcessError{ID: id}
	}
	if locked[0].IsInProcess() {
		return &domain.EventInProcessError{ID: id}
	}
	return nil
}

// guardBatch verifies every letter in the set exists and none is held
// IN_PROCESS, locking the clean rows like guard does. Missing ids are
// reported together; an in-process or claim-held letter is reported by id.
func (uc *DlqUseCase) guardBatch(ctx context.Context, ids []uuid.UUID) error {
	if ids == nil {
		return outboxdomain.ErrNilIDBatch
	}
	if len(ids) == 0 {
		return nil
	}

	locked, err := uc.repo.GetBatchAndLock(ctx, ids)
	if err != nil {
		return err
	}

	if skipped := missingIDs(ids, locked); len(skipped) > 0 {
		present, err := uc.repo.GetBatch(ctx, skipped)
		if err != nil {
			return err
		}
		if missing := missingIDs(skipped, present); len(missing) > 0 {
			return &domain.BatchNotFoundError{MissingIDs: missing}
		}
		// Every skipped id exists, so each is held by a concurrent claim.
		return &domain.EventInProcessError{ID: present[0].ID}
	}

	for _, event := range locked {
		if event.IsInProcess() {
			return &domain.EventInProcessError{ID: event.ID}
		}
	}
	return nil
}

// missingIDs returns the requested ids absent from the found set.
func missingIDs(requested []uuid.UUID, found []*domain.DlqEvent) []uuid.UUID {
	foundSet := make(map[uuid.UUID]struct{}, len(found))
	for _, event := range found {
		foundSet[event.ID] = struct{}{}
	}

	var missing []uuid.UUID
	for _, id := range requested {
		if _, ok := foundSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// dlqEventIDs collects the ids of the given letters.
func dlqEventIDs(events []*domain.DlqEvent) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	return ids
}
