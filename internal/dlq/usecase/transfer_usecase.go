package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/dlq/domain"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
	outboxusecase "github.com/allisson/outbox/internal/outbox/usecase"
)

// TransferUseCase implements the bidirectional move protocol between the
// outbox and the dead letter table. It is the only actor allowed to move a
// row between the two tables, always insert-into-target then
// delete-from-source inside one transaction.
type TransferUseCase struct {
	txManager  database.TxManager
	outboxRepo outboxusecase.OutboxEventRepository
	dlqRepo    DlqEventRepository
	notifier   TransferNotifier
	logger     *slog.Logger
}

// NewTransferUseCase creates a new TransferUseCase. The notifier is optional;
// pass nil when no post-move alerting is wired.
func NewTransferUseCase(
	txManager database.TxManager,
	outboxRepo outboxusecase.OutboxEventRepository,
	dlqRepo DlqEventRepository,
	notifier TransferNotifier,
	logger *slog.Logger,
) *TransferUseCase {
	return &TransferUseCase{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		dlqRepo:    dlqRepo,
		notifier:   notifier,
		logger:     logger,
	}
}

// TransferToDlq moves up to batchSize FAILED outbox events into the dead
// letter table as NEW letters. Insert and delete commit together; a failure
// at any step aborts the whole move. After commit the notifier receives the
// moved letters best effort.
func (uc *TransferUseCase) TransferToDlq(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, outboxdomain.ErrInvalidBatchSize
	}

	var moved []*domain.DlqEvent

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.outboxRepo.FindBatchAndLock(ctx, outboxdomain.OutboxEventStatusFailed, batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		now := time.Now().UTC()
		moved = make([]*domain.DlqEvent, len(events))
		for i, event := range events {
			letter := &domain.DlqEvent{
				OutboxEvent: *event,
				DlqStatus:   domain.DlqEventStatusNew,
				MovedAt:     now,
			}
			letter.UpdatedAt = now
			moved[i] = letter
		}

		if err := uc.dlqRepo.CreateBatch(ctx, moved); err != nil {
			return err
		}
		return uc.outboxRepo.DeleteBatch(ctx, eventIDs(events))
	})
	if err != nil {
		return 0, err
	}

	if len(moved) > 0 {
		uc.logger.Warn("moved failed outbox events to the dead letter table",
			slog.Int("count", len(moved)),
		)
		uc.notifyMoved(ctx, moved)
	}

	return len(moved), nil
}

// TransferFromDlq moves up to batchSize TO_RETRY letters back to the outbox.
// The reinserted events carry a fresh retry budget: status PENDING and
// retry count zero. The original created_at survives for audit and ordering;
// updated_at is stamped anew.
func (uc *TransferUseCase) TransferFromDlq(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, outboxdomain.ErrInvalidBatchSize
	}

	var count int

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		letters, err := uc.dlqRepo.FindBatchAndLock(ctx, domain.DlqEventStatusToRetry, batchSize)
		if err != nil {
			return err
		}
		if len(letters) == 0 {
			return nil
		}

		now := time.Now().UTC()
		events := make([]*outboxdomain.OutboxEvent, len(letters))
		for i, letter := range letters {
			event := letter.OutboxEvent
			event.Status = outboxdomain.OutboxEventStatusPending
			event.RetryCount = 0
			event.NextRetryAt = nil
			event.UpdatedAt = now
			events[i] = &event
		}

		if err := uc.outboxRepo.CreateBatch(ctx, events); err != nil {
			return err
		}
		if err := uc.dlqRepo.DeleteBatch(ctx, dlqEventIDs(letters)); err != nil {
			return err
		}

		count = len(letters)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		uc.logger.Info("moved dead letters back to the outbox", slog.Int("count", count))
	}

	return count, nil
}

// notifyMoved invokes the notifier after a committed move. Errors and panics
// are logged and swallowed; the move already happened.
func (uc *TransferUseCase) notifyMoved(ctx context.Context, moved []*domain.DlqEvent) {
	if uc.notifier == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("transfer notifier panicked", slog.Any("panic", r))
		}
	}()

	if err := uc.notifier.NotifyMoved(ctx, moved); err != nil {
		uc.logger.Error("transfer notifier failed", slog.Any("error", err))
	}
}

// eventIDs collects the ids of the given outbox events.
func eventIDs(events []*outboxdomain.OutboxEvent) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	return ids
}
