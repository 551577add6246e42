package commands

import (
	"context"
	"fmt"
	"io"

	dlqDomain "github.com/allisson/outbox/internal/dlq/domain"
	dlqUsecase "github.com/allisson/outbox/internal/dlq/usecase"
	outboxDomain "github.com/allisson/outbox/internal/outbox/domain"
	outboxUsecase "github.com/allisson/outbox/internal/outbox/usecase"
)

// RunOutboxStats prints the outbox event counts, total and per status.
// Supports text and JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunOutboxStats(
	ctx context.Context,
	useCase outboxUsecase.UseCase,
	out io.Writer,
	format string,
) error {
	total, err := useCase.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count outbox events: %w", err)
	}

	statuses := []outboxDomain.OutboxEventStatus{
		outboxDomain.OutboxEventStatusPending,
		outboxDomain.OutboxEventStatusInProcess,
		outboxDomain.OutboxEventStatusProcessed,
		outboxDomain.OutboxEventStatusFailed,
	}

	byStatus := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		count, err := useCase.CountByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to count outbox events by status %s: %w", status, err)
		}
		byStatus[string(status)] = count
	}

	if format == "json" {
		return writeJSON(out, map[string]any{
			"total":     total,
			"by_status": byStatus,
		})
	}

	fmt.Fprintf(out, "Outbox events: %d\n", total)
	for _, status := range statuses {
		fmt.Fprintf(out, "  %s: %d\n", status, byStatus[string(status)])
	}
	return nil
}

// RunDlqStats prints the dead letter counts, total and per triage state.
// Supports text and JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunDlqStats(
	ctx context.Context,
	useCase dlqUsecase.UseCase,
	out io.Writer,
	format string,
) error {
	total, err := useCase.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count dead letters: %w", err)
	}

	statuses := []dlqDomain.DlqEventStatus{
		dlqDomain.DlqEventStatusNew,
		dlqDomain.DlqEventStatusInProcess,
		dlqDomain.DlqEventStatusToRetry,
		dlqDomain.DlqEventStatusResolved,
		dlqDomain.DlqEventStatusMoved,
	}

	byStatus := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		count, err := useCase.CountByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to count dead letters by status %s: %w", status, err)
		}
		byStatus[string(status)] = count
	}

	if format == "json" {
		return writeJSON(out, map[string]any{
			"total":     total,
			"by_status": byStatus,
		})
	}

	fmt.Fprintf(out, "Dead letters: %d\n", total)
	for _, status := range statuses {
		fmt.Fprintf(out, "  %s: %d\n", status, byStatus[string(status)])
	}
	return nil
}
