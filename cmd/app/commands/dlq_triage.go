package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	dlqUsecase "github.com/allisson/outbox/internal/dlq/usecase"
)

// RunDlqTriage applies a triage action to a batch of dead letters identified
// by a comma-separated id list. Valid actions are "retry", "resolve", and
// "delete". The action fails as a whole when any letter is missing or held
// in process by a worker.
//
// Requirements: Database must be migrated and accessible.
func RunDlqTriage(
	ctx context.Context,
	useCase dlqUsecase.UseCase,
	logger *slog.Logger,
	out io.Writer,
	idList string,
	action string,
	format string,
) error {
	ids, err := parseIDList(idList)
	if err != nil {
		return err
	}

	logger.Info("applying dlq triage action",
		slog.String("action", action),
		slog.Int("count", len(ids)),
	)

	switch action {
	case "retry":
		err = useCase.MarkToRetryBatch(ctx, ids)
	case "resolve":
		err = useCase.MarkResolvedBatch(ctx, ids)
	case "delete":
		err = useCase.DeleteBatch(ctx, ids)
	default:
		return fmt.Errorf("invalid action: %s (valid options: retry, resolve, delete)", action)
	}
	if err != nil {
		return fmt.Errorf("failed to apply action %s: %w", action, err)
	}

	if format == "json" {
		return writeJSON(out, map[string]any{
			"action": action,
			"count":  len(ids),
		})
	}

	fmt.Fprintf(out, "Successfully applied %s to %d dead letter(s)\n", action, len(ids))
	return nil
}
