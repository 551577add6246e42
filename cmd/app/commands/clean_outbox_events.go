package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	outboxUsecase "github.com/allisson/outbox/internal/outbox/usecase"
)

// RunCleanOutboxEvents deletes processed outbox events older than the given
// TTL, in bounded batches until no eligible rows remain. Supports text and
// JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCleanOutboxEvents(
	ctx context.Context,
	useCase outboxUsecase.UseCase,
	logger *slog.Logger,
	out io.Writer,
	ttl time.Duration,
	batchSize int,
	format string,
) error {
	if ttl < 0 {
		return fmt.Errorf("ttl must not be negative, got: %s", ttl)
	}

	logger.Info("cleaning processed outbox events",
		slog.Duration("ttl", ttl),
		slog.Int("batch_size", batchSize),
	)

	var total int64
	for {
		count, err := useCase.CleanBatchByTTL(ctx, ttl, batchSize)
		if err != nil {
			return fmt.Errorf("failed to clean outbox events: %w", err)
		}
		total += count
		if count < int64(batchSize) {
			break
		}
	}

	if format == "json" {
		if err := writeJSON(out, map[string]any{
			"count": total,
			"ttl":   ttl.String(),
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Successfully deleted %d processed outbox event(s) older than %s\n", total, ttl)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", total),
		slog.Duration("ttl", ttl),
	)

	return nil
}
