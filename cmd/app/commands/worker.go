package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allisson/outbox/internal/app"
	"github.com/allisson/outbox/internal/config"
	"github.com/allisson/outbox/internal/scheduler"
)

// RunWorker starts the background worker with graceful shutdown support.
// It registers the relay, stuck-event recovery, retention cleanup, and DLQ
// transfer tasks on the shared scheduler, and exposes the Prometheus scrape
// endpoint when metrics are enabled. Blocks until receiving SIGINT/SIGTERM.
func RunWorker(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	if err := registerWorkerTasks(container, cfg); err != nil {
		return err
	}

	// Start the metrics scrape endpoint when enabled
	var metricsServer *http.Server
	serverErr := make(chan error, 1)
	if cfg.MetricsEnabled {
		provider, err := container.MetricsProvider()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics provider: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		logger.Info("metrics endpoint listening", slog.String("addr", cfg.MetricsAddr))
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sched := container.Scheduler()
	sched.Start(ctx)

	// Wait for shutdown signal or metrics server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("metrics server error, initiating shutdown", slog.Any("error", err))
	}

	sched.Stop()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
	}

	return nil
}

// registerWorkerTasks wires the periodic tasks onto the container's scheduler.
func registerWorkerTasks(container *app.Container, cfg *config.Config) error {
	relayUseCase, err := container.RelayUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize relay use case: %w", err)
	}

	outboxUseCase, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox use case: %w", err)
	}

	consumerUseCase, err := container.ConsumerUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize consumer use case: %w", err)
	}

	transferUseCase, err := container.TransferUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize transfer use case: %w", err)
	}

	sched := container.Scheduler()

	// One relay task per configured event type, or a single task claiming
	// events of any type when no types are configured.
	if len(cfg.OutboxRelayEventTypes) == 0 {
		sched.Register(scheduler.Task{
			Name:     "outbox-relay",
			Interval: cfg.OutboxRelayInterval,
			Run: func(ctx context.Context) error {
				_, err := relayUseCase.Process(ctx)
				return err
			},
		})
	} else {
		for _, eventType := range cfg.OutboxRelayEventTypes {
			sched.Register(scheduler.Task{
				Name:     "outbox-relay:" + eventType,
				Interval: cfg.OutboxRelayInterval,
				Run: func(ctx context.Context) error {
					_, err := relayUseCase.ProcessEventType(ctx, eventType)
					return err
				},
			})
		}
	}

	sched.Register(scheduler.Task{
		Name:         "outbox-recovery",
		InitialDelay: cfg.OutboxRecoveryInterval,
		Interval:     cfg.OutboxRecoveryInterval,
		Run: func(ctx context.Context) error {
			_, err := outboxUseCase.RecoverStuckBatch(ctx, cfg.OutboxStuckTimeout, cfg.OutboxRecoveryBatchSize)
			return err
		},
	})

	sched.Register(scheduler.Task{
		Name:         "outbox-cleanup",
		InitialDelay: cfg.OutboxCleanupInterval,
		Interval:     cfg.OutboxCleanupInterval,
		Run: func(ctx context.Context) error {
			_, err := outboxUseCase.CleanBatchByTTL(ctx, cfg.OutboxCleanupTTL, cfg.OutboxCleanupBatchSize)
			return err
		},
	})

	sched.Register(scheduler.Task{
		Name:         "consumed-cleanup",
		InitialDelay: cfg.ConsumedCleanupInterval,
		Interval:     cfg.ConsumedCleanupInterval,
		Run: func(ctx context.Context) error {
			_, err := consumerUseCase.CleanBatchByTTL(ctx, cfg.ConsumedCleanupTTL, cfg.ConsumedCleanupBatchSize)
			return err
		},
	})

	sched.Register(scheduler.Task{
		Name:         "dlq-transfer",
		InitialDelay: cfg.DLQTransferInterval,
		Interval:     cfg.DLQTransferInterval,
		Run: func(ctx context.Context) error {
			_, err := transferUseCase.TransferToDlq(ctx, cfg.DLQTransferBatchSize)
			return err
		},
	})

	sched.Register(scheduler.Task{
		Name:         "dlq-retry",
		InitialDelay: cfg.DLQRetryInterval,
		Interval:     cfg.DLQRetryInterval,
		Run: func(ctx context.Context) error {
			_, err := transferUseCase.TransferFromDlq(ctx, cfg.DLQRetryBatchSize)
			return err
		},
	})

	return nil
}
