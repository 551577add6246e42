// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/allisson/outbox/cmd/app/commands"
	"github.com/allisson/outbox/internal/app"
	"github.com/allisson/outbox/internal/config"
)

const version = "1.0.0"

// withContainer runs fn with a fresh DI container and shuts it down afterwards.
func withContainer(ctx context.Context, fn func(ctx context.Context, container *app.Container) error) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()

	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown container", slog.Any("error", err))
		}
	}()

	return fn(ctx, container)
}

func main() {
	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Transactional outbox worker and operator tooling",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Start the background worker (relay, recovery, cleanup, DLQ transfers)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunWorker(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					container := app.NewContainer(cfg)
					return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
				},
			},
			{
				Name:  "clean-outbox-events",
				Usage: "Delete processed outbox events older than the given TTL",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "ttl-hours",
						Aliases: []string{"t"},
						Value:   24,
						Usage:   "Delete processed events older than this many hours",
					},
					&cli.IntFlag{
						Name:    "batch-size",
						Aliases: []string{"b"},
						Value:   500,
						Usage:   "Number of rows deleted per batch",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withContainer(ctx, func(ctx context.Context, container *app.Container) error {
						useCase, err := container.OutboxUseCase()
						if err != nil {
							return err
						}
						return commands.RunCleanOutboxEvents(
							ctx,
							useCase,
							container.Logger(),
							os.Stdout,
							time.Duration(cmd.Int("ttl-hours"))*time.Hour,
							int(cmd.Int("batch-size")),
							cmd.String("format"),
						)
					})
				},
			},
			{
				Name:  "clean-consumed-events",
				Usage: "Delete consumed event records older than the given TTL",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "ttl-hours",
						Aliases: []string{"t"},
						Value:   72,
						Usage:   "Delete consumed records older than this many hours",
					},
					&cli.IntFlag{
						Name:    "batch-size",
						Aliases: []string{"b"},
						Value:   500,
						Usage:   "Number of rows deleted per batch",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withContainer(ctx, func(ctx context.Context, container *app.Container) error {
						useCase, err := container.ConsumerUseCase()
						if err != nil {
							return err
						}
						return commands.RunCleanConsumedEvents(
							ctx,
							useCase,
							container.Logger(),
							os.Stdout,
							time.Duration(cmd.Int("ttl-hours"))*time.Hour,
							int(cmd.Int("batch-size")),
							cmd.String("format"),
						)
					})
				},
			},
			{
				Name:  "outbox-stats",
				Usage: "Show outbox event counts, total and per status",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withContainer(ctx, func(ctx context.Context, container *app.Container) error {
						useCase, err := container.OutboxUseCase()
						if err != nil {
							return err
						}
						return commands.RunOutboxStats(ctx, useCase, os.Stdout, cmd.String("format"))
					})
				},
			},
			{
				Name:  "dlq-stats",
				Usage: "Show dead letter counts, total and per triage state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withContainer(ctx, func(ctx context.Context, container *app.Container) error {
						useCase, err := container.DlqUseCase()
						if err != nil {
							return err
						}
						return commands.RunDlqStats(ctx, useCase, os.Stdout, cmd.String("format"))
					})
				},
			},
			{
				Name:  "dlq-triage",
				Usage: "Apply a triage action to a batch of dead letters",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ids",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "Comma-separated list of dead letter ids (UUIDs)",
					},
					&cli.StringFlag{
						Name:     "action",
						Aliases:  []string{"a"},
						Required: true,
						Usage:    "Triage action: 'retry', 'resolve' or 'delete'",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withContainer(ctx, func(ctx context.Context, container *app.Container) error {
						useCase, err := container.DlqUseCase()
						if err != nil {
							return err
						}
						return commands.RunDlqTriage(
							ctx,
							useCase,
							container.Logger(),
							os.Stdout,
							cmd.String("ids"),
							cmd.String("action"),
							cmd.String("format"),
						)
					})
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
