package main

import (
	"context"
	"os/signal"
	"syscall"

	"clubhub/internal/app"
	"clubhub/internal/config"
	"clubhub/internal/logging"
	"clubhub/internal/worker"
)

// Worker consumes attendance change events and appends them to the audit trail.
func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.QueueBackend != "redis" {
		logging.Fatal().Str("queue", cfg.QueueBackend).Msg("the worker needs QUEUE_BACKEND=redis; the api drains memory queues itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Warn().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	if err := worker.RunAudit(ctx, a.Queue, a.Attendance); err != nil {
		logging.Error().Err(err).Msg("queue consume failed")
	}
}
