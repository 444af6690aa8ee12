package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"clubhub/internal/logging"
)

func main() {
	logging.Init(logging.Config{Level: "warn", Format: "console"})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
