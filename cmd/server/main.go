package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"microfeed/feedsvc/internal/app"
	"microfeed/feedsvc/internal/config"
	"microfeed/feedsvc/internal/observability"
)

func main() {
	if err := run(); err != nil {
		reportExit(os.Stderr, err)
		os.Exit(1)
	}
}

// reportExit logs in the same JSON format as the running service.
func reportExit(w io.Writer, err error) {
	observability.NewLoggerTo(w, slog.LevelInfo).Error("microfeed exited", "error", err)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return a.Run(ctx)
}
