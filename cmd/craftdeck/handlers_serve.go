package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftdeck/craftdeck/internal/config"
	"github.com/craftdeck/craftdeck/internal/panel"
)

// runServe implements the serve command: configuration loading, daemon
// assembly and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	slog.Info("starting Craftdeck panel",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("config file not found, using defaults", "path", configPath)
			cfg = config.Default()
		} else {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	p, err := panel.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build panel: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := p.Run(runCtx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Close(closeCtx); err != nil {
		slog.Warn("shutdown cleanup error", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("panel stopped")
	return nil
}
