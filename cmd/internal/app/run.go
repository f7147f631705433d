package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/community.
// It returns an error instead of calling os.Exit so deferred cleanup runs.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := SetupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("otel.shutdown.fail", "err", err)
		}
	}()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
