package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/tts-platform/internal/app"
	"github.com/suPer8Hu/tts-platform/internal/config"
	"github.com/suPer8Hu/tts-platform/internal/logging"
	"go.uber.org/zap"
)

// The standalone worker consumes the RabbitMQ queue filled by an API
// started with WORKER_ENABLED=false. Run exactly one: synthesis is serial.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.QueueBackend != "rabbitmq" {
		return errors.New("the standalone worker needs QUEUE_BACKEND=rabbitmq")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	// rabbit still holds the queued jobs; only stale running rows need fixing
	if err := a.Jobs.Recover(ctx, false); err != nil {
		return err
	}

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.String("tts_provider", cfg.TTSProvider))
	if err := a.Jobs.Run(ctx); err != nil {
		return err
	}
	log.Info("worker shutting down")
	return nil
}
