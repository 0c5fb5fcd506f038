package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tts-platform/internal/app"
	"github.com/suPer8Hu/tts-platform/internal/config"
	"github.com/suPer8Hu/tts-platform/internal/httpapi"
	"github.com/suPer8Hu/tts-platform/internal/httpapi/handlers"
	"github.com/suPer8Hu/tts-platform/internal/logging"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.LogFormat == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

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

	var wg sync.WaitGroup
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	if cfg.WorkerEnabled {
		// only the memory broker loses queued jobs on restart
		if err := a.Jobs.Recover(ctx, cfg.QueueBackend == "memory"); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Jobs.Run(workerCtx); err != nil {
				log.Error("worker stopped", zap.Error(err))
				stop()
			}
		}()
	}

	if cfg.ArtifactTTL > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prune(workerCtx, a, cfg.ArtifactTTL, log)
		}()
	}

	h := handlers.NewHandler(a.Jobs, a.Health, cfg, version, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	// the job in flight is failed as interrupted
	stopWorker()
	wg.Wait()
	return nil
}

// prune drops finished jobs and their audio once they are older than ttl.
func prune(ctx context.Context, a *app.App, ttl time.Duration, log *zap.Logger) {
	every := ttl / 4
	if every > time.Hour {
		every = time.Hour
	}
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Jobs.Prune(ctx, ttl)
			if err != nil && ctx.Err() == nil {
				log.Warn("prune jobs", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("pruned finished jobs", zap.Int("count", n), zap.Duration("ttl", ttl))
			}
		}
	}
}
