// Package app assembles the service from config: database, artifact store,
// queue broker, synthesis backend, engine and job manager.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/suPer8Hu/tts-platform/internal/chunking"
	"github.com/suPer8Hu/tts-platform/internal/config"
	"github.com/suPer8Hu/tts-platform/internal/db"
	"github.com/suPer8Hu/tts-platform/internal/engine"
	"github.com/suPer8Hu/tts-platform/internal/execx"
	"github.com/suPer8Hu/tts-platform/internal/queue"
	"github.com/suPer8Hu/tts-platform/internal/store"
	"github.com/suPer8Hu/tts-platform/internal/store/dbstore"
	"github.com/suPer8Hu/tts-platform/internal/store/natsstore"
	"github.com/suPer8Hu/tts-platform/internal/store/rabbitmq"
	"github.com/suPer8Hu/tts-platform/internal/store/redisstore"
	"github.com/suPer8Hu/tts-platform/internal/store/zstdstore"
	"github.com/suPer8Hu/tts-platform/internal/synth"
	"github.com/suPer8Hu/tts-platform/internal/transcode"
	"github.com/suPer8Hu/tts-platform/internal/tts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Cfg    config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	Jobs   *tts.Manager
	Health synth.HealthReporter

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Cfg: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := tts.AutoMigrate(a.DB); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	blobs, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	broker, err := a.broker()
	if err != nil {
		return nil, err
	}

	runner := execx.NewRunner(log)
	s, err := NewRegistry(cfg, runner, log).Get(ctx, cfg.TTSProvider, cfg.TTSModel)
	if err != nil {
		return nil, err
	}
	if hr, ok := s.(synth.HealthReporter); ok {
		a.Health = hr
	}

	splitter := chunking.NewSplitter(chunking.Config{
		MaxSeconds:     cfg.ChunkMaxSeconds,
		CharsPerSecond: cfg.ChunkCharsPerSecond,
	})
	eng := engine.New(s, transcode.NewFFmpeg(cfg.FFmpegPath, runner), splitter, log)

	a.Jobs = tts.NewManager(tts.NewRepo(a.DB), broker, blobs, eng,
		tts.WithJobTimeout(cfg.JobTimeout),
		tts.WithPollInterval(cfg.PollInterval),
		tts.WithSlowJobThreshold(cfg.SlowJobThreshold),
		tts.WithLimits(tts.Limits{MaxTextLength: cfg.MaxTextLength, MaxBatchItems: cfg.MaxBatchItems}),
		tts.WithLogger(log),
	)

	log.Info("app ready",
		zap.String("tts_provider", cfg.TTSProvider),
		zap.String("queue_backend", cfg.QueueBackend),
		zap.String("artifact_backend", cfg.ArtifactBackend),
		zap.Int("artifact_compression", cfg.ArtifactCompression),
		zap.Float64("chunk_max_seconds", cfg.ChunkMaxSeconds),
	)
	return a, nil
}

// NewRegistry registers every synthesis backend; TTS_PROVIDER picks one.
func NewRegistry(cfg config.Config, runner execx.Runner, log *zap.Logger) *synth.Registry {
	reg := synth.NewRegistry()
	reg.Register("http", func(_ context.Context, model string) (synth.Synthesizer, error) {
		return synth.NewHTTPSynthesizer(cfg.TTSBaseURL, model, cfg.TTSTimeout), nil
	})
	reg.Register("openai", func(_ context.Context, model string) (synth.Synthesizer, error) {
		if cfg.TTSAPIKey == "" {
			return nil, errors.New("TTS_API_KEY is required for the openai provider")
		}
		return synth.NewOpenAISynthesizer(cfg.TTSBaseURL, cfg.TTSAPIKey, model, cfg.TTSVoice, cfg.TTSTimeout), nil
	})
	reg.Register("command", func(_ context.Context, _ string) (synth.Synthesizer, error) {
		return synth.NewCommandSynthesizer(synth.CommandConfig{
			Path:               cfg.TTSCommand,
			Args:               cfg.TTSCommandArgs,
			ModelCacheDir:      cfg.ModelCacheDir,
			CUDAVisibleDevices: cfg.CUDAVisibleDevices,
			Device:             cfg.Device,
			SampleRate:         cfg.TTSSampleRate,
		}, runner, log), nil
	})
	return reg
}

func (a *App) blobStore(ctx context.Context) (store.BlobStore, error) {
	var blobs store.BlobStore
	switch a.Cfg.ArtifactBackend {
	case "redis":
		rs := redisstore.New(a.Cfg.RedisAddr, a.Cfg.RedisPassword, a.Cfg.RedisDB, a.Cfg.ArtifactTTL)
		a.closers = append(a.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		blobs = rs
	case "nats":
		nc, err := nats.Connect(a.Cfg.NATSURL, nats.Name("tts-platform"))
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
		js, err := nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("nats jetstream: %w", err)
		}
		ns, err := natsstore.New(js, a.Cfg.NATSBucket, a.Cfg.ArtifactTTL)
		if err != nil {
			return nil, err
		}
		blobs = ns
	default:
		ds, err := dbstore.New(a.DB)
		if err != nil {
			return nil, err
		}
		blobs = ds
	}

	if a.Cfg.ArtifactCompression > 0 {
		zs, err := zstdstore.New(blobs, a.Cfg.ArtifactCompression)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { zs.Close(); return nil })
		blobs = zs
	}
	return blobs, nil
}

func (a *App) broker() (queue.Broker, error) {
	if a.Cfg.QueueBackend == "rabbitmq" {
		b, err := rabbitmq.NewBroker(a.Cfg.RabbitURL, a.Cfg.RabbitQueue, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	}
	m := queue.NewMemory()
	a.closers = append(a.closers, m.Close)
	return m, nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
