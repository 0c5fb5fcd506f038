package handlers

import (
	"github.com/suPer8Hu/tts-platform/internal/config"
	"github.com/suPer8Hu/tts-platform/internal/synth"
	"github.com/suPer8Hu/tts-platform/internal/tts"
	"go.uber.org/zap"
)

type Handler struct {
	Jobs    *tts.Manager
	Health  synth.HealthReporter // nil when the backend cannot report health
	Cfg     config.Config
	Version string
	Log     *zap.Logger
}

func NewHandler(jobs *tts.Manager, health synth.HealthReporter, cfg config.Config, version string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Jobs: jobs, Health: health, Cfg: cfg, Version: version, Log: log}
}
