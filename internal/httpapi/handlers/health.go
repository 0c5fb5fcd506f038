package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tts-platform/internal/synth"
)

func (h *Handler) backendInfo(ctx context.Context) (synth.Info, error) {
	if h.Health == nil {
		return synth.Info{
			Status:      "healthy",
			Device:      h.Cfg.Device,
			ModelLoaded: true,
			SampleRate:  h.Cfg.TTSSampleRate,
		}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.Health.Health(ctx)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	info, err := h.backendInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) Root(c *gin.Context) {
	body := gin.H{
		"message": "Chatterbox TTS API",
		"version": h.Version,
	}
	if info, err := h.backendInfo(c.Request.Context()); err == nil {
		body["device"] = info.Device
		body["model_loaded"] = info.ModelLoaded
	} else {
		body["device"] = h.Cfg.Device
		body["model_loaded"] = false
	}
	if m, err := h.Jobs.Metrics(c.Request.Context()); err == nil {
		body["queue_size"] = m.QueueSize
		body["total_jobs_processed"] = m.TotalJobsProcessed
	}
	c.JSON(http.StatusOK, body)
}
