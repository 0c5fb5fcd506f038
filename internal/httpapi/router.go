package httpapi

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tts-platform/internal/common"
	"github.com/suPer8Hu/tts-platform/internal/config"
	"github.com/suPer8Hu/tts-platform/internal/httpapi/handlers"
	"github.com/suPer8Hu/tts-platform/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/", h.Root)
	r.GET("/health", h.HealthCheck)
	r.GET("/queue/status", h.QueueStatus)

	// synthesis, rate limited per client when RATE_LIMIT_RPS > 0
	submit := r.Group("/")
	if cfg.RateLimitRPS > 0 {
		submit.Use(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler())
	}
	submit.POST("/tts", h.SynthesizeTTS)
	submit.POST("/voice-clone", h.VoiceClone)
	submit.POST("/batch-tts", h.BatchTTS)

	r.GET("/job/:job_id/status", h.JobStatus)
	r.GET("/job/:job_id/result", h.JobResult)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization", "Idempotency-Key", middleware.RequestIDHeader)
	cc.ExposeHeaders = []string{
		"X-Job-ID", "X-Audio-Duration", "X-Sample-Rate", "X-Output-Format",
		"X-Voice-Cloned", "X-Chunks", "Content-Disposition", middleware.RequestIDHeader,
	}
	return cors.New(cc)
}
