package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tts-platform/internal/common"
	"github.com/suPer8Hu/tts-platform/internal/tts"
	"go.uber.org/zap"
)

func (h *Handler) JobStatus(c *gin.Context) {
	st, err := h.Jobs.GetStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) JobResult(c *gin.Context) {
	out, err := h.Jobs.GetResult(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.lookupError(c, err)
		return
	}
	if !out.Ready {
		c.JSON(http.StatusAccepted, gin.H{
			"job_id":  out.Job.ID,
			"status":  out.Job.Status,
			"ready":   false,
			"message": tts.ErrNotReady.Error(),
		})
		return
	}
	h.writeOutcome(c, out)
}

func (h *Handler) QueueStatus(c *gin.Context) {
	m, err := h.Jobs.Metrics(c.Request.Context())
	if err != nil {
		h.Log.Error("queue metrics", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to read queue status")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) lookupError(c *gin.Context, err error) {
	if errors.Is(err, tts.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}
	if errors.Is(err, tts.ErrResultExpired) {
		common.FailWithData(c, http.StatusGone, 41000, "result expired", gin.H{"job_id": c.Param("job_id")})
		return
	}
	h.Log.Error("load job", zap.String("job_id", c.Param("job_id")), zap.Error(err))
	common.Fail(c, http.StatusInternalServerError, 50001, "failed to load job")
}
