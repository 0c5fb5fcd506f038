package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tts-platform/internal/common"
	"github.com/suPer8Hu/tts-platform/internal/tts"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// submit creates the job and, unless ?async=true, waits up to timeout for it
// to finish before writing the response.
func (h *Handler) submit(c *gin.Context, req tts.Request, timeout time.Duration) {
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	job, created, err := h.Jobs.Submit(c.Request.Context(), req)
	if err != nil {
		h.submitError(c, err)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		status := http.StatusAccepted
		if !created {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"job_id": job.ID, "status": job.Status})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	out, err := h.Jobs.Wait(ctx, job.ID)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			common.FailWithData(c, http.StatusRequestTimeout, 40801,
				fmt.Sprintf("job still running after %s; poll /job/%s/status", timeout, job.ID),
				gin.H{"job_id": job.ID})
		case errors.Is(err, context.Canceled):
			// client went away; the job carries on
			c.Abort()
		case errors.Is(err, tts.ErrResultExpired):
			common.FailWithData(c, http.StatusGone, 41000, "result expired", gin.H{"job_id": job.ID})
		default:
			h.Log.Error("wait for job", zap.String("job_id", job.ID), zap.Error(err))
			common.FailWithData(c, http.StatusInternalServerError, 50001, "failed to load job", gin.H{"job_id": job.ID})
		}
		return
	}
	h.writeOutcome(c, out)
}

func (h *Handler) submitError(c *gin.Context, err error) {
	var ve *tts.ValidationError
	if errors.As(err, &ve) {
		common.FailWithData(c, http.StatusBadRequest, 40001, ve.Error(), gin.H{"field": ve.Field})
		return
	}
	h.Log.Error("submit job", zap.Error(err))
	common.Fail(c, http.StatusServiceUnavailable, 50301, "failed to queue job")
}

// writeOutcome writes a terminal job the way its request asked for it.
func (h *Handler) writeOutcome(c *gin.Context, out *tts.Outcome) {
	j := out.Job
	if j.Status == tts.JobFailed {
		msg := "synthesis failed"
		if j.Error != nil {
			msg = "synthesis failed: " + *j.Error
		}
		if j.Params.ReturnBase64 {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msg, "job_id": j.ID})
			return
		}
		common.FailWithData(c, http.StatusInternalServerError, 50002, msg, gin.H{"job_id": j.ID})
		return
	}

	if j.Type == tts.JobTypeBatch {
		h.writeBatch(c, out)
		return
	}

	r := j.Result
	voiceCloned := r.VoiceCloned
	if !j.Params.ReturnBase64 {
		c.Header("X-Job-ID", j.ID)
		c.Header("X-Audio-Duration", strconv.FormatFloat(r.DurationSeconds, 'f', 2, 64))
		c.Header("X-Sample-Rate", strconv.Itoa(r.SampleRate))
		c.Header("X-Output-Format", string(r.OutputFormat))
		c.Header("X-Chunks", strconv.Itoa(r.Chunks))
		if j.Type == tts.JobTypeVoiceClone {
			c.Header("X-Voice-Cloned", strconv.FormatBool(voiceCloned))
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.%s"`, filePrefix(j.Type), j.ID, r.OutputFormat.Extension()))
		c.Data(http.StatusOK, r.MediaType, out.Audio)
		return
	}

	body := gin.H{
		"success":          true,
		"audio_base64":     base64.StdEncoding.EncodeToString(out.Audio),
		"sample_rate":      r.SampleRate,
		"duration_seconds": r.DurationSeconds,
		"output_format":    r.OutputFormat,
		"job_id":           j.ID,
	}
	if j.Type == tts.JobTypeVoiceClone {
		body["voice_cloned"] = voiceCloned
	}
	c.JSON(http.StatusOK, body)
}

type batchItemResp struct {
	Success         bool    `json:"success"`
	AudioBase64     string  `json:"audio_base64,omitempty"`
	Message         string  `json:"message"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

func (h *Handler) writeBatch(c *gin.Context, out *tts.Outcome) {
	r := out.Job.Result
	results := make([]batchItemResp, len(r.Items))
	for i, it := range r.Items {
		results[i] = batchItemResp{Success: it.Success, Message: it.Message}
		if it.Success && i < len(out.ItemAudio) {
			results[i].AudioBase64 = base64.StdEncoding.EncodeToString(out.ItemAudio[i])
			results[i].SampleRate = it.SampleRate
			results[i].DurationSeconds = it.DurationSeconds
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"results":        results,
		"total_duration": r.TotalDuration,
		"job_id":         out.Job.ID,
	})
}

func filePrefix(t tts.JobType) string {
	if t == tts.JobTypeVoiceClone {
		return "voice_clone"
	}
	return "tts"
}
