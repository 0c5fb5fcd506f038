package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tts-platform/internal/common"
	"github.com/suPer8Hu/tts-platform/internal/tts"
)

type ttsReq struct {
	Text         string   `json:"text"`
	Exaggeration *float64 `json:"exaggeration"`
	CFGWeight    *float64 `json:"cfg_weight"`
	Temperature  *float64 `json:"temperature"`
	OutputFormat string   `json:"output_format"`
	ReturnBase64 bool     `json:"return_base64"`
}

func (h *Handler) SynthesizeTTS(c *gin.Context) {
	var req ttsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	h.submit(c, tts.Request{
		Type:         tts.JobTypeTTS,
		Text:         req.Text,
		Exaggeration: req.Exaggeration,
		CFGWeight:    req.CFGWeight,
		Temperature:  req.Temperature,
		OutputFormat: req.OutputFormat,
		ReturnBase64: req.ReturnBase64,
	}, h.Cfg.SyncTimeout)
}

type batchReq struct {
	Texts        []string `json:"texts"`
	Exaggeration *float64 `json:"exaggeration"`
	CFGWeight    *float64 `json:"cfg_weight"`
	Temperature  *float64 `json:"temperature"`
}

func (h *Handler) BatchTTS(c *gin.Context) {
	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	h.submit(c, tts.Request{
		Type:         tts.JobTypeBatch,
		Texts:        req.Texts,
		Exaggeration: req.Exaggeration,
		CFGWeight:    req.CFGWeight,
		Temperature:  req.Temperature,
	}, h.Cfg.BatchSyncTimeout)
}

// VoiceClone takes multipart form data: the reference recording in
// audio_file plus text and the tuning fields. Fields may also come from the
// query string.
func (h *Handler) VoiceClone(c *gin.Context) {
	if h.Cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Cfg.MaxUploadBytes)
	}

	fh, err := c.FormFile("audio_file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			common.Fail(c, http.StatusRequestEntityTooLarge, 41300, fmt.Sprintf("upload exceeds %d bytes", mbe.Limit))
			return
		}
		common.FailWithData(c, http.StatusBadRequest, 40002, "audio_file is required", gin.H{"field": "audio_file"})
		return
	}
	if ct := fh.Header.Get("Content-Type"); !strings.HasPrefix(ct, "audio/") {
		common.FailWithData(c, http.StatusBadRequest, 40003, "file must be an audio file", gin.H{"field": "audio_file"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 40002, "cannot read audio_file")
		return
	}
	ref, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 40002, "cannot read audio_file")
		return
	}

	req := tts.Request{
		Type:          tts.JobTypeVoiceClone,
		Text:          formValue(c, "text"),
		OutputFormat:  formValue(c, "output_format"),
		Reference:     ref,
		ReferenceName: fh.Filename,
	}
	for _, k := range []struct {
		name string
		dst  **float64
	}{
		{"exaggeration", &req.Exaggeration},
		{"cfg_weight", &req.CFGWeight},
		{"temperature", &req.Temperature},
	} {
		v, err := formFloat(c, k.name)
		if err != nil {
			common.FailWithData(c, http.StatusBadRequest, 40001, fmt.Sprintf("%s: must be a number", k.name), gin.H{"field": k.name})
			return
		}
		*k.dst = v
	}
	if s := formValue(c, "return_base64"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			common.FailWithData(c, http.StatusBadRequest, 40001, "return_base64: must be a boolean", gin.H{"field": "return_base64"})
			return
		}
		req.ReturnBase64 = b
	}

	h.submit(c, req, h.Cfg.SyncTimeout)
}

func formValue(c *gin.Context, name string) string {
	if v, ok := c.GetPostForm(name); ok {
		return v
	}
	return c.Query(name)
}

func formFloat(c *gin.Context, name string) (*float64, error) {
	s := strings.TrimSpace(formValue(c, name))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
