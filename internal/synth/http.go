package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPSynthesizer calls a model server that exposes
// POST /synthesize (JSON, or multipart when a reference voice is attached)
// and GET /health.
type HTTPSynthesizer struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type httpSynthReq struct {
	Text         string  `json:"text"`
	Model        string  `json:"model,omitempty"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
}

type httpErrResp struct {
	Detail    string `json:"detail"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

func NewHTTPSynthesizer(baseURL, model string, timeout time.Duration) *HTTPSynthesizer {
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPSynthesizer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, p Params) (*Synthesis, error) {
	if s.Client == nil {
		return nil, errors.New("tts http: client is nil")
	}

	var (
		body        io.Reader
		contentType string
	)
	if p.Reference == nil {
		b, err := json.Marshal(httpSynthReq{
			Text:         text,
			Model:        s.Model,
			Exaggeration: p.Exaggeration,
			CFGWeight:    p.CFGWeight,
			Temperature:  p.Temperature,
		})
		if err != nil {
			return nil, err
		}
		body, contentType = bytes.NewReader(b), "application/json"
	} else {
		buf, ct, err := s.multipartBody(text, p)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/synthesize", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tts http: %s", errorMessage(resp))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts http: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts http: empty audio response")
	}
	return &Synthesis{Audio: audio, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (s *HTTPSynthesizer) multipartBody(text string, p Params) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"text":         text,
		"exaggeration": strconv.FormatFloat(p.Exaggeration, 'f', -1, 64),
		"cfg_weight":   strconv.FormatFloat(p.CFGWeight, 'f', -1, 64),
		"temperature":  strconv.FormatFloat(p.Temperature, 'f', -1, 64),
	}
	if s.Model != "" {
		fields["model"] = s.Model
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	name := p.ReferenceName
	if name == "" {
		name = "reference.wav"
	}
	fw, err := w.CreateFormFile("audio_prompt", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(p.Reference); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (s *HTTPSynthesizer) Health(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/health", nil)
	if err != nil {
		return Info{}, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("tts http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("tts http: health: %s", errorMessage(resp))
	}
	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("tts http: decode health: %w", err)
	}
	if info.Status == "" {
		info.Status = "healthy"
	}
	return info, nil
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	var e httpErrResp
	if json.Unmarshal(raw, &e) == nil {
		switch {
		case e.Detail != "":
			return e.Detail
		case e.Error != "":
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return msg
}
