package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAISynthesizer targets any server implementing the OpenAI
// POST /audio/speech endpoint. Only the default voice is supported.
type OpenAISynthesizer struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	Client  *http.Client
}

type openAISpeechReq struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

type openAIErrResp struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAISynthesizer(baseURL, apiKey, model, voice string, timeout time.Duration) *OpenAISynthesizer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "alloy"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenAISynthesizer{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Voice:   voice,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, p Params) (*Synthesis, error) {
	if s.Client == nil {
		return nil, errors.New("openai tts: http client is nil")
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("openai tts: api key is required")
	}
	if p.Reference != nil {
		return nil, ErrVoiceCloneUnsupported
	}

	b, err := json.Marshal(openAISpeechReq{
		Model:          s.Model,
		Input:          text,
		Voice:          s.Voice,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/audio/speech", strings.TrimRight(s.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var er openAIErrResp
		if json.Unmarshal(body, &er) == nil && er.Error != nil && er.Error.Message != "" {
			return nil, fmt.Errorf("openai tts: %s", er.Error.Message)
		}
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("openai tts: %s", msg)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("openai tts: empty audio response")
	}
	return &Synthesis{Audio: audio, ContentType: "audio/wav"}, nil
}
