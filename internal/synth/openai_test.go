package synth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAISynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAISpeechReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openAISpeechReq{Model: "tts-1", Input: "hi", Voice: "nova", ResponseFormat: "wav"}, req)
		_, _ = w.Write(fakeWAV)
	}))
	defer srv.Close()

	s := NewOpenAISynthesizer(srv.URL+"/v1", "sk-test", "", "nova", time.Second)
	out, err := s.Synthesize(context.Background(), "hi", Params{Temperature: 1})
	require.NoError(t, err)
	assert.Equal(t, fakeWAV, out.Audio)
}

func TestOpenAISynthesizerRejects(t *testing.T) {
	s := NewOpenAISynthesizer("http://127.0.0.1:1", "", "", "", time.Second)
	_, err := s.Synthesize(context.Background(), "hi", Params{})
	assert.ErrorContains(t, err, "api key is required")

	s.APIKey = "k"
	_, err = s.Synthesize(context.Background(), "hi", Params{Reference: []byte("x")})
	assert.ErrorIs(t, err, ErrVoiceCloneUnsupported)
}

func TestOpenAISynthesizerErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAISynthesizer(srv.URL, "k", "", "", time.Second).Synthesize(context.Background(), "hi", Params{})
	assert.ErrorContains(t, err, "openai tts: rate limited")
}
