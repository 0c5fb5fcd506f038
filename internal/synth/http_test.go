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

var fakeWAV = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

func TestHTTPSynthesizerJSON(t *testing.T) {
	var got httpSynthReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/synthesize", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(fakeWAV)
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL+"/", "chatterbox", time.Second)
	out, err := s.Synthesize(context.Background(), "hello", Params{Exaggeration: 0.7, CFGWeight: 0.3, Temperature: 1.2})
	require.NoError(t, err)

	assert.Equal(t, fakeWAV, out.Audio)
	assert.Equal(t, "audio/wav", out.ContentType)
	assert.Equal(t, httpSynthReq{Text: "hello", Model: "chatterbox", Exaggeration: 0.7, CFGWeight: 0.3, Temperature: 1.2}, got)
}

func TestHTTPSynthesizerMultipartReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "clone me", r.FormValue("text"))
		assert.Equal(t, "0.5", r.FormValue("cfg_weight"))

		f, hdr, err := r.FormFile("audio_prompt")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "me.mp3", hdr.Filename)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "REFERENCE", string(b))

		_, _ = w.Write(fakeWAV)
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "", time.Second)
	_, err := s.Synthesize(context.Background(), "clone me", Params{
		Exaggeration: 0.5, CFGWeight: 0.5, Temperature: 1,
		Reference: []byte("REFERENCE"), ReferenceName: "me.mp3",
	})
	require.NoError(t, err)
}

func TestHTTPSynthesizerErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"fastapi detail", http.StatusInternalServerError, `{"detail":"CUDA out of memory"}`, "CUDA out of memory"},
		{"error field", http.StatusBadRequest, `{"error":"text too long","error_code":"E1"}`, "text too long"},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty body", http.StatusServiceUnavailable, "", "status 503"},
		{"empty audio", http.StatusOK, "", "empty audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTPSynthesizer(srv.URL, "", time.Second).Synthesize(context.Background(), "x", Params{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHTTPSynthesizerHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"healthy","device":"cuda","model_loaded":true,"gpu_available":true,"sample_rate":24000}`)
	}))
	defer srv.Close()

	info, err := NewHTTPSynthesizer(srv.URL, "", time.Second).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Status: "healthy", Device: "cuda", ModelLoaded: true, GPUAvailable: true, SampleRate: 24000}, info)
}

func TestHTTPSynthesizerHealthDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"detail":"model not loaded"}`)
	}))
	defer srv.Close()

	_, err := NewHTTPSynthesizer(srv.URL, "", time.Second).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPSynthesizerHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPSynthesizer(srv.URL, "", 10*time.Second).Synthesize(ctx, "x", Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
