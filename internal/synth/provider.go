// Package synth talks to the speech model. A Synthesizer turns one piece of
// text into one WAV buffer; chunking and assembly happen above it.
package synth

import (
	"context"
	"errors"
)

var ErrVoiceCloneUnsupported = errors.New("synthesizer does not support voice cloning")

type Params struct {
	Exaggeration float64
	CFGWeight    float64
	Temperature  float64

	// Reference is the voice-clone prompt audio, nil for the default voice.
	Reference     []byte
	ReferenceName string
}

type Synthesis struct {
	Audio       []byte // WAV
	ContentType string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, p Params) (*Synthesis, error)
}

type Info struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	ModelLoaded  bool   `json:"model_loaded"`
	GPUAvailable bool   `json:"gpu_available"`
	SampleRate   int    `json:"sample_rate"`
}

// HealthReporter is an optional interface. Synthesizers may report backend health.
type HealthReporter interface {
	Health(ctx context.Context) (Info, error)
}
