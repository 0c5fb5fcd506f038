package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSynth struct{ model string }

func (s stubSynth) Synthesize(context.Context, string, Params) (*Synthesis, error) {
	return &Synthesis{}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(" HTTP ", func(_ context.Context, model string) (Synthesizer, error) {
		return stubSynth{model: model}, nil
	})
	r.Register("command", func(context.Context, string) (Synthesizer, error) { return stubSynth{}, nil })

	s, err := r.Get(context.Background(), "http", "chatterbox")
	require.NoError(t, err)
	assert.Equal(t, stubSynth{model: "chatterbox"}, s)

	_, err = r.Get(context.Background(), "espeak", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command, http")
	assert.Equal(t, []string{"command", "http"}, r.Names())
}
