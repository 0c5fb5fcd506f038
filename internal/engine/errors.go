package engine

import (
	"errors"
	"fmt"

	"github.com/suPer8Hu/tts-platform/internal/audio"
)

var (
	ErrNoChunks = errors.New("text produced no chunks")

	// ErrSynthesis matches every *SynthesisError and *TranscodingError.
	ErrSynthesis = errors.New("synthesis failed")
)

// SynthesisError reports which stage of rendering failed. Chunk is the
// zero-based chunk index, or -1 when the failure is not tied to one chunk.
type SynthesisError struct {
	Stage string // "chunking", "synthesis", "decode" or "assembly"
	Chunk int
	Total int
	Err   error
}

func (e *SynthesisError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed on chunk %d/%d: %v", e.Stage, e.Chunk+1, e.Total, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

func (e *SynthesisError) Is(target error) bool { return target == ErrSynthesis }

type TranscodingError struct {
	Format audio.Format
	Err    error
}

func (e *TranscodingError) Error() string {
	return fmt.Sprintf("transcoding to %s failed: %v", e.Format, e.Err)
}

func (e *TranscodingError) Unwrap() error { return e.Err }

func (e *TranscodingError) Is(target error) bool { return target == ErrSynthesis }
