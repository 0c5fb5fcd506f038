// Package engine renders one text into one audio artifact: it chunks the
// text, synthesizes the chunks in order, joins the PCM and transcodes once.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/tts-platform/internal/audio"
	"github.com/suPer8Hu/tts-platform/internal/chunking"
	"github.com/suPer8Hu/tts-platform/internal/synth"
	"go.uber.org/zap"
)

type Transcoder interface {
	Transcode(ctx context.Context, wav []byte, format audio.Format) ([]byte, error)
}

type Request struct {
	Text   string
	Params synth.Params
	Format audio.Format
}

type Rendered struct {
	Audio           []byte
	Format          audio.Format
	MediaType       string
	SampleRate      int
	DurationSeconds float64
	Chunks          int
}

type Engine struct {
	synth      synth.Synthesizer
	transcoder Transcoder
	splitter   *chunking.Splitter
	log        *zap.Logger
}

func New(s synth.Synthesizer, t Transcoder, splitter *chunking.Splitter, log *zap.Logger) *Engine {
	if splitter == nil {
		splitter = chunking.NewSplitter(chunking.DefaultConfig())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{synth: s, transcoder: t, splitter: splitter, log: log}
}

// Render synthesizes chunks one at a time, in order. Duration is measured
// on the joined PCM before any transcoding.
func (e *Engine) Render(ctx context.Context, req Request) (*Rendered, error) {
	format := req.Format
	if format == "" {
		format = audio.FormatWAV
	}

	chunks := e.splitter.Split(req.Text)
	if len(chunks) == 0 {
		return nil, &SynthesisError{Stage: "chunking", Chunk: -1, Err: ErrNoChunks}
	}
	if len(chunks) > 1 {
		e.log.Info("text split into chunks",
			zap.Int("chunks", len(chunks)),
			zap.Float64("estimated_seconds", e.splitter.Estimate(req.Text)),
		)
	}

	parts := make([]audio.PCM, 0, len(chunks))
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, &SynthesisError{Stage: "synthesis", Chunk: ch.Index, Total: len(chunks), Err: err}
		}

		start := time.Now()
		out, err := e.synth.Synthesize(ctx, ch.Text, req.Params)
		if err != nil {
			return nil, &SynthesisError{Stage: "synthesis", Chunk: ch.Index, Total: len(chunks), Err: err}
		}
		pcm, err := audio.DecodeWAV(out.Audio)
		if err != nil {
			return nil, &SynthesisError{Stage: "decode", Chunk: ch.Index, Total: len(chunks), Err: err}
		}
		parts = append(parts, pcm)

		e.log.Debug("chunk synthesized",
			zap.Int("chunk", ch.Index+1),
			zap.Int("of", len(chunks)),
			zap.Int("chars", len([]rune(ch.Text))),
			zap.Float64("estimated_seconds", ch.EstimatedSeconds),
			zap.Float64("audio_seconds", pcm.Duration()),
			zap.Duration("took", time.Since(start)),
		)
	}

	joined, err := audio.Concat(parts)
	if err != nil {
		return nil, &SynthesisError{Stage: "assembly", Chunk: -1, Err: err}
	}

	wav := audio.EncodeWAV(joined)
	data := wav
	if format != audio.FormatWAV {
		if e.transcoder == nil {
			return nil, &TranscodingError{Format: format, Err: errors.New("no transcoder configured")}
		}
		data, err = e.transcoder.Transcode(ctx, wav, format)
		if err != nil {
			return nil, &TranscodingError{Format: format, Err: err}
		}
	}

	return &Rendered{
		Audio:           data,
		Format:          format,
		MediaType:       format.MediaType(),
		SampleRate:      joined.SampleRate,
		DurationSeconds: joined.Duration(),
		Chunks:          len(chunks),
	}, nil
}
