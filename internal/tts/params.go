package tts

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/tts-platform/internal/audio"
)

const (
	DefaultExaggeration = 0.5
	DefaultCFGWeight    = 0.5
	DefaultTemperature  = 1.0

	DefaultMaxTextLength = 20000
	DefaultMaxBatchItems = 10
)

// Request is a submission as received from a client. Nil knobs take their defaults.
type Request struct {
	Type           JobType
	Text           string
	Texts          []string
	Exaggeration   *float64
	CFGWeight      *float64
	Temperature    *float64
	OutputFormat   string
	ReturnBase64   bool
	Reference      []byte
	ReferenceName  string
	IdempotencyKey string
}

type Limits struct {
	MaxTextLength int
	MaxBatchItems int
}

func (l Limits) withDefaults() Limits {
	if l.MaxTextLength <= 0 {
		l.MaxTextLength = DefaultMaxTextLength
	}
	if l.MaxBatchItems <= 0 {
		l.MaxBatchItems = DefaultMaxBatchItems
	}
	return l
}

// Validate checks a request and returns the parameters the worker will run with.
func (l Limits) Validate(req Request) (Params, error) {
	l = l.withDefaults()
	var p Params

	switch req.Type {
	case JobTypeTTS, JobTypeVoiceClone:
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return Params{}, invalid("text", "must not be empty")
		}
		if n := utf8.RuneCountInString(text); n > l.MaxTextLength {
			return Params{}, invalid("text", "length %d exceeds the maximum of %d characters", n, l.MaxTextLength)
		}
		p.Text = text
	case JobTypeBatch:
		if len(req.Texts) == 0 {
			return Params{}, invalid("texts", "must contain at least one text")
		}
		if len(req.Texts) > l.MaxBatchItems {
			return Params{}, invalid("texts", "maximum %d texts per batch, got %d", l.MaxBatchItems, len(req.Texts))
		}
		p.Texts = make([]string, len(req.Texts))
		for i, t := range req.Texts {
			t = strings.TrimSpace(t)
			if t == "" {
				return Params{}, invalid("texts", "item %d must not be empty", i)
			}
			if n := utf8.RuneCountInString(t); n > l.MaxTextLength {
				return Params{}, invalid("texts", "item %d length %d exceeds the maximum of %d characters", i, n, l.MaxTextLength)
			}
			p.Texts[i] = t
		}
	default:
		return Params{}, invalid("type", "unknown job type %q", req.Type)
	}

	var err error
	if p.Exaggeration, err = knob("exaggeration", req.Exaggeration, DefaultExaggeration, 0, 2); err != nil {
		return Params{}, err
	}
	if p.CFGWeight, err = knob("cfg_weight", req.CFGWeight, DefaultCFGWeight, 0, 1); err != nil {
		return Params{}, err
	}
	if p.Temperature, err = knob("temperature", req.Temperature, DefaultTemperature, 0.1, 2); err != nil {
		return Params{}, err
	}

	if req.Type == JobTypeBatch {
		// batch items are always returned as base64 WAV
		p.OutputFormat = audio.FormatWAV
		p.ReturnBase64 = true
	} else {
		f, err := audio.ParseFormat(req.OutputFormat)
		if err != nil {
			return Params{}, invalid("output_format", "must be one of wav, mp3, ogg")
		}
		p.OutputFormat = f
		p.ReturnBase64 = req.ReturnBase64
	}

	if req.Type == JobTypeVoiceClone && len(req.Reference) == 0 {
		return Params{}, invalid("audio_file", "reference audio is required")
	}
	if len(req.IdempotencyKey) > 128 {
		return Params{}, invalid("idempotency_key", "too long (max 128)")
	}
	return p, nil
}

func knob(field string, v *float64, def, lo, hi float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if math.IsNaN(*v) || *v < lo || *v > hi {
		return 0, invalid(field, "must be between %g and %g, got %g", lo, hi, *v)
	}
	return *v, nil
}
