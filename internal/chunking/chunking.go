// Package chunking splits long text into pieces whose estimated speech
// duration stays under the synthesis backend's safe limit.
package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxSeconds     = 40.0
	DefaultCharsPerSecond = 12.0
)

type Config struct {
	MaxSeconds     float64
	CharsPerSecond float64
}

func DefaultConfig() Config {
	return Config{MaxSeconds: DefaultMaxSeconds, CharsPerSecond: DefaultCharsPerSecond}
}

type Chunk struct {
	Index            int
	Text             string
	EstimatedSeconds float64
}

type boundary int

const (
	paragraphs boundary = iota
	lines
	sentences
	clauses
	words
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type Splitter struct {
	cfg Config
}

func NewSplitter(cfg Config) *Splitter {
	if cfg.MaxSeconds <= 0 {
		cfg.MaxSeconds = DefaultMaxSeconds
	}
	if cfg.CharsPerSecond <= 0 {
		cfg.CharsPerSecond = DefaultCharsPerSecond
	}
	return &Splitter{cfg: cfg}
}

// Estimate returns the expected spoken duration in seconds: the length of the
// whitespace-collapsed text divided by the configured speaking rate.
func (s *Splitter) Estimate(text string) float64 {
	clean := strings.Join(strings.Fields(text), " ")
	return float64(utf8.RuneCountInString(clean)) / s.cfg.CharsPerSecond
}

func (s *Splitter) fits(text string) bool {
	return s.Estimate(text) <= s.cfg.MaxSeconds
}

// Split returns chunks in reading order. Text that already fits is returned
// as a single chunk; empty or whitespace-only text yields no chunks.
// A single word longer than the limit is emitted as its own chunk.
func (s *Splitter) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := s.split(text, paragraphs)
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{Index: i, Text: p, EstimatedSeconds: s.Estimate(p)})
	}
	return chunks
}

// split cuts text at boundary b and packs adjacent segments greedily.
// Segments still over the limit are cut again at the next finer boundary.
func (s *Splitter) split(text string, b boundary) []string {
	if s.fits(text) {
		return []string{text}
	}

	var out []string
	current := ""
	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}

	for _, seg := range segment(text, b) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if !s.fits(seg) {
			flush()
			if b == words {
				out = append(out, seg)
			} else {
				out = append(out, s.split(seg, b+1)...)
			}
			continue
		}

		candidate := seg
		if current != "" {
			candidate = current + separator(b) + seg
		}
		if current != "" && !s.fits(candidate) {
			flush()
			candidate = seg
		}
		current = candidate
	}
	flush()
	return out
}

func segment(text string, b boundary) []string {
	switch b {
	case paragraphs:
		return paragraphBreak.Split(text, -1)
	case lines:
		return strings.Split(text, "\n")
	case sentences:
		return cutAfter(text, ".!?")
	case clauses:
		return cutAfter(text, ",;:")
	default:
		return strings.Fields(text)
	}
}

func separator(b boundary) string {
	switch b {
	case paragraphs:
		return "\n\n"
	case lines:
		return "\n"
	default:
		return " "
	}
}

// cutAfter splits text after every run of marks, keeping the marks with the
// preceding segment. marks must be ASCII.
func cutAfter(text, marks string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if strings.IndexByte(marks, text[i]) < 0 {
			continue
		}
		for i+1 < len(text) && strings.IndexByte(marks, text[i+1]) >= 0 {
			i++
		}
		out = append(out, text[start:i+1])
		start = i + 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
