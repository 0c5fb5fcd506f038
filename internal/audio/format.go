package audio

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatOGG Format = "ogg"
)

// ParseFormat accepts wav, mp3 or ogg in any case. Empty means wav.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatWAV, nil
	case FormatWAV, FormatMP3, FormatOGG:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want wav, mp3 or ogg)", s)
	}
}

func (f Format) MediaType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}

func (f Format) Extension() string {
	if f == "" {
		return "wav"
	}
	return string(f)
}
