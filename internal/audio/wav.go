// Package audio reads, writes and joins PCM WAV data.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	formatPCM        uint16 = 1
	formatIEEEFloat  uint16 = 3
	formatExtensible uint16 = 0xFFFE
)

var (
	ErrInvalidWAV     = errors.New("invalid wav data")
	ErrNoSegments     = errors.New("no audio segments")
	ErrFormatMismatch = errors.New("audio segments have different formats")
)

// PCM is decoded WAV audio: interleaved little-endian samples plus their layout.
type PCM struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Float      bool
	Data       []byte
}

func (p PCM) frameSize() int {
	return p.BitDepth / 8 * p.Channels
}

func (p PCM) Frames() int {
	if p.frameSize() == 0 {
		return 0
	}
	return len(p.Data) / p.frameSize()
}

// Duration is frames / sample rate, in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

func (p PCM) sameLayout(o PCM) bool {
	return p.SampleRate == o.SampleRate && p.Channels == o.Channels &&
		p.BitDepth == o.BitDepth && p.Float == o.Float
}

func (p PCM) layout() string {
	kind := "int"
	if p.Float {
		kind = "float"
	}
	return fmt.Sprintf("%dHz/%dch/%dbit %s", p.SampleRate, p.Channels, p.BitDepth, kind)
}

// DecodeWAV parses a RIFF/WAVE buffer. Unknown chunks are skipped; a data
// chunk whose declared size overruns the buffer is clamped to what is present.
func DecodeWAV(b []byte) (PCM, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return PCM{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		p       PCM
		haveFmt bool
		data    []byte
		found   bool
	)
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(b) {
			if id != "data" {
				return PCM{}, fmt.Errorf("%w: chunk %q overruns buffer", ErrInvalidWAV, id)
			}
			end = len(b)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return PCM{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			f := b[body:end]
			tag := binary.LittleEndian.Uint16(f[0:2])
			if tag == formatExtensible && len(f) >= 26 {
				tag = binary.LittleEndian.Uint16(f[24:26])
			}
			switch tag {
			case formatPCM:
			case formatIEEEFloat:
				p.Float = true
			default:
				return PCM{}, fmt.Errorf("%w: unsupported format tag %#x", ErrInvalidWAV, tag)
			}
			p.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			p.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			p.BitDepth = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
		case "data":
			data = b[body:end]
			found = true
		}

		off = end
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return PCM{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if !found {
		return PCM{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}
	if p.Channels == 0 || p.SampleRate == 0 || p.BitDepth == 0 || p.BitDepth%8 != 0 {
		return PCM{}, fmt.Errorf("%w: bad layout %s", ErrInvalidWAV, p.layout())
	}
	// drop a trailing partial frame
	data = data[:len(data)-len(data)%p.frameSize()]
	p.Data = data
	return p, nil
}

// EncodeWAV writes a canonical 44-byte header followed by the samples.
func EncodeWAV(p PCM) []byte {
	tag := formatPCM
	if p.Float {
		tag = formatIEEEFloat
	}
	blockAlign := p.frameSize()

	var buf bytes.Buffer
	buf.Grow(44 + len(p.Data))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(p.Data)+len(p.Data)%2))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, tag)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(p.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(p.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(p.SampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(p.BitDepth))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(p.Data)))
	buf.Write(p.Data)
	if len(p.Data)%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// Concat joins segments end to end in the given order. All segments must
// share one layout.
func Concat(parts []PCM) (PCM, error) {
	if len(parts) == 0 {
		return PCM{}, ErrNoSegments
	}
	first := parts[0]
	total := 0
	for i, p := range parts {
		if !first.sameLayout(p) {
			return PCM{}, fmt.Errorf("%w: segment %d is %s, segment 0 is %s", ErrFormatMismatch, i, p.layout(), first.layout())
		}
		total += len(p.Data)
	}

	data := make([]byte, 0, total)
	for _, p := range parts {
		data = append(data, p.Data...)
	}
	out := first
	out.Data = data
	return out, nil
}
