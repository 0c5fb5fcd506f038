package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(frames, channels int) []byte {
	data := make([]byte, frames*channels*2)
	for i := 0; i < frames*channels; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i))
	}
	return data
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := PCM{SampleRate: 24000, Channels: 1, BitDepth: 16, Data: ramp(24000, 1)}

	b := EncodeWAV(in)
	require.Len(t, b, 44+len(in.Data))
	assert.Equal(t, "RIFF", string(b[0:4]))
	assert.Equal(t, "WAVE", string(b[8:12]))

	out, err := DecodeWAV(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 24000, out.Frames())
	assert.InDelta(t, 1.0, out.Duration(), 1e-9)
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	in := PCM{SampleRate: 22050, Channels: 2, BitDepth: 16, Data: ramp(100, 2)}
	b := EncodeWAV(in)

	// splice a LIST chunk with an odd size (and its pad byte) before "data"
	list := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0)
	spliced := append(append(append([]byte{}, b[:36]...), list...), b[36:]...)
	binary.LittleEndian.PutUint32(spliced[4:8], uint32(len(spliced)-8))

	out, err := DecodeWAV(spliced)
	require.NoError(t, err)
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, 2, out.Channels)
}

func TestDecodeWAVClampsStreamingDataSize(t *testing.T) {
	in := PCM{SampleRate: 16000, Channels: 1, BitDepth: 16, Data: ramp(50, 1)}
	b := EncodeWAV(in)
	binary.LittleEndian.PutUint32(b[40:44], 0xFFFFFFFF)

	out, err := DecodeWAV(b)
	require.NoError(t, err)
	assert.Equal(t, in.Data, out.Data)
}

func TestDecodeWAVFloat(t *testing.T) {
	in := PCM{SampleRate: 24000, Channels: 1, BitDepth: 32, Float: true, Data: make([]byte, 4*240)}

	out, err := DecodeWAV(EncodeWAV(in))
	require.NoError(t, err)
	assert.True(t, out.Float)
	assert.InDelta(t, 0.01, out.Duration(), 1e-9)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	tests := map[string][]byte{
		"empty":      nil,
		"not riff":   []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"),
		"no fmt":     append([]byte("RIFF\x0c\x00\x00\x00WAVE"), []byte("data\x00\x00\x00\x00")...),
		"short fmt":  append([]byte("RIFF\x14\x00\x00\x00WAVE"), []byte("fmt \x04\x00\x00\x00\x01\x00\x01\x00")...),
		"overrun":    append([]byte("RIFF\x14\x00\x00\x00WAVE"), []byte("fmt \xff\x00\x00\x00\x01\x00")...),
		"truncated":  EncodeWAV(PCM{SampleRate: 8000, Channels: 1, BitDepth: 8})[:20],
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeWAV(b)
			assert.ErrorIs(t, err, ErrInvalidWAV)
		})
	}

	alaw := EncodeWAV(PCM{SampleRate: 8000, Channels: 1, BitDepth: 8, Data: []byte{1, 2}})
	binary.LittleEndian.PutUint16(alaw[20:22], 6)
	_, err := DecodeWAV(alaw)
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestConcat(t *testing.T) {
	a := PCM{SampleRate: 24000, Channels: 1, BitDepth: 16, Data: ramp(12000, 1)}
	b := PCM{SampleRate: 24000, Channels: 1, BitDepth: 16, Data: ramp(6000, 1)}

	out, err := Concat([]PCM{a, b})
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, a.Data...), b.Data...), out.Data)
	assert.InDelta(t, a.Duration()+b.Duration(), out.Duration(), 1e-9)
	assert.Equal(t, 24000, out.SampleRate)

	// inputs are not modified
	assert.Len(t, a.Data, 24000)
}

func TestConcatRejectsMismatchedLayouts(t *testing.T) {
	a := PCM{SampleRate: 24000, Channels: 1, BitDepth: 16, Data: ramp(10, 1)}
	b := PCM{SampleRate: 22050, Channels: 1, BitDepth: 16, Data: ramp(10, 1)}

	_, err := Concat([]PCM{a, b})
	assert.ErrorIs(t, err, ErrFormatMismatch)

	_, err = Concat(nil)
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		mime string
	}{
		{"", FormatWAV, "audio/wav"},
		{"wav", FormatWAV, "audio/wav"},
		{" MP3 ", FormatMP3, "audio/mpeg"},
		{"ogg", FormatOGG, "audio/ogg"},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.mime, got.MediaType())
	}

	_, err := ParseFormat("flac")
	assert.Error(t, err)
}
