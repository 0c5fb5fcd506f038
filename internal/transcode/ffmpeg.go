// Package transcode converts assembled WAV audio to compressed formats with ffmpeg.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/tts-platform/internal/audio"
	"github.com/suPer8Hu/tts-platform/internal/execx"
)

// CommandError captures a failed ffmpeg invocation.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

var ErrEmptyOutput = errors.New("ffmpeg produced no output")

type FFmpeg struct {
	path   string
	runner execx.Runner
}

func NewFFmpeg(path string, runner execx.Runner) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if runner == nil {
		runner = execx.NewRunner(nil)
	}
	return &FFmpeg{path: path, runner: runner}
}

// Transcode pipes wav through a single ffmpeg run. WAV input for a WAV
// target is returned unchanged.
func (f *FFmpeg) Transcode(ctx context.Context, wav []byte, format audio.Format) ([]byte, error) {
	if format == audio.FormatWAV {
		return wav, nil
	}
	args, err := buildArgs(format)
	if err != nil {
		return nil, err
	}

	res, err := f.runner.Run(ctx, execx.Command{Name: f.path, Args: args, Stdin: wav})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &CommandError{
			Command:  f.path,
			ExitCode: res.ExitCode,
			Stderr:   execx.Truncate(strings.TrimSpace(string(res.Stderr)), 2048),
			Err:      err,
		}
	}
	if len(res.Stdout) == 0 {
		return nil, ErrEmptyOutput
	}
	return res.Stdout, nil
}

func buildArgs(format audio.Format) ([]string, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "wav",
		"-i", "pipe:0",
		"-vn",
	}
	switch format {
	case audio.FormatMP3:
		args = append(args, "-codec:a", "libmp3lame", "-b:a", "128k", "-f", "mp3")
	case audio.FormatOGG:
		args = append(args, "-codec:a", "libvorbis", "-q:a", "4", "-f", "ogg")
	default:
		return nil, fmt.Errorf("cannot transcode to %q", format)
	}
	return append(args, "pipe:1"), nil
}
