package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suPer8Hu/tts-platform/internal/execx"
	"go.uber.org/zap"
)

type CommandConfig struct {
	Path               string
	Args               []string // passed before the per-call flags
	ModelCacheDir      string
	CUDAVisibleDevices string
	Device             string
	SampleRate         int
}

// CommandSynthesizer runs a local model CLI once per chunk. The CLI receives
// the text and sampling flags and writes a WAV file to --output.
type CommandSynthesizer struct {
	cfg    CommandConfig
	runner execx.Runner
	log    *zap.Logger
}

func NewCommandSynthesizer(cfg CommandConfig, runner execx.Runner, log *zap.Logger) *CommandSynthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	if runner == nil {
		runner = execx.NewRunner(log)
	}
	return &CommandSynthesizer{cfg: cfg, runner: runner, log: log}
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string, p Params) (*Synthesis, error) {
	dir, err := os.MkdirTemp("", "tts-chunk-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("failed to remove temp dir", zap.String("dir", dir), zap.Error(err))
		}
	}()

	out := filepath.Join(dir, "out.wav")
	args := append([]string{}, s.cfg.Args...)
	args = append(args,
		"--text", text,
		"--output", out,
		"--exaggeration", strconv.FormatFloat(p.Exaggeration, 'f', -1, 64),
		"--cfg-weight", strconv.FormatFloat(p.CFGWeight, 'f', -1, 64),
		"--temperature", strconv.FormatFloat(p.Temperature, 'f', -1, 64),
	)
	if p.Reference != nil {
		ref := filepath.Join(dir, "reference"+refExt(p.ReferenceName))
		if err := os.WriteFile(ref, p.Reference, 0o600); err != nil {
			return nil, fmt.Errorf("write reference audio: %w", err)
		}
		args = append(args, "--audio-prompt", ref)
	}

	res, err := s.runner.Run(ctx, execx.Command{Name: s.cfg.Path, Args: args, Env: s.env()})
	if err != nil {
		return nil, fmt.Errorf("%s exited with code %d: %w: %s",
			filepath.Base(s.cfg.Path), res.ExitCode, err, execx.Truncate(strings.TrimSpace(string(res.Stderr)), 2048))
	}

	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesizer wrote an empty file")
	}
	return &Synthesis{Audio: audio, ContentType: "audio/wav"}, nil
}

func (s *CommandSynthesizer) env() []string {
	var env []string
	if s.cfg.ModelCacheDir != "" {
		env = append(env, "HF_HOME="+s.cfg.ModelCacheDir, "TORCH_HOME="+s.cfg.ModelCacheDir)
	}
	if s.cfg.CUDAVisibleDevices != "" {
		env = append(env, "CUDA_VISIBLE_DEVICES="+s.cfg.CUDAVisibleDevices)
	}
	return env
}

// Health reports whether the CLI is installed; the model itself is loaded per call.
func (s *CommandSynthesizer) Health(ctx context.Context) (Info, error) {
	if _, err := exec.LookPath(s.cfg.Path); err != nil {
		return Info{}, fmt.Errorf("tts command %q not found: %w", s.cfg.Path, err)
	}
	gpu := s.cfg.CUDAVisibleDevices != "" && s.cfg.CUDAVisibleDevices != "-1"
	device := s.cfg.Device
	if device == "" || device == "auto" {
		device = "cpu"
		if gpu {
			device = "cuda"
		}
	}
	return Info{
		Status:       "healthy",
		Device:       device,
		ModelLoaded:  true,
		GPUAvailable: gpu,
		SampleRate:   s.cfg.SampleRate,
	}, nil
}

func refExt(name string) string {
	if ext := filepath.Ext(name); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	return ".wav"
}
