package execx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Command struct {
	Name  string
	Args  []string
	Env   []string // appended to the parent environment
	Stdin []byte
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner lets external commands be stubbed in tests.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

type ExecRunner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{log: log}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		r.log.Warn("exec failed",
			zap.String("cmd", c.Name),
			zap.Duration("took", time.Since(start)),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", Truncate(stderr.String(), 8<<10)),
			zap.Error(err),
		)
		return res, err
	}

	r.log.Debug("exec ok",
		zap.String("cmd", c.String()),
		zap.Duration("took", time.Since(start)),
		zap.Int("stdout_bytes", stdout.Len()),
		zap.Int("stderr_bytes", stderr.Len()),
	)
	return res, nil
}

func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
