package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"convconv/internal/entity"
)

const defaultBinary = "ffmpeg"

// ErrEmptyArgs is returned when an invocation carries no arguments.
var ErrEmptyArgs = errors.New("ffmpeg: empty argument list")

// ProgressFunc receives every sample parsed from the encoder output.
type ProgressFunc func(entity.ProgressSample)

// Invocation is one encoder run.
type Invocation struct {
	Args       []string
	OutputPath string
	// DurationHint, when positive, replaces duration discovery as the percent denominator.
	DurationHint float64
}

// Result is the terminal outcome of Run. Err is nil on success and a *RunError otherwise.
type Result struct {
	OutputPath string
	Duration   float64
	Err        error
}

func (r Result) Success() bool { return r.Err == nil }

// RunError describes a failed run. Spawn failures have Started=false and no exit code.
type RunError struct {
	Started  bool
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if !e.Started {
		if e.Err == nil {
			return "ffmpeg failed to start"
		}
		return e.Err.Error()
	}
	return fmt.Sprintf("FFmpeg exited with code %d\n%s", e.ExitCode, e.Stderr)
}

func (e *RunError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Option configures the Runner.
type Option func(*Runner)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(r *Runner) {
		if b := strings.TrimSpace(binary); b != "" {
			r.binary = b
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// Runner spawns the encoder. It holds no per-run state so one Runner serves
// any number of concurrent runs.
type Runner struct {
	binary string
	log    *zap.Logger
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{binary: defaultBinary, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary returns the configured encoder path.
func (r *Runner) Binary() string {
	return r.binary
}

// Preview renders the command line Run would execute for args.
func (r *Runner) Preview(args []string) string {
	return Preview(r.binary, args)
}

// Run executes the encoder and blocks until it exits. Cancelling ctx kills the process.
func (r *Runner) Run(ctx context.Context, inv Invocation, onProgress ProgressFunc) Result {
	if len(inv.Args) == 0 {
		return Result{Err: &RunError{Err: ErrEmptyArgs}}
	}

	cmd := exec.CommandContext(ctx, r.binary, inv.Args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Err: &RunError{Err: fmt.Errorf("stderr pipe: %w", err)}}
	}
	if err := cmd.Start(); err != nil {
		r.log.Warn("spawn failed", zap.String("binary", r.binary), zap.Error(err))
		return Result{Err: &RunError{Err: err}}
	}

	tracker := NewTracker(inv.DurationHint)
	tracker.OnMalformed(func(line string) {
		r.log.Debug("skipping malformed progress line", zap.String("line", line))
	})
	emit := func(samples []entity.ProgressSample) {
		if onProgress == nil {
			return
		}
		for _, s := range samples {
			onProgress(s)
		}
	}

	var captured bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, readErr := stderr.Read(buf)
		if n > 0 {
			captured.Write(buf[:n])
			emit(tracker.Feed(string(buf[:n])))
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				r.log.Debug("stderr read ended", zap.Error(readErr))
			}
			break
		}
	}
	emit(tracker.Flush())

	waitErr := cmd.Wait()
	if waitErr == nil {
		return Result{OutputPath: inv.OutputPath, Duration: tracker.Duration()}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Result{
			Duration: tracker.Duration(),
			Err: &RunError{
				Started:  true,
				ExitCode: exitErr.ExitCode(),
				Stderr:   captured.String(),
				Err:      waitErr,
			},
		}
	}
	return Result{
		Duration: tracker.Duration(),
		Err:      &RunError{Started: true, ExitCode: -1, Stderr: captured.String(), Err: waitErr},
	}
}
