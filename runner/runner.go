// Package runner executes external programs under an optional wall-clock
// timeout and normalizes success, non-zero exit, timeout and undecodable
// output into a uniform Result.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
	"unicode/utf8"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// Status classifies how an invocation ended.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusNonZeroExit
	StatusTimedOut
	StatusUnrepresentable
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNonZeroExit:
		return "non-zero-exit"
	case StatusTimedOut:
		return "timed-out"
	case StatusUnrepresentable:
		return "unrepresentable"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

var (
	// ErrTimedOut is reported when a process exceeds its timeout.
	ErrTimedOut = errors.New("process timed out")
	// ErrUnrepresentable is reported when a process could not be started or
	// its output is not valid text.
	ErrUnrepresentable = errors.New("process output unrepresentable")
)

// defaultWaitDelay bounds how long Run waits for output pipes held open by
// grandchildren after the process itself has been killed or has exited.
const defaultWaitDelay = 500 * time.Millisecond

// Command describes a single external invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration // zero disables the timeout
}

// Argv returns the program followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// String returns the command line quoted so it can be pasted into a shell.
func (c Command) String() string {
	return shellescape.QuoteCommand(c.Argv())
}

// Result is the captured outcome of one invocation. Output holds stdout and
// stderr interleaved in the order the process wrote them.
type Result struct {
	Command  Command
	Output   string
	ExitCode int
	Status   Status
	Duration time.Duration
}

// Failed reports whether the process ended with a non-zero status.
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Error is returned for runner-level failures. Result keeps whatever output
// was collected before the failure.
type Error struct {
	Kind   error
	Result Result
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Result.Command, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Result.Command, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Runner spawns processes. It never interprets their output.
type Runner struct {
	logger    zerolog.Logger
	waitDelay time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithWaitDelay overrides how long to wait for output pipes after exit.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// New creates a Runner.
func New(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:    logger,
		waitDelay: defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes c and waits for it. A non-zero exit is not an error: it is
// reported through Result.Status and Result.ExitCode. Timeouts and
// unrepresentable output return an *Error together with the partial Result.
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	r.logger.Debug().
		Str("command", c.String()).
		Dur("timeout", c.Timeout).
		Msg("Running command")

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = r.waitDelay

	// A single buffer keeps stdout and stderr in write order; exec serializes
	// writes when both point at the same writer.
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Command:  c,
		Output:   output.String(),
		Duration: time.Since(start),
	}

	if ctxErr := runCtx.Err(); ctxErr != nil && ctx.Err() == nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		result.Status = StatusTimedOut
		result.ExitCode = -1
		r.logger.Debug().
			Str("command", c.String()).
			Dur("timeout", c.Timeout).
			Msg("Command timed out")
		return result, &Error{Kind: ErrTimedOut, Result: result}
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("run %s: %w", c, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		result.Status = StatusSuccess
		if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		}
		if result.ExitCode != 0 {
			result.Status = StatusNonZeroExit
		}
	case errors.As(err, &exitErr):
		result.Status = StatusNonZeroExit
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode == 0 {
			result.ExitCode = -1
		}
	default:
		result.Status = StatusUnrepresentable
		result.ExitCode = -1
		return result, &Error{Kind: ErrUnrepresentable, Result: result, Err: err}
	}

	if !utf8.ValidString(result.Output) {
		result.Status = StatusUnrepresentable
		return result, &Error{
			Kind:   ErrUnrepresentable,
			Result: result,
			Err:    errors.New("output is not valid UTF-8"),
		}
	}

	r.logger.Debug().
		Str("command", c.String()).
		Int("exit_code", result.ExitCode).
		Stringer("status", result.Status).
		Dur("duration", result.Duration).
		Msg("Command finished")

	return result, nil
}
