// Package runner executes a single plan command in a child process,
// forwarding its output and reporting its exit status.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/gate/internal/plan"
)

// DefaultGracePeriod is how long a child may take to exit after it has
// been sent an interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

// StartError is returned when a resolved program cannot be started
// (permission denied, bad executable format, ...).
type StartError struct {
	Program string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Program, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Runner executes commands in Dir with the caller's environment.
type Runner struct {
	Dir         string        // working directory; empty inherits the caller's
	Timeout     time.Duration // per command; zero means none
	MaxOutput   int           // bytes captured per stream; zero disables capture
	GracePeriod time.Duration // interrupt-to-kill delay; zero means DefaultGracePeriod

	// Stdout and Stderr receive the child's output unmodified. A nil
	// writer discards that stream.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Runner that forwards child output to the process's own
// stdout and stderr.
func New(dir string) *Runner {
	return &Runner{
		Dir:    dir,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes c and blocks until it exits. A non-zero exit is reported
// through Result.ExitCode, not as an error. Errors are reserved for
// commands that could not be started: *plan.NotFoundError when the
// program is not on PATH, *StartError otherwise.
func (r *Runner) Run(ctx context.Context, c plan.Command) (*Result, error) {
	path, err := plan.ResolveIn(r.Dir, c.Program)
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = r.Dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultGracePeriod
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = r.sink(r.Stdout, &stdout)
	cmd.Stderr = r.sink(r.Stderr, &stderr)

	res := &Result{RunID: uuid.New().String()}
	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)

	if cmd.ProcessState == nil {
		return nil, &StartError{Program: c.Program, Err: runErr}
	}

	res.ExitCode = exitCode(cmd.ProcessState)
	res.Interrupted = ctx.Err() != nil
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Truncated = r.MaxOutput > 0 && (stdout.Len() >= r.MaxOutput || stderr.Len() >= r.MaxOutput)
	return res, nil
}

// sink combines the forwarding writer with the bounded capture buffer.
func (r *Runner) sink(forward io.Writer, capture *bytes.Buffer) io.Writer {
	if r.MaxOutput <= 0 {
		return forward
	}
	lw := &limitWriter{buf: capture, limit: r.MaxOutput}
	if forward == nil {
		return lw
	}
	return io.MultiWriter(forward, lw)
}

// exitCode maps a finished process to a shell-style exit code.
func exitCode(ps *os.ProcessState) int {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		// Report everything as consumed so io.MultiWriter keeps forwarding.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
