package plan

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("program not found")

// toolInfo holds install metadata for a known program.
type toolInfo struct {
	Install string // command or URL
	Note    string
}

// knownTools maps program names to install hints.
var knownTools = map[string]toolInfo{
	"cargo":         {Install: "https://rustup.rs"},
	"rustfmt":       {Install: "rustup component add rustfmt"},
	"cargo-fmt":     {Install: "rustup component add rustfmt"},
	"cargo-clippy":  {Install: "rustup component add clippy"},
	"go":            {Install: "https://go.dev/dl/"},
	"golangci-lint": {Install: "https://golangci-lint.run/welcome/install/", Note: "go install is not recommended for golangci-lint."},
}

// NotFoundError is returned when a command's program cannot be located
// on PATH. It includes install instructions when the program is known.
type NotFoundError struct {
	Program string
	Info    *toolInfo
	Err     error
}

// NewNotFoundError builds a NotFoundError for program.
func NewNotFoundError(program string, err error) *NotFoundError {
	e := &NotFoundError{Program: program, Err: err}
	if info, ok := knownTools[program]; ok {
		e.Info = &info
	}
	return e
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed", e.Program)
	if e.Info == nil {
		return b.String()
	}
	fmt.Fprintf(&b, " (install: %s)", e.Info.Install)
	if e.Info.Note != "" {
		fmt.Fprintf(&b, " %s", e.Info.Note)
	}
	return b.String()
}

// Is reports ErrNotFound as a match.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// LookPath is the PATH lookup used by ResolveIn. Tests may replace it.
var LookPath = exec.LookPath

// ResolveIn returns the path of program for a child running in dir, or
// a *NotFoundError. A program containing a path separator is looked up
// relative to dir; bare names are searched on PATH. An empty dir means
// the current directory.
func ResolveIn(dir, program string) (string, error) {
	name := program
	if dir != "" && strings.ContainsRune(program, filepath.Separator) && !filepath.IsAbs(program) {
		abs, err := filepath.Abs(filepath.Join(dir, program))
		if err != nil {
			return "", NewNotFoundError(program, err)
		}
		name = abs
	}
	path, err := LookPath(name)
	if err != nil {
		return "", NewNotFoundError(program, err)
	}
	return path, nil
}

// Resolution is the PATH lookup outcome for one command.
type Resolution struct {
	Command Command
	Path    string
	Err     error
}

// ResolveAll resolves every program in p for children running in dir,
// in order. It never stops early so callers can report every missing
// program at once.
func (p *Plan) ResolveAll(dir string) []Resolution {
	out := make([]Resolution, len(p.cmds))
	for i := range p.cmds {
		c := p.At(i)
		path, err := ResolveIn(dir, c.Program)
		out[i] = Resolution{Command: c, Path: path, Err: err}
	}
	return out
}
