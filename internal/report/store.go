// Package report provides structured persistence and retrieval of gate
// run results. Results are stored as typed structs and can be queried
// by step.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// Status is the outcome of a single step.
type Status string

const (
	Pass     Status = "pass"
	Fail     Status = "fail"
	NotFound Status = "not-found"
	Skipped  Status = "skipped"
)

// RunResult holds the structured outcome of a gate run.
type RunResult struct {
	ID        string       `json:"id"`
	Mode      string       `json:"mode"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished"`
	Steps     []StepRecord `json:"steps"`
	FailedIdx int          `json:"failed_idx"` // -1 if every step passed
	ExitCode  int          `json:"exit_code"`
}

// StepRecord is the outcome of one command in the plan.
type StepRecord struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Argv      []string      `json:"argv"`
	Status    Status        `json:"status"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Output    string        `json:"output,omitempty"` // captured stdout then stderr
	Truncated bool          `json:"truncated,omitempty"`
	Error     string        `json:"error,omitempty"` // start failure or interruption
}

// Passed reports whether every step passed.
func (r *RunResult) Passed() bool {
	return r.FailedIdx < 0
}

// Failed returns the failing step, or nil.
func (r *RunResult) Failed() *StepRecord {
	if r.FailedIdx < 0 || r.FailedIdx >= len(r.Steps) {
		return nil
	}
	return &r.Steps[r.FailedIdx]
}

// Duration is the wall time of the whole run.
func (r *RunResult) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ByStep returns the step with the given name, or the step at a 1-based
// position when name is a number.
func ByStep(result *RunResult, name string) (*StepRecord, error) {
	for i := range result.Steps {
		if result.Steps[i].Name == name {
			return &result.Steps[i], nil
		}
	}
	if pos, err := strconv.Atoi(name); err == nil && pos >= 1 && pos <= len(result.Steps) {
		return &result.Steps[pos-1], nil
	}
	names := make([]string, len(result.Steps))
	for i, s := range result.Steps {
		names[i] = s.Name
	}
	return nil, fmt.Errorf("run %s has no step %q (steps: %s)", result.ID, name, strings.Join(names, ", "))
}
