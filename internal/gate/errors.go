package gate

import (
	"fmt"

	"github.com/deixis/gate/internal/report"
)

// StepError describes the step that stopped a run.
type StepError struct {
	Index    int
	Step     string
	ExitCode int
	Status   report.Status
	Detail   string // start or interrupt error, if any
}

func (e *StepError) Error() string {
	switch {
	case e.Status == report.NotFound:
		return fmt.Sprintf("step %d (%s): %s", e.Index+1, e.Step, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("step %d (%s) failed with exit code %d: %s", e.Index+1, e.Step, e.ExitCode, e.Detail)
	default:
		return fmt.Sprintf("step %d (%s) failed with exit code %d", e.Index+1, e.Step, e.ExitCode)
	}
}

// Err returns a *StepError for a failed run, nil for a passing one.
func Err(result *report.RunResult) error {
	failed := result.Failed()
	if failed == nil {
		return nil
	}
	return &StepError{
		Index:    failed.Index,
		Step:     failed.Name,
		ExitCode: failed.ExitCode,
		Status:   failed.Status,
		Detail:   failed.Error,
	}
}

// ExitCode is the process exit code for result: 0 on success, otherwise
// the failing step's exit code.
func ExitCode(result *report.RunResult) int {
	if result.Passed() {
		return 0
	}
	if result.ExitCode == 0 {
		// A failed step always exits non-zero; guard against a zero
		// leaking through from a runner that could not report one.
		return 1
	}
	return result.ExitCode
}
