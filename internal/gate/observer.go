package gate

import (
	"fmt"
	"sync"

	"github.com/deixis/gate/internal/plan"
	"github.com/deixis/gate/internal/report"
)

// Observer is notified as a run moves through its states. Calls are
// made synchronously from the goroutine executing the run.
type Observer interface {
	StepStarted(index int, c plan.Command)
	StepFinished(index int, rec report.StepRecord)
	Finished(result *report.RunResult)
}

type nopObserver struct{}

func (nopObserver) StepStarted(int, plan.Command)       {}
func (nopObserver) StepFinished(int, report.StepRecord) {}
func (nopObserver) Finished(*report.RunResult)          {}

// Phase is the coarse run state.
type Phase int

const (
	NotStarted Phase = iota
	Running
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is NOT_STARTED, RUNNING(Step), SUCCEEDED or FAILED(Step).
type State struct {
	Phase Phase
	Step  int // index of the running or failed step; -1 otherwise
}

func (s State) String() string {
	switch s.Phase {
	case Running, Failed:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Step)
	default:
		return s.Phase.String()
	}
}

// Tracker is an Observer that records the current State. It is safe
// to read from other goroutines while a run is in progress.
type Tracker struct {
	mu    sync.Mutex
	state State
	next  Observer
}

// NewTracker returns a Tracker in the NotStarted state that forwards
// every notification to next, if non-nil.
func NewTracker(next Observer) *Tracker {
	return &Tracker{state: State{Phase: NotStarted, Step: -1}, next: next}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) StepStarted(index int, c plan.Command) {
	t.set(State{Phase: Running, Step: index})
	if t.next != nil {
		t.next.StepStarted(index, c)
	}
}

func (t *Tracker) StepFinished(index int, rec report.StepRecord) {
	if t.next != nil {
		t.next.StepFinished(index, rec)
	}
}

func (t *Tracker) Finished(result *report.RunResult) {
	if result.Passed() {
		t.set(State{Phase: Succeeded, Step: -1})
	} else {
		t.set(State{Phase: Failed, Step: result.FailedIdx})
	}
	if t.next != nil {
		t.next.Finished(result)
	}
}

func (t *Tracker) set(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}
