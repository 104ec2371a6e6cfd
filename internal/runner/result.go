package runner

import "time"

// Result holds the outcome of one command execution.
type Result struct {
	RunID       string        // unique identifier for this invocation
	ExitCode    int           // process exit code; 128+n when killed by signal n
	Stdout      []byte        // captured stdout (may be truncated)
	Stderr      []byte        // captured stderr (may be truncated)
	Truncated   bool          // true if output exceeded the capture cap
	Duration    time.Duration // wall time from start to exit
	Interrupted bool          // the context was cancelled or timed out while running
}

// Output returns captured stdout followed by captured stderr.
func (r *Result) Output() string {
	if len(r.Stderr) == 0 {
		return string(r.Stdout)
	}
	if len(r.Stdout) == 0 {
		return string(r.Stderr)
	}
	return string(r.Stdout) + string(r.Stderr)
}
