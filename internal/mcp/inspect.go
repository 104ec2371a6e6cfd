package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gate/internal/report"
)

const msRound = time.Millisecond

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a gate_run result"`
	Step  string `json:"step" jsonschema:"step name (e.g. build, test, test:reduced, fmt, lint) or 1-based step number"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Step == "" {
		return errorResult("step is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	step, err := report.ByStep(result, params.Step)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatInspect(result, step))
}

func formatInspect(rr *report.RunResult, s *report.StepRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", rr.ID, rr.Mode)
	fmt.Fprintf(&b, "Step %d/%d: %s\n", s.Index+1, len(rr.Steps), s.Name)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(s.Argv, " "))

	switch s.Status {
	case report.Skipped:
		fmt.Fprintln(&b, "Status: skipped (an earlier step failed)")
		return b.String()
	case report.Pass:
		fmt.Fprintln(&b, "Status: pass")
	default:
		fmt.Fprintf(&b, "Status: %s (exit code %d)\n", s.Status, s.ExitCode)
	}
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration.Round(msRound))
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}

	fmt.Fprintln(&b)
	if s.Output == "" {
		fmt.Fprintln(&b, "No output.")
		return b.String()
	}
	fmt.Fprintln(&b, "Output:")
	for _, line := range strings.Split(strings.TrimRight(s.Output, "\n"), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	if s.Truncated {
		fmt.Fprintln(&b, "    [output truncated]")
	}
	return b.String()
}
