package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/gate/internal/config"
	"github.com/deixis/gate/internal/gate"
	"github.com/deixis/gate/internal/plan"
	"github.com/deixis/gate/internal/report"
)

// tailLines is how much of a failed step's output gate_run returns.
const tailLines = 40

type runParams struct {
	Mode string `json:"mode,omitempty" jsonschema:"check (default, never modifies files) or apply (formats and applies lint fixes). Defaults to the configured mode."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	cfg, _, r := h.snapshot()

	p, err := buildPlan(cfg, params.Mode)
	if err != nil {
		return errorResult(err.Error())
	}

	if !h.runMu.TryLock() {
		return errorResult(fmt.Sprintf("Another gate_run is in progress (%s). Wait for it to finish, then retry.", h.activeState()))
	}
	defer h.runMu.Unlock()

	eng := &gate.Engine{Runner: r, Logger: h.log, Observer: h.track()}
	result, err := eng.Run(ctx, p)
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	// Save results for gate_inspect.
	if err := h.store.Save(result); err != nil {
		h.log.Warn("saving run result", zap.String("run", result.ID), zap.Error(err))
	}

	return textResult(formatRun(result))
}

// buildPlan resolves the mode (falling back to the configured one) and
// builds the plan.
func buildPlan(cfg *config.Config, mode string) (*plan.Plan, error) {
	if mode == "" {
		mode = cfg.ModeName()
	}
	m, err := plan.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	return plan.FromConfig(cfg, m)
}

func formatRun(rr *report.RunResult) string {
	var b strings.Builder

	if rr.Passed() {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Mode: %s\n", rr.Mode)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Steps:")
	for _, s := range rr.Steps {
		switch s.Status {
		case report.Pass:
			fmt.Fprintf(&b, "  %s: pass (%s)\n", s.Name, s.Duration.Round(msRound))
		case report.Skipped:
			fmt.Fprintf(&b, "  %s: skipped\n", s.Name)
		default:
			fmt.Fprintf(&b, "  %s: %s (exit code %d)\n", s.Name, s.Status, s.ExitCode)
		}
	}
	fmt.Fprintln(&b)

	failed := rr.Failed()
	if failed == nil {
		fmt.Fprintln(&b, "All steps passed.")
		return b.String()
	}

	fmt.Fprintf(&b, "Failed step: %s (%s)\n", failed.Name, strings.Join(failed.Argv, " "))
	if failed.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", failed.Error)
	}
	if out := tail(failed.Output, tailLines); out != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, out)
	}
	fmt.Fprintln(&b)

	if failed.Status == report.NotFound {
		fmt.Fprintf(&b, "Action: install %s and re-run gate_run.\n", failed.Argv[0])
	} else {
		fmt.Fprintf(&b, "Inspect with gate_inspect(run_id=%q, step=%q).\n", rr.ID, failed.Name)
	}
	return b.String()
}

// tail returns the last n lines of s, noting how many were dropped.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	dropped := len(lines) - n
	return fmt.Sprintf("... (%d earlier lines, see gate_inspect)\n%s", dropped, strings.Join(lines[dropped:], "\n"))
}
