package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/deixis/gate/internal/gate"
	"github.com/deixis/gate/internal/plan"
	"github.com/deixis/gate/internal/report"
)

// styles render the human-readable output on stderr.
type styles struct {
	ok     lipgloss.Style
	fail   lipgloss.Style
	skip   lipgloss.Style
	header lipgloss.Style
	dim    lipgloss.Style
}

// newStyles builds styles whose colour profile matches w.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skip:   r.NewStyle().Faint(true),
		header: r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		dim:    r.NewStyle().Faint(true),
	}
}

// progress prints a header before each step starts.
type progress struct {
	w     io.Writer
	st    styles
	total int
}

func (p *progress) StepStarted(i int, c plan.Command) {
	fmt.Fprintln(p.w, renderStepHeader(p.st, i, p.total, c))
}

func (p *progress) StepFinished(int, report.StepRecord) {}
func (p *progress) Finished(*report.RunResult)          {}

func renderStepHeader(st styles, i, total int, c plan.Command) string {
	return st.header.Render(fmt.Sprintf("==> [%d/%d] %s", i+1, total, c.Name)) + " " + st.dim.Render(c.String())
}

// renderSummary lists every step with its outcome, then the verdict.
func renderSummary(st styles, rr *report.RunResult) string {
	var b strings.Builder
	fmt.Fprintln(&b)
	for _, s := range rr.Steps {
		name := fmt.Sprintf("%-14s", s.Name)
		switch s.Status {
		case report.Pass:
			fmt.Fprintf(&b, "  %s %s %s\n", st.ok.Render("ok  "), name, st.dim.Render(round(s.Duration).String()))
		case report.Skipped:
			fmt.Fprintf(&b, "  %s %s %s\n", st.skip.Render("-   "), st.skip.Render(name), st.skip.Render("skipped"))
		default:
			detail := fmt.Sprintf("exit code %d", s.ExitCode)
			if s.Status == report.NotFound {
				detail = "not found"
			}
			fmt.Fprintf(&b, "  %s %s %s\n", st.fail.Render("FAIL"), name, detail)
		}
	}

	if rr.Passed() {
		fmt.Fprintf(&b, "%s %d steps in %s\n", st.ok.Render("gate: passed"), len(rr.Steps), round(rr.Duration()))
		return b.String()
	}
	fmt.Fprintf(&b, "%s %v\n", st.fail.Render("gate: failed:"), gate.Err(rr))
	return b.String()
}

// renderPlan lists the plan's commands with their PATH resolution.
func renderPlan(st styles, root string, p *plan.Plan, res []plan.Resolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", st.dim.Render("root:"), root)
	fmt.Fprintf(&b, "%s %s\n\n", st.dim.Render("mode:"), p.Mode())
	for i, r := range res {
		fmt.Fprintf(&b, "  %d. %-14s %s\n", i+1, r.Command.Name, r.Command.String())
		if r.Err != nil {
			fmt.Fprintf(&b, "     %s %s\n", st.fail.Render("missing"), r.Err)
		} else {
			fmt.Fprintf(&b, "     %s\n", st.dim.Render(r.Path))
		}
	}
	return b.String()
}

// renderRun prints a stored run header followed by its summary.
func renderRun(st styles, rr *report.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", st.dim.Render("run:"), rr.ID, rr.Mode)
	fmt.Fprintf(&b, "%s %s\n", st.dim.Render("started:"), rr.Started.Format(time.RFC3339))
	b.WriteString(renderSummary(st, rr))
	return b.String()
}

// renderStep prints one stored step with its captured output.
func renderStep(st styles, s *report.StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", st.header.Render(fmt.Sprintf("step %d: %s", s.Index+1, s.Name)), st.dim.Render(strings.Join(s.Argv, " ")))
	fmt.Fprintf(&b, "status: %s", s.Status)
	if s.Status != report.Pass && s.Status != report.Skipped {
		fmt.Fprintf(&b, " (exit code %d)", s.ExitCode)
	}
	fmt.Fprintln(&b)
	if s.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", s.Error)
	}
	if s.Output != "" {
		fmt.Fprintln(&b)
		b.WriteString(s.Output)
		if !strings.HasSuffix(s.Output, "\n") {
			fmt.Fprintln(&b)
		}
	}
	if s.Truncated {
		fmt.Fprintln(&b, st.dim.Render("[output truncated]"))
	}
	return b.String()
}

func round(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(100 * time.Millisecond)
}
