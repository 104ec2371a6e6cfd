package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deixis/gate/internal/gate"
	"github.com/deixis/gate/internal/plan"
	"github.com/deixis/gate/internal/report"
	"github.com/deixis/gate/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the plan once (the default command)",
	Long: `Run every step of the plan in order. Output of each step is forwarded
unchanged. The first failing step stops the run and its exit code becomes
gate's exit code; a program that is not installed exits 127.`,
	Args: cobra.NoArgs,
	RunE: runGate,
}

func runGate(cmd *cobra.Command, args []string) error {
	p, err := buildPlan()
	if err != nil {
		return err
	}

	rr, err := execute(cmd.Context(), p, os.Stderr)
	if err != nil {
		return err
	}
	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), rr); err != nil {
			return err
		}
	}
	if code := gate.ExitCode(rr); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// selectedMode resolves --apply, --mode and the configured mode.
func selectedMode() (plan.Mode, error) {
	switch {
	case apply && modeFlag != "" && modeFlag != string(plan.Apply):
		return "", fmt.Errorf("--apply conflicts with --mode %s", modeFlag)
	case apply:
		return plan.Apply, nil
	case modeFlag != "":
		return plan.ParseMode(modeFlag)
	default:
		return plan.ParseMode(loaded.Config.ModeName())
	}
}

func buildPlan() (*plan.Plan, error) {
	mode, err := selectedMode()
	if err != nil {
		return nil, err
	}
	p, err := plan.FromConfig(loaded.Config, mode)
	if err != nil {
		return nil, fmt.Errorf("building plan: %w", err)
	}
	return p, nil
}

// execute runs p in the caller's working directory with child output
// forwarded to the terminal, saves the result when a report directory
// is configured and prints the summary to w.
func execute(ctx context.Context, p *plan.Plan, w io.Writer) (*report.RunResult, error) {
	cfg := loaded.Config
	dir := resultDir()

	r := runner.New("")
	r.Timeout = cfg.Timeout()
	if timeout > 0 {
		r.Timeout = timeout
	}
	r.MaxOutput = captureLimit(dir)

	st := newStyles(w)
	tracker := gate.NewTracker(&progress{w: w, st: st, total: p.Len()})
	eng := &gate.Engine{
		Runner:   r,
		Logger:   logger,
		Observer: tracker,
	}
	rr, err := eng.Run(ctx, p)
	if err != nil {
		return nil, err
	}
	logger.Debug("run finished", zap.String("run", rr.ID), zap.Stringer("state", tracker.State()))

	if dir != "" {
		if err := report.NewDiskStore(dir).Save(rr); err != nil {
			logger.Warn("saving run result", zap.String("run", rr.ID), zap.Error(err))
		} else {
			logger.Info("run saved", zap.String("run", rr.ID), zap.String("dir", dir))
		}
	}

	fmt.Fprint(w, renderSummary(st, rr))
	return rr, nil
}

// captureLimit is the per-stream capture size. Output is captured only
// when something reads it back (a stored report or --json); otherwise
// children write straight to the inherited stdout and stderr.
func captureLimit(reportDir string) int {
	if reportDir == "" && !jsonOut {
		return 0
	}
	return loaded.Config.MaxOutputBytes()
}

// resultDir is --report-dir, else the configured report directory.
func resultDir() string {
	if reportDir != "" {
		return reportDir
	}
	return loaded.ReportDir()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
