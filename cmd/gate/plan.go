package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/gate/internal/gate"
	"github.com/deixis/gate/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the plan and check that every program is installed",
	Long: `Print the commands gate would run, in order, and where each program
resolves on PATH. Exits 127 when any program is missing.`,
	Args: cobra.NoArgs,
	RunE: showPlan,
}

type planJSON struct {
	Root  string     `json:"root"`
	Mode  plan.Mode  `json:"mode"`
	Steps []planStep `json:"steps"`
}

type planStep struct {
	plan.Command
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

func showPlan(cmd *cobra.Command, args []string) error {
	p, err := buildPlan()
	if err != nil {
		return err
	}
	res := p.ResolveAll("")

	missing := 0
	out := planJSON{Root: loaded.RepoRoot, Mode: p.Mode()}
	for _, r := range res {
		s := planStep{Command: r.Command, Path: r.Path}
		if r.Err != nil {
			s.Error = r.Err.Error()
			missing++
		}
		out.Steps = append(out.Steps, s)
	}

	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderPlan(newStyles(os.Stdout), loaded.RepoRoot, p, res))
	}

	if missing > 0 {
		return &exitError{code: gate.ExitNotFound}
	}
	return nil
}
