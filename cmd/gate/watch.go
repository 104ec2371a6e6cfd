package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/gate/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the plan, then run it again whenever files change",
	Long: `Run the plan once, then watch the repository and run it again after
every change. Build output, VCS and hidden directories are ignored. Runs
never overlap: changes made during a run trigger one more run after it.`,
	Args: cobra.NoArgs,
	RunE: watchGate,
}

func watchGate(cmd *cobra.Command, args []string) error {
	p, err := buildPlan()
	if err != nil {
		return err
	}

	cfg := loaded.Config
	w, err := watch.New(loaded.RepoRoot, watch.Options{
		Debounce: cfg.Debounce(),
		Ignore:   cfg.WatchIgnore(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	st := newStyles(os.Stderr)
	return w.Run(cmd.Context(), func(ctx context.Context, changed []string) {
		if len(changed) > 0 {
			fmt.Fprintln(os.Stderr, st.dim.Render(fmt.Sprintf("\n%d file(s) changed, running again", len(changed))))
		}
		rr, err := execute(ctx, p, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gate: %v\n", err)
			return
		}
		if jsonOut {
			_ = writeJSON(cmd.OutOrStdout(), rr)
		}
	})
}
