package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/gate/internal/report"
)

var showCmd = &cobra.Command{
	Use:   "show [run-id [step]]",
	Short: "Show stored run results",
	Long: `Without arguments, list stored runs, newest first. With a run id, print
that run's summary. With a run id and a step name or number, print the
step's captured output.

Runs are stored only when a report directory is configured (report.dir
in .gate, or --report-dir).`,
	Args: cobra.MaximumNArgs(2),
	RunE: showRun,
}

func init() {
	showCmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory run results are stored in (default: config)")
	showCmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON on stdout")
}

func showRun(cmd *cobra.Command, args []string) error {
	dir := resultDir()
	if dir == "" {
		return errors.New("no report directory configured (set report.dir in .gate or pass --report-dir)")
	}
	store := report.NewDiskStore(dir)
	out := cmd.OutOrStdout()
	st := newStyles(os.Stdout)

	if len(args) == 0 {
		ids, err := store.List()
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(out, ids)
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	rr, err := store.Load(args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		if jsonOut {
			return writeJSON(out, rr)
		}
		fmt.Fprint(out, renderRun(st, rr))
		return nil
	}

	step, err := report.ByStep(rr, args[1])
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(out, step)
	}
	fmt.Fprint(out, renderStep(st, step))
	return nil
}
