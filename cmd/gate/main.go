// Command gate runs a repository's pre-merge checks in order and exits
// with the status of the first one that fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deixis/gate"
	"github.com/deixis/gate/internal/config"
	"github.com/deixis/gate/internal/logging"
	"github.com/deixis/gate/internal/telemetry"
)

// exitUsage is returned for configuration and usage errors.
const exitUsage = 2

var (
	// Run flags
	apply     bool
	modeFlag  string
	jsonOut   bool
	timeout   time.Duration
	reportDir string

	// Global flags
	logLevel string
	trace    bool

	// Set up by PersistentPreRunE
	loaded          *config.LoadResult
	logger          = zap.NewNop()
	shutdownTracing = func(context.Context) error { return nil }
)

// exitError carries a process exit code out of a command. The reason has
// already been reported when it is returned.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run pre-merge checks in order, stopping at the first failure",
	Long: `gate runs a fixed, ordered plan of toolchain commands (build, test,
test with reduced features, format check, lint) and stops at the first
one that fails, exiting with its exit code.

The plan is read from a .gate file at the repository root. Without one,
the default Cargo plan is used.

Run without arguments to run the plan once.`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runGate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), gate.Version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: config, else warn)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Export OpenTelemetry spans to stderr")

	addRunFlags(rootCmd)
	addRunFlags(runCmd)
	addRunFlags(watchCmd)
	addPlanFlags(planCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func addPlanFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&apply, "apply", false, "Let fmt and lint rewrite files (same as --mode apply)")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "Plan mode: check or apply (default: config, else check)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON on stdout")
}

func addRunFlags(cmd *cobra.Command) {
	addPlanFlags(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-step timeout (default: config, else none)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory to store run results in (default: config)")
}

// setup loads the configuration and builds the logger and tracer every
// command but version needs.
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err = config.Load(wd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	level := logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	if level == "" {
		level = "warn"
	}
	l, err := logging.New(logging.Options{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	logger = l

	exporter := cfg.Trace.Exporter
	if exporter == "" {
		exporter = "stdout"
	}
	shutdown, err := telemetry.Setup(cmd.Context(), telemetry.Options{
		Enabled:  trace || cfg.Trace.Enabled,
		Exporter: exporter,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	shutdownTracing = shutdown

	logger.Debug("config loaded",
		zap.String("root", loaded.RepoRoot),
		zap.String("file", loaded.Path),
	)
	return nil
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("gate: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	_ = shutdownTracing(context.Background())
	_ = logger.Sync()

	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	log.Print(err)
	return exitUsage
}
