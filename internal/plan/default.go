package plan

import (
	"fmt"

	"github.com/deixis/gate/internal/config"
)

// Mode selects between the non-mutating and the mutating plan.
type Mode string

const (
	// Check runs formatting and lint steps in check-only mode: they
	// fail on a diff or a warning and never touch the tree.
	Check Mode = "check"
	// Apply lets formatting and lint steps rewrite files.
	Apply Mode = "apply"
)

// ParseMode converts s to a Mode. The empty string means Check.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Check:
		return Check, nil
	case Apply:
		return Apply, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want %s or %s)", s, Check, Apply)
	}
}

// Variant is a feature-flag variant of the test step.
type Variant struct {
	Name string
	Args []string
}

// Options parameterise the default toolchain plan.
type Options struct {
	Toolchain    string // program, e.g. "cargo"
	Mode         Mode
	Variants     []Variant
	TestArgs     []string
	LintArgs     []string
	DenyWarnings bool
}

// Default builds the standard gate: build, one test per variant,
// format, lint.
func Default(opts Options) (*Plan, error) {
	tc := opts.Toolchain
	if tc == "" {
		tc = config.DefaultToolchain
	}
	variants := opts.Variants
	if len(variants) == 0 {
		variants = []Variant{{Name: "default"}}
	}

	cmds := []Command{{Name: "build", Program: tc, Args: []string{"build"}}}

	for _, v := range variants {
		name := "test"
		if v.Name != "" && v.Name != "default" {
			name = "test:" + v.Name
		}
		args := []string{"test"}
		args = append(args, v.Args...)
		args = append(args, opts.TestArgs...)
		cmds = append(cmds, Command{Name: name, Program: tc, Args: args})
	}

	fmtArgs := []string{"fmt", "--all"}
	lintArgs := []string{"clippy", "--all-targets"}
	if opts.Mode == Apply {
		lintArgs = append(lintArgs, "--fix", "--allow-dirty", "--allow-staged")
	} else {
		fmtArgs = append(fmtArgs, "--", "--check")
	}
	lintArgs = append(lintArgs, opts.LintArgs...)
	if opts.DenyWarnings {
		lintArgs = append(lintArgs, "--", "-D", "warnings")
	}
	cmds = append(cmds,
		Command{Name: "fmt", Program: tc, Args: fmtArgs},
		Command{Name: "lint", Program: tc, Args: lintArgs},
	)

	return New(opts.Mode, cmds...)
}

// FromConfig builds the plan described by cfg for the given mode. An
// explicit steps list replaces the default plan entirely.
func FromConfig(cfg *config.Config, mode Mode) (*Plan, error) {
	if len(cfg.Steps) > 0 {
		cmds := make([]Command, len(cfg.Steps))
		for i, s := range cfg.Steps {
			cmds[i] = Command{Name: s.Name, Program: s.Program, Args: s.Args}
		}
		return New(mode, cmds...)
	}

	variants := make([]Variant, 0, len(cfg.TestVariants()))
	for _, v := range cfg.TestVariants() {
		variants = append(variants, Variant{Name: v.Name, Args: v.Args})
	}
	return Default(Options{
		Toolchain:    cfg.ToolchainProgram(),
		Mode:         mode,
		Variants:     variants,
		TestArgs:     cfg.Test.Args,
		LintArgs:     cfg.Lint.Args,
		DenyWarnings: cfg.DenyWarnings(),
	})
}
