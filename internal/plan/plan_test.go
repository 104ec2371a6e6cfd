package plan

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/gate/internal/config"
)

func argvs(p *Plan) []string {
	var out []string
	for _, c := range p.Commands() {
		out = append(out, strings.Join(c.Argv(), " "))
	}
	return out
}

func TestNew_Empty(t *testing.T) {
	_, err := New(Check)
	require.ErrorIs(t, err, ErrEmptyPlan)
}

func TestNew_MissingProgram(t *testing.T) {
	_, err := New(Check, Command{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program is required")
}

func TestNew_NamesAndOrder(t *testing.T) {
	p, err := New(Check,
		Command{Program: "a"},
		Command{Name: "second", Program: "b"},
		Command{Program: "c"},
	)
	require.NoError(t, err)
	require.Equal(t, 3, p.Len())
	assert.Equal(t, "step-1", p.At(0).Name)
	assert.Equal(t, "second", p.At(1).Name)
	assert.Equal(t, "step-3", p.At(2).Name)
	assert.Equal(t, []string{"a", "b", "c"}, []string{p.At(0).Program, p.At(1).Program, p.At(2).Program})
}

func TestPlan_Immutable(t *testing.T) {
	args := []string{"test"}
	cmds := []Command{{Name: "t", Program: "cargo", Args: args}}
	p, err := New(Check, cmds...)
	require.NoError(t, err)

	// Mutating the inputs must not leak into the plan.
	args[0] = "mutated"
	cmds[0].Program = "mutated"
	assert.Equal(t, "cargo test", strings.Join(p.At(0).Argv(), " "))

	// Nor may mutating what the plan hands out.
	got := p.Commands()
	got[0].Args[0] = "mutated"
	got[0].Name = "mutated"
	assert.Equal(t, "t", p.At(0).Name)
	assert.Equal(t, "test", p.At(0).Args[0])
}

func TestDefault_Check(t *testing.T) {
	p, err := Default(Options{
		Toolchain: "cargo",
		Mode:      Check,
		Variants: []Variant{
			{Name: "default"},
			{Name: "reduced", Args: []string{"--no-default-features"}},
		},
		DenyWarnings: true,
	})
	require.NoError(t, err)
	assert.Equal(t, Check, p.Mode())
	assert.Equal(t, []string{
		"cargo build",
		"cargo test",
		"cargo test --no-default-features",
		"cargo fmt --all -- --check",
		"cargo clippy --all-targets -- -D warnings",
	}, argvs(p))

	names := make([]string, 0, p.Len())
	for _, c := range p.Commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"build", "test", "test:reduced", "fmt", "lint"}, names)
}

func TestDefault_Apply(t *testing.T) {
	p, err := Default(Options{Toolchain: "cargo", Mode: Apply, DenyWarnings: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cargo build",
		"cargo test",
		"cargo fmt --all",
		"cargo clippy --all-targets --fix --allow-dirty --allow-staged -- -D warnings",
	}, argvs(p))
}

func TestDefault_ExtraArgs(t *testing.T) {
	p, err := Default(Options{
		Mode:     Check,
		Variants: []Variant{{Name: "reduced", Args: []string{"--no-default-features"}}},
		TestArgs: []string{"--workspace"},
		LintArgs: []string{"--workspace"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cargo build",
		"cargo test --no-default-features --workspace",
		"cargo fmt --all -- --check",
		"cargo clippy --all-targets --workspace",
	}, argvs(p))
}

func TestFromConfig_Default(t *testing.T) {
	p, err := FromConfig(&config.Config{}, Check)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Len())
	assert.Equal(t, "cargo test --no-default-features", strings.Join(p.At(2).Argv(), " "))
}

func TestFromConfig_CustomSteps(t *testing.T) {
	cfg := &config.Config{Steps: []config.StepConfig{
		{Name: "vet", Program: "go", Args: []string{"vet", "./..."}},
		{Name: "test", Program: "go", Args: []string{"test", "./..."}},
	}}
	p, err := FromConfig(cfg, Apply)
	require.NoError(t, err)
	assert.Equal(t, []string{"go vet ./...", "go test ./..."}, argvs(p))
	assert.Equal(t, Apply, p.Mode())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Check, m)

	m, err = ParseMode("apply")
	require.NoError(t, err)
	assert.Equal(t, Apply, m)

	_, err = ParseMode("fix")
	assert.Error(t, err)
}

func TestCommand_String(t *testing.T) {
	c := Command{Program: "sh", Args: []string{"-c", "exit 2"}}
	assert.Equal(t, `sh -c "exit 2"`, c.String())
}

func TestDescribe(t *testing.T) {
	p, err := New(Check, Command{Name: "build", Program: "cargo", Args: []string{"build"}})
	require.NoError(t, err)
	out := p.Describe()
	assert.Contains(t, out, "Plan (check, 1 steps)")
	assert.Contains(t, out, "cargo build")
}

func TestResolve_NotFound(t *testing.T) {
	orig := LookPath
	t.Cleanup(func() { LookPath = orig })
	LookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	_, err := ResolveIn("", "cargo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.Contains(t, err.Error(), "rustup")

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "cargo", nf.Program)
}

func TestResolve_UnknownProgramHasNoHint(t *testing.T) {
	err := NewNotFoundError("frobnicate", nil)
	assert.Equal(t, "frobnicate is required but not installed", err.Error())
}

func TestResolveAll(t *testing.T) {
	orig := LookPath
	t.Cleanup(func() { LookPath = orig })
	LookPath = func(name string) (string, error) {
		if name == "missing" {
			return "", exec.ErrNotFound
		}
		return "/usr/bin/" + name, nil
	}

	p, err := New(Check,
		Command{Name: "a", Program: "sh"},
		Command{Name: "b", Program: "missing"},
		Command{Name: "c", Program: "true"},
	)
	require.NoError(t, err)

	res := p.ResolveAll("")
	require.Len(t, res, 3)
	assert.Equal(t, "/usr/bin/sh", res[0].Path)
	assert.ErrorIs(t, res[1].Err, ErrNotFound)
	assert.NoError(t, res[2].Err)
}

func TestResolveIn_RelativeToDir(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "ci.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	sub := filepath.Join(root, "src")
	require.NoError(t, os.Mkdir(sub, 0o755))
	t.Chdir(sub)

	path, err := ResolveIn(root, "./ci.sh")
	require.NoError(t, err)
	assert.Equal(t, script, path)

	_, err = ResolveIn("", "./ci.sh")
	assert.ErrorIs(t, err, ErrNotFound, "without dir the lookup is relative to the current directory")

	var nf *NotFoundError
	_, err = ResolveIn(sub, "./ci.sh")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "./ci.sh", nf.Program)
}
