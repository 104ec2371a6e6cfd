// Package config loads and validates the optional .gate YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file at the repository root.
const FileName = ".gate"

// Default values for runner configuration.
const (
	DefaultToolchain = "cargo"
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultDebounce  = 500 * time.Millisecond
)

// Config holds the parsed .gate configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int          `yaml:"version"`
	Toolchain    string       `yaml:"toolchain"` // program used by the default plan
	Mode         string       `yaml:"mode"`      // check | apply
	RawTimeout   string       `yaml:"timeout"`   // per step, e.g. "10m"; empty means none
	RawMaxOutput int          `yaml:"max_output"`
	Variants     []Variant    `yaml:"variants"`
	Test         TestConfig   `yaml:"test"`
	Lint         LintConfig   `yaml:"lint"`
	Steps        []StepConfig `yaml:"steps"`
	Report       ReportConfig `yaml:"report"`
	Watch        WatchConfig  `yaml:"watch"`
	Log          LogConfig    `yaml:"log"`
	Trace        TraceConfig  `yaml:"trace"`
}

// Variant is a feature-flag variant of the test step.
type Variant struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"` // appended to the test command
}

// TestConfig controls the test steps.
type TestConfig struct {
	Args []string `yaml:"args"` // extra args after the variant args
}

// LintConfig controls the lint step.
type LintConfig struct {
	Args         []string `yaml:"args"`
	DenyWarnings *bool    `yaml:"deny_warnings"` // default true
}

// StepConfig is one entry of a custom plan.
type StepConfig struct {
	Name    string   `yaml:"name"`
	Program string   `yaml:"program"`
	Args    []string `yaml:"args"`
}

// ReportConfig controls where run results are persisted.
type ReportConfig struct {
	Dir string `yaml:"dir"` // relative to the repo root; empty means a temp dir
}

// WatchConfig controls gate watch.
type WatchConfig struct {
	RawDebounce string   `yaml:"debounce"`
	Ignore      []string `yaml:"ignore"` // directory names skipped by the watcher
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console | json
}

// TraceConfig controls OpenTelemetry tracing.
type TraceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

// DefaultVariants are used when no variants are configured.
var DefaultVariants = []Variant{
	{Name: "default"},
	{Name: "reduced", Args: []string{"--no-default-features"}},
}

// DefaultRootMarkers identify the repository root when no .gate file
// is found on the way up.
var DefaultRootMarkers = []string{"Cargo.toml", "go.mod", ".git"}

// DefaultWatchIgnore lists directories never watched.
var DefaultWatchIgnore = []string{".git", "target", "node_modules"}

// ToolchainProgram returns the configured toolchain or the default.
func (c *Config) ToolchainProgram() string {
	if c.Toolchain != "" {
		return c.Toolchain
	}
	return DefaultToolchain
}

// ModeName returns the configured mode, "check" when unset.
func (c *Config) ModeName() string {
	if c.Mode != "" {
		return c.Mode
	}
	return "check"
}

// Timeout returns the configured per-step timeout. Zero means no timeout.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// MaxOutputBytes returns the configured capture size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// TestVariants returns the configured variants, falling back to defaults.
func (c *Config) TestVariants() []Variant {
	if len(c.Variants) > 0 {
		return c.Variants
	}
	return DefaultVariants
}

// DenyWarnings reports whether lint warnings fail the lint step.
func (c *Config) DenyWarnings() bool {
	if c.Lint.DenyWarnings != nil {
		return *c.Lint.DenyWarnings
	}
	return true
}

// Debounce returns the watch debounce window.
func (c *Config) Debounce() time.Duration {
	if c.Watch.RawDebounce != "" {
		d, err := time.ParseDuration(c.Watch.RawDebounce)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultDebounce
}

// WatchIgnore returns the default ignore list plus configured entries.
func (c *Config) WatchIgnore() []string {
	out := append([]string{}, DefaultWatchIgnore...)
	return append(out, c.Watch.Ignore...)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.ModeName() {
	case "check", "apply":
	default:
		return fmt.Errorf("invalid mode %q (want check or apply)", c.Mode)
	}
	seen := make(map[string]bool)
	for i, v := range c.Variants {
		if v.Name == "" {
			return fmt.Errorf("variants[%d]: name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("variants[%d]: duplicate name %q", i, v.Name)
		}
		seen[v.Name] = true
	}
	names := make(map[string]bool)
	for i, s := range c.Steps {
		if s.Program == "" {
			return fmt.Errorf("steps[%d]: program is required", i)
		}
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		if names[name] {
			return fmt.Errorf("steps[%d]: duplicate name %q", i, name)
		}
		names[name] = true
	}
	if c.RawTimeout != "" {
		if _, err := time.ParseDuration(c.RawTimeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.RawTimeout, err)
		}
	}
	if c.Watch.RawDebounce != "" {
		d, err := time.ParseDuration(c.Watch.RawDebounce)
		if err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.RawDebounce, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid watch.debounce %q: must be positive", c.Watch.RawDebounce)
		}
	}
	return nil
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing a root marker; falls back to workspace
	Path     string // path of the .gate file, empty if none was found
}

// ReportDir returns the absolute report directory, or "" when unset.
func (r *LoadResult) ReportDir() string {
	dir := r.Config.Report.Dir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(r.RepoRoot, dir)
}

// Load reads the .gate file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for a .gate file or a root marker. If no .gate file exists,
// a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace, DefaultRootMarkers)
	if err != nil {
		root = workspace
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, RepoRoot: root, Path: path}, nil
}

// findRepoRoot walks upward from dir looking for a directory containing
// the config file or any of the markers.
func findRepoRoot(dir string, markers []string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	names := append([]string{FileName}, markers...)
	for {
		for _, name := range names {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no repository root marker found")
		}
		dir = parent
	}
}
