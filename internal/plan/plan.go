// Package plan defines the ordered, immutable list of commands a gate
// run executes.
package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPlan is returned when a plan would contain no commands.
var ErrEmptyPlan = errors.New("plan has no commands")

// Command is a single external program invocation. It succeeds iff the
// process exits with status 0.
type Command struct {
	Name    string   `json:"name"`
	Program string   `json:"program"`
	Args    []string `json:"args,omitempty"`
}

// Argv returns the program followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.Program}, c.Args...)
}

// String renders the command line, quoting arguments with spaces.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, a := range c.Argv() {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Plan is an ordered sequence of commands. Insertion order is
// execution order. A Plan is never mutated after New returns.
type Plan struct {
	mode Mode
	cmds []Command
}

// New builds a plan from cmds. Commands without a name are named after
// their position. The input slice and argument slices are copied.
func New(mode Mode, cmds ...Command) (*Plan, error) {
	if len(cmds) == 0 {
		return nil, ErrEmptyPlan
	}
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		if c.Program == "" {
			return nil, fmt.Errorf("command %d: program is required", i)
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("step-%d", i+1)
		}
		c.Args = append([]string(nil), c.Args...)
		out[i] = c
	}
	return &Plan{mode: mode, cmds: out}, nil
}

// Mode returns the mode the plan was built for.
func (p *Plan) Mode() Mode { return p.mode }

// Len returns the number of commands.
func (p *Plan) Len() int { return len(p.cmds) }

// At returns a copy of the i-th command.
func (p *Plan) At(i int) Command {
	c := p.cmds[i]
	c.Args = append([]string(nil), c.Args...)
	return c
}

// Commands returns a copy of the commands in execution order.
func (p *Plan) Commands() []Command {
	out := make([]Command, len(p.cmds))
	for i := range p.cmds {
		out[i] = p.At(i)
	}
	return out
}

// Describe renders one line per command.
func (p *Plan) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan (%s, %d steps):\n", p.mode, len(p.cmds))
	for i, c := range p.cmds {
		fmt.Fprintf(&b, "  %d. %-14s %s\n", i+1, c.Name, c)
	}
	return b.String()
}
