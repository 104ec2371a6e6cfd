// Package mcp provides the gate MCP server, registering the gate tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/gate"
	"github.com/deixis/gate/internal/config"
	gaterun "github.com/deixis/gate/internal/gate"
	"github.com/deixis/gate/internal/report"
	"github.com/deixis/gate/internal/runner"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.Mutex
	cfg    *config.Config
	root   string
	runner runner.Runner // template; copied for every run
	store  report.Store
	log    *zap.Logger

	runMu  sync.Mutex       // runs never overlap
	active *gaterun.Tracker // state of the latest run; guarded by mu
}

// NewServer creates an MCP server with all gate tools registered. Child
// output is captured, never forwarded, so r's writers are ignored.
func NewServer(loaded *config.LoadResult, r *runner.Runner, store report.Store, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}
	if so.logger == nil {
		so.logger = zap.NewNop()
	}

	h := &handler{
		cfg:    loaded.Config,
		root:   loaded.RepoRoot,
		runner: *r,
		store:  store,
		log:    so.logger,
	}
	h.runner.Stdout = nil
	h.runner.Stderr = nil
	if h.runner.MaxOutput <= 0 {
		h.runner.MaxOutput = config.DefaultMaxOutput
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "gate", Version: gate.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "gate_plan",
		Description: "List the commands gate_run would execute, in order, and whether each program is installed.",
	}, h.planHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "gate_run",
		Description: `Run the pre-merge gate: build, test, reduced-feature test, format check and lint, in order, stopping at the first failure.

Use this after making code changes. mode=check (default) never modifies files; mode=apply formats and applies lint fixes.
Results are stored for drill-down via gate_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "gate_inspect",
		Description: `Show the captured output of one step from a gate_run result.

Use the run_id from gate_run and a step name (e.g. test) or 1-based step number.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the gate MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for run and step logs.
func WithLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// snapshot returns the current config, root and a private runner.
func (h *handler) snapshot() (*config.Config, string, *runner.Runner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.runner
	return h.cfg, h.root, &r
}

// track installs a fresh tracker for the run about to start.
func (h *handler) track() *gaterun.Tracker {
	tr := gaterun.NewTracker(nil)
	h.mu.Lock()
	h.active = tr
	h.mu.Unlock()
	return tr
}

// activeState describes the run in progress.
func (h *handler) activeState() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return "starting"
	}
	return h.active.State().String()
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's config and runner if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		h.log.Warn("ignoring client root", zap.String("root", u.Path), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = loaded.Config
	h.root = loaded.RepoRoot
	h.runner.Dir = loaded.RepoRoot
	h.runner.Timeout = loaded.Config.Timeout()
	h.runner.MaxOutput = loaded.Config.MaxOutputBytes()
	h.log.Info("workspace set from client root", zap.String("root", loaded.RepoRoot))
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
