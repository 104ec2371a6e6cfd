package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type planParams struct {
	Mode string `json:"mode,omitempty" jsonschema:"check or apply. Defaults to the configured mode."`
}

func (h *handler) planHandler(ctx context.Context, req *mcp.CallToolRequest, params planParams) (*mcp.CallToolResult, any, error) {
	cfg, root, _ := h.snapshot()

	p, err := buildPlan(cfg, params.Mode)
	if err != nil {
		return errorResult(err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Root: %s\n", root)
	b.WriteString(p.Describe())

	var missing []string
	for _, res := range p.ResolveAll(root) {
		if res.Err != nil {
			missing = append(missing, res.Err.Error())
		}
	}
	if len(missing) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Missing programs:")
		for _, m := range missing {
			fmt.Fprintf(&b, "  %s\n", m)
		}
	}
	return textResult(b.String())
}
