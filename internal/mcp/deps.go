package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/testbuild/internal/config"
	"github.com/deixis/testbuild/internal/toolchain"
)

type depsParams struct {
	Source string `json:"source" jsonschema:"test source file, absolute or relative to the workspace"`
}

func (h *handler) depsHandler(ctx context.Context, req *mcp.CallToolRequest, params depsParams) (*mcp.CallToolResult, any, error) {
	if params.Source == "" {
		return errorResult("source is required")
	}

	eng, _, err := h.newEngine(config.Overrides{})
	if err != nil {
		return errorResult(fmt.Sprintf("deps failed: %v", err))
	}

	workspace, _, _ := h.snapshot()
	source := params.Source
	if !filepath.IsAbs(source) {
		source = filepath.Join(workspace, source)
	}

	set, err := eng.Dependencies(source)
	if err != nil {
		return errorResult(fmt.Sprintf("deps failed: %v", err))
	}
	if len(set) == 0 {
		return errorResult(fmt.Sprintf("%s does not exist", params.Source))
	}

	deps := set.Sorted()
	units := toolchain.Units(deps, eng.Settings.Extension)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d dependencies):\n", params.Source, len(deps))
	for _, d := range deps {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Translation units (%d):\n", len(units))
	for _, u := range units {
		fmt.Fprintf(&b, "  %s\n", u)
	}
	return textResult(b.String())
}
