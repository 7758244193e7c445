package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/testbuild/internal/config"
	"github.com/deixis/testbuild/internal/toolchain"
	"github.com/deixis/testbuild/internal/workflow"
)

type workspaceParams struct{}

func (h *handler) workspaceHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ workspaceParams) (*sdkmcp.CallToolResult, any, error) {
	workspace, project, cfg := h.snapshot()

	eng, _, err := h.newEngine(config.Overrides{})
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load settings: %v", err))
	}
	s := eng.Settings

	var b strings.Builder
	fmt.Fprintf(&b, "Workspace: %s\n", workspace)
	if project != "" {
		fmt.Fprintf(&b, "Project file: %s\n", project)
	} else {
		fmt.Fprintln(&b, "Project file: (none, using defaults)")
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Compiler: %s (%s)\n", s.Profile.Name, s.Profile.Exe)
	if table, err := cfg.Profiles(); err == nil {
		fmt.Fprintf(&b, "Available: %s\n", strings.Join(toolchain.Names(table), ", "))
	}
	fmt.Fprintf(&b, "Build directory: %s\n", s.BuildDir)
	fmt.Fprintf(&b, "Extension: .%s\n", s.Extension)
	fmt.Fprintf(&b, "Macros: %s\n", strings.Join(s.Macros, " "))
	fmt.Fprintln(&b, "Include paths:")
	for _, p := range s.IncludePaths {
		if p == "" {
			p = "(working directory)"
		}
		fmt.Fprintf(&b, "  %s\n", p)
	}
	fmt.Fprintln(&b)

	sources, err := workflow.DiscoverSources([]string{workspace}, s.Extension)
	if err != nil {
		fmt.Fprintf(&b, "Sources: (%v)\n", err)
		return textResult(b.String())
	}
	fmt.Fprintf(&b, "Sources (%d):\n", len(sources))
	for _, src := range sources {
		fmt.Fprintf(&b, "  %s\n", src)
	}
	return textResult(b.String())
}
