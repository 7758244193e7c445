package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/testbuild/internal/report"
)

type inspectParams struct {
	RunID      string `json:"run_id" jsonschema:"the run ID from a tb_run result"`
	Test       string `json:"test,omitempty" jsonschema:"test name, source path or base name (e.g. test/options, options)"`
	Dependency string `json:"dependency,omitempty" jsonschema:"header or source path; lists the failed tests that depend on it"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Test == "" && params.Dependency == "" {
		return errorResult("one of test or dependency is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	if params.Dependency != "" {
		diagnostics := report.ByDependency(result, params.Dependency)
		if len(diagnostics) == 0 {
			return textResult(fmt.Sprintf("No failed tests depend on %s in run %s.", params.Dependency, params.RunID))
		}
		return textResult(formatDependencyFailures(params.RunID, params.Dependency, diagnostics))
	}

	t, err := result.Find(params.Test)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatTest(params.RunID, t))
}

func formatTest(runID string, t *report.TestResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", runID)
	if t.Status == report.Fail {
		fmt.Fprintf(&b, "%s: FAIL at %s\n", t.Name, t.Stage)
	} else {
		fmt.Fprintf(&b, "%s: PASS\n", t.Name)
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Source: %s\n", t.Source)
	fmt.Fprintf(&b, "Binary: %s\n", t.Artifact)
	if t.Compiled {
		fmt.Fprintf(&b, "Command: %s\n", t.Command)
	} else {
		fmt.Fprintln(&b, "Command: (up to date, not rebuilt)")
	}
	fmt.Fprintf(&b, "Duration: %s\n", t.Duration)

	if len(t.Dependencies) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Dependencies (%d):\n", len(t.Dependencies))
		for _, d := range t.Dependencies {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}

	if t.Message != "" {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Error: %s\n", t.Message)
	}
	if t.Output != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Output:")
		for _, line := range strings.Split(strings.TrimRight(t.Output, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	if t.Coverage != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Coverage:")
		for _, line := range strings.Split(t.Coverage, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	return b.String()
}

func formatDependencyFailures(runID, dep string, diagnostics []report.Diagnostic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", runID)
	fmt.Fprintf(&b, "%s: %d failed tests depend on it\n", dep, len(diagnostics))
	fmt.Fprintln(&b)
	for _, d := range diagnostics {
		fmt.Fprintf(&b, "%s [%s] %s\n", d.Test, d.Stage, d.Message)
	}
	return b.String()
}
