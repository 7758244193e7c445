package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/testbuild/internal/config"
	"github.com/deixis/testbuild/internal/report"
	"github.com/deixis/testbuild/internal/workflow"
)

type runParams struct {
	Paths          []string `json:"paths,omitempty" jsonschema:"test source files or directories, absolute or relative to the workspace. Defaults to the workspace."`
	Compiler       string   `json:"compiler,omitempty" jsonschema:"compiler profile (gcc, clang, msvc or a profile from the project file). Defaults to the project setting."`
	Recompile      bool     `json:"recompile,omitempty" jsonschema:"rebuild every test binary even when it is up to date"`
	Clean          bool     `json:"clean,omitempty" jsonschema:"remove the build directory first"`
	ContinueOnFail bool     `json:"continue_on_fail,omitempty" jsonschema:"keep running the remaining tests after a failure"`
	Memcheck       bool     `json:"memcheck,omitempty" jsonschema:"re-run passing tests under the memory checker"`
	Coverage       bool     `json:"coverage,omitempty" jsonschema:"build with coverage instrumentation and collect a coverage report"`
	Verbose        bool     `json:"verbose,omitempty" jsonschema:"include the full progress log"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	eng, progress, err := h.newEngine(config.Overrides{
		Compiler:       params.Compiler,
		Clean:          params.Clean,
		Recompile:      params.Recompile,
		ContinueOnFail: params.ContinueOnFail,
		Memcheck:       params.Memcheck,
		Coverage:       params.Coverage,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	workspace, _, _ := h.snapshot()
	rr, err := eng.Run(ctx, h.absPaths(workspace, params.Paths))
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	// Save results for tb_inspect.
	if err := h.store.Save(rr); err != nil {
		h.log.Warn().Err(err).Str("run", rr.ID).Msg("storing run result")
	}

	text := formatRun(rr)
	if params.Verbose {
		text += "\nProgress:\n" + progress.String()
	}
	return textResult(text)
}

// absPaths anchors relative paths at the workspace.
func (h *handler) absPaths(workspace string, paths []string) []string {
	if len(paths) == 0 {
		return []string{workspace}
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
		} else {
			out[i] = filepath.Join(workspace, p)
		}
	}
	return out
}

func formatRun(rr *report.RunResult) string {
	var b strings.Builder

	if rr.Passed {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Compiler: %s\n", rr.Compiler)
	fmt.Fprintf(&b, "Tests: %s\n", workflow.FormatCounts(rr))
	fmt.Fprintln(&b)

	for _, t := range rr.Tests {
		state := string(t.Status)
		if t.Compiled {
			state += ", rebuilt"
		}
		fmt.Fprintf(&b, "  %s: %s\n", t.Name, state)
	}
	fmt.Fprintln(&b)

	if rr.Passed {
		fmt.Fprintln(&b, "All tests passed.")
		return b.String()
	}

	fmt.Fprintln(&b, "Failures:")
	for _, f := range workflow.FormatFailures(rr) {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	fmt.Fprintln(&b)

	for _, d := range report.Failures(rr) {
		if strings.Contains(d.Message, "is required but not installed") {
			fmt.Fprintf(&b, "Action: %s. Install it and re-run tb_run.\n", d.Message)
			return b.String()
		}
	}
	fmt.Fprintf(&b, "Inspect with tb_inspect(run_id=%q, test=\"<test name>\").\n", rr.ID)
	return b.String()
}
