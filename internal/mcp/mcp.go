// Package mcp provides the testbuild MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"bytes"
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/testbuild"
	"github.com/deixis/testbuild/internal/config"
	"github.com/deixis/testbuild/internal/report"
	"github.com/deixis/testbuild/internal/runner"
	"github.com/deixis/testbuild/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu        sync.Mutex
	workspace string
	project   string // project file path; empty if none
	cfg       *config.Config

	runner *runner.Runner // replaced, never mutated, on a workspace change
	exec   workflow.CommandRunner // overrides runner when set
	store  report.Store
	log    zerolog.Logger
}

// NewServer creates an MCP server with all testbuild tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	so := serverOptions{log: zerolog.Nop()}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		workspace: workspace,
		project:   so.project,
		cfg:       cfg,
		runner:    r,
		exec:      so.exec,
		store:     store,
		log:       so.log,
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
	s := mcp.NewServer(&mcp.Implementation{Name: "testbuild", Version: testbuild.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "tb_workspace",
		Description: "Summarise the test build setup: project file, compiler profile, build directory, include paths and discovered test sources.",
	}, h.workspaceHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "tb_run",
		Description: `Build and run C++ tests, recompiling only binaries older than their dependencies.

Stops at the first failing test unless continue_on_fail is set. Each test binary must exit 0 to pass.
Results are stored for drill-down via tb_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "tb_deps",
		Description: `List the dependency set of one test source: the source itself and every header or
translation unit reached through #include and #pragma test needs("...") directives.`,
	}, h.depsHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "tb_inspect",
		Description: `Drill into results from a tb_run run.

Use the run_id and either a test name (e.g. test/options or options) for its command, dependencies and output,
or a dependency path (e.g. include/lib.h) for every failed test that depends on it.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the testbuild MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	exec    workflow.CommandRunner
	log     zerolog.Logger
	project string
}

// WithCommandRunner replaces the runner used to execute compilers and
// tests.
func WithCommandRunner(r workflow.CommandRunner) ServerOption {
	return func(o *serverOptions) {
		o.exec = r
	}
}

// WithLogger sets the logger handed to every engine.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.log = l
	}
}

// WithProjectFile records the project file the configuration was loaded
// from.
func WithProjectFile(path string) ServerOption {
	return func(o *serverOptions) {
		o.project = path
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's workspace, runner, and config if a valid root is returned.
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
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn().Err(err).Str("workspace", workspace).Msg("ignoring client root")
		return
	}
	h.setWorkspace(workspace, loaded)
}

// setWorkspace switches the handler to workspace. The runner is replaced
// so that engines already holding the previous one are unaffected.
func (h *handler) setWorkspace(workspace string, loaded *config.LoadResult) {
	r := &runner.Runner{
		Root:      workspace,
		Timeout:   loaded.Config.Timeout(),
		MaxOutput: loaded.Config.MaxOutputBytes(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runner = r
	h.cfg = loaded.Config
	h.project = loaded.Path
	h.workspace = workspace
}

// snapshot returns the current workspace, project file and config.
func (h *handler) snapshot() (string, string, *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.workspace, h.project, h.cfg
}

// newEngine builds an engine for one tool call. Relative paths in the
// settings are anchored at the workspace. Progress output goes to the
// returned buffer.
func (h *handler) newEngine(o config.Overrides) (*workflow.Engine, *bytes.Buffer, error) {
	h.mu.Lock()
	workspace, cfg, base := h.workspace, h.cfg, h.runner
	h.mu.Unlock()

	s, err := cfg.Settings(o)
	if err != nil {
		return nil, nil, err
	}
	s = s.Rooted(workspace)

	var exec workflow.CommandRunner = h.exec
	if exec == nil {
		r := *base
		r.Allowed = []string{s.BuildDir}
		exec = &r
	}

	var progress bytes.Buffer
	return &workflow.Engine{
		Settings: s,
		Runner:   exec,
		Out:      &progress,
		Log:      h.log,
	}, &progress, nil
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
