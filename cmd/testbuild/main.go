// Command testbuild compiles and runs single-file C++ tests, rebuilding
// only what changed since the last run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/testbuild"
	"github.com/deixis/testbuild/internal/config"
	"github.com/deixis/testbuild/internal/deps"
	"github.com/deixis/testbuild/internal/logging"
	tbmcp "github.com/deixis/testbuild/internal/mcp"
	"github.com/deixis/testbuild/internal/report"
	"github.com/deixis/testbuild/internal/runner"
	"github.com/deixis/testbuild/internal/toolchain"
	"github.com/deixis/testbuild/internal/workflow"
)

// errTestsFailed makes main exit 1 without printing anything further.
var errTestsFailed = errors.New("tests failed")

func main() {
	log.SetFlags(0)
	log.SetPrefix("testbuild: ")

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute dispatches args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && isCommand(args[0]) {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runMain(args, stdout, stderr)
	case "deps":
		err = depsMain(args, stdout, stderr)
	case "mcp":
		err = mcpMain(args, stderr)
	case "version":
		fmt.Fprintln(stdout, testbuild.Version)
	case "help":
		usage(stdout)
	}

	var usageErr usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errTestsFailed):
		return 1
	case errors.As(err, &usageErr):
		fmt.Fprintf(stderr, "testbuild: %v\n", err)
		return 2
	default:
		log.New(stderr, "testbuild: ", 0).Print(err)
		return 1
	}
}

func isCommand(s string) bool {
	switch s {
	case "run", "deps", "mcp", "version", "help":
		return true
	}
	return false
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: testbuild [command] [flags] [<directory|file>...]

Commands:
  run         Build and run tests (default)
  deps        Print the resolved dependencies of test sources
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "testbuild <command> -h" for command-specific flags.`)
}

// --- run ---

func runUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  testbuild [--help] [--clean] [-r] [-d] [-c (gcc|clang|msvc)] [--continue-on-fail]
            [--memcheck] [--coverage] [--json] [--timeout DURATION] [<directory|file>...]

Options:
  -h, --help                        print this screen
  --clean                           do a clean re-build; removes entire build directory
  -r, --recompile                   recompile all source files before running
  -d, --show-dependencies           show all resolved includes during compilation
  -c, --compiler (gcc|clang|msvc)   select compiler
  --continue-on-fail                continue running regardless of failed builds or tests
  --memcheck                        re-run passing tests under the memory checker
  --coverage                        build with coverage instrumentation and report coverage
  --json                            print the run result as JSON
  --timeout DURATION                per-command timeout (e.g. 30s, 5m)`)
}

func runMain(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { runUsage(stdout) }

	var o config.Overrides
	fs.BoolVar(&o.Clean, "clean", false, "remove the build directory first")
	fs.BoolVar(&o.Recompile, "r", false, "recompile all tests")
	fs.BoolVar(&o.Recompile, "recompile", false, "recompile all tests")
	fs.BoolVar(&o.ShowDependencies, "d", false, "show resolved dependencies")
	fs.BoolVar(&o.ShowDependencies, "show-dependencies", false, "show resolved dependencies")
	fs.StringVar(&o.Compiler, "c", "", "compiler profile")
	fs.StringVar(&o.Compiler, "compiler", "", "compiler profile")
	fs.BoolVar(&o.ContinueOnFail, "continue-on-fail", false, "keep going after failures")
	fs.BoolVar(&o.Memcheck, "memcheck", false, "re-run passing tests under the memory checker")
	fs.BoolVar(&o.Coverage, "coverage", false, "build with coverage and run the coverage tool")
	fs.DurationVar(&o.Timeout, "timeout", 0, "override configured timeout (e.g. 5m)")
	jsonFlag := fs.Bool("json", false, "output results as JSON")

	paths, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := stdout
	if *jsonFlag {
		out = stderr
	}
	eng, err := newEngine(o, out, logging.Stderr())
	if err != nil {
		return err
	}

	rr, err := eng.Run(ctx, paths)
	if err != nil {
		return err
	}

	if *jsonFlag {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rr); err != nil {
			return err
		}
	}

	if !rr.Passed {
		return errTestsFailed
	}
	return nil
}

// parseInterspersed parses flags that may appear before, between or after
// positional arguments, and returns the positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, usageError{err}
		}
		rest := fs.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// --- deps ---

func depsMain(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("deps", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "show the directives found in each dependency")

	files, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return usageError{errors.New("deps: at least one source file is required")}
	}

	eng, err := newEngine(config.Overrides{}, io.Discard, logging.Stderr())
	if err != nil {
		return err
	}

	for _, f := range files {
		set, err := eng.Dependencies(f)
		if err != nil {
			return err
		}
		if len(set) == 0 {
			return fmt.Errorf("%s: no such file", f)
		}
		fmt.Fprintf(stdout, "%s:\n", f)
		for _, d := range set.Sorted() {
			fmt.Fprintf(stdout, "  %s\n", d)
			if !*verbose {
				continue
			}
			directives, err := deps.Scan(d)
			if err != nil {
				fmt.Fprintf(stdout, "      (missing)\n")
				continue
			}
			for _, dir := range directives {
				fmt.Fprintf(stdout, "      %d: %s %s\n", dir.Line, dir.Kind, dir.Name)
			}
		}
		units := toolchain.Units(set.Sorted(), eng.Settings.Extension)
		fmt.Fprintf(stdout, "  compiles: %s\n", strings.Join(units, " "))
	}
	return nil
}

// --- mcp ---

func mcpMain(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{err}
	}

	if *instructions {
		fmt.Print(tbmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	disk := report.NewDiskStore("")
	store := report.NewLRUStore(5, disk)

	r := &runner.Runner{
		Root:      workspace,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}

	server := tbmcp.NewServer(cfg, r, store, workspace,
		tbmcp.WithLogger(logging.Stderr()),
		tbmcp.WithProjectFile(loaded.Path),
	)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- shared ---

func newEngine(o config.Overrides, out io.Writer, logger zerolog.Logger) (*workflow.Engine, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if loaded.Path != "" {
		logger.Debug().Str("file", loaded.Path).Msg("loaded project file")
	}

	s, err := loaded.Config.Settings(o)
	if err != nil {
		return nil, err
	}

	r := &runner.Runner{
		Root:      workspace,
		Timeout:   s.Timeout,
		MaxOutput: s.MaxOutput,
		Allowed:   []string{s.BuildDir},
	}

	return &workflow.Engine{
		Settings: s,
		Runner:   r,
		Out:      out,
		Log:      logger,
	}, nil
}
