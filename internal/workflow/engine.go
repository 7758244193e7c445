// Package workflow drives a test run: it discovers test sources, resolves
// their dependencies, rebuilds stale binaries, executes them and collects a
// report. It is consumed by both the CLI and the MCP server.
package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deixis/testbuild/internal/build"
	"github.com/deixis/testbuild/internal/config"
	"github.com/deixis/testbuild/internal/deps"
	"github.com/deixis/testbuild/internal/report"
	"github.com/deixis/testbuild/internal/runner"
	"github.com/deixis/testbuild/internal/toolchain"
)

// Separator frames the progress output.
const Separator = "-----------------------------------------------------------------"

// CommandRunner executes external commands.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string) (*runner.Result, error)
}

// Engine holds the dependencies of a test run. Settings is never mutated.
type Engine struct {
	Settings config.Settings
	Runner   CommandRunner
	Out      io.Writer      // progress output; nil discards
	Log      zerolog.Logger // diagnostics
}

// Run builds and executes every test found under paths, one after the
// other. The returned error is reserved for problems that prevent a run
// from starting; test failures are reported in the result.
func (e *Engine) Run(ctx context.Context, paths []string) (*report.RunResult, error) {
	s := e.Settings

	sources, err := DiscoverSources(paths, s.Extension)
	if err != nil {
		return nil, err
	}

	if s.Clean {
		e.Log.Debug().Str("dir", s.BuildDir).Msg("removing build directory")
		if err := os.RemoveAll(s.BuildDir); err != nil {
			return nil, fmt.Errorf("cleaning build directory: %w", err)
		}
	}
	if _, err := os.Stat(s.BuildDir); os.IsNotExist(err) {
		if err := os.MkdirAll(s.BuildDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating build directory: %w", err)
		}
		e.println(Separator)
		e.println("C L E A N  B U I L D")
	}
	e.println(Separator)

	rr := &report.RunResult{
		ID:       uuid.New().String(),
		Compiler: s.Profile.Name,
		BuildDir: s.BuildDir,
		Passed:   true,
	}

	interrupted := false
	for i, source := range sources {
		if ctx.Err() != nil {
			rr.Passed = false
			rr.Halted = true
			interrupted = true
			e.println("interrupted.")
			break
		}
		tr := e.runOne(ctx, source)
		rr.Tests = append(rr.Tests, tr)
		if tr.Status == report.Fail {
			rr.Passed = false
			if !s.ContinueOnFail {
				rr.Halted = i < len(sources)-1
				break
			}
		}
	}

	e.println(Separator)
	if rr.Halted && !interrupted {
		e.println("Halted after the first failure; use --continue-on-fail to run the remaining tests.")
	}
	if rr.Passed {
		e.println("All tests passed.")
	} else {
		e.println("Some tests failed.")
	}

	passed, failed := rr.Counts()
	e.Log.Info().Str("run", rr.ID).Int("passed", passed).Int("failed", failed).Bool("halted", rr.Halted).Msg("run finished")
	return rr, nil
}

// Dependencies resolves the dependency set of a single source with the
// engine's search paths.
func (e *Engine) Dependencies(source string) (deps.Set, error) {
	r := &deps.Resolver{SearchPaths: e.Settings.IncludePaths, Dir: e.Settings.Root}
	return r.Resolve(source)
}

// runOne takes one source through dependencies, staleness, compile, run
// and the optional wrappers.
func (e *Engine) runOne(ctx context.Context, source string) (tr report.TestResult) {
	s := e.Settings
	start := time.Now()

	tr = report.TestResult{
		Name:     TestName(source, s.Extension),
		Source:   source,
		Artifact: e.artifactPath(source),
		Status:   report.Pass,
	}
	log := e.Log.With().Str("test", tr.Name).Logger()
	defer func() { tr.Duration = time.Since(start) }()

	e.printf("testing %s > checking dependencies > ", tr.Name)

	set, err := e.Dependencies(source)
	if err != nil {
		e.fail(&tr, report.StageDependencies, err, "")
		return tr
	}
	tr.Dependencies = set.Sorted()

	if s.ShowDependencies {
		e.println("")
		for _, dep := range tr.Dependencies {
			e.printf("    needs %s\n", dep)
		}
		e.printf("    ")
	}

	stale, err := build.Stale(tr.Artifact, tr.Dependencies, s.Recompile || s.Coverage)
	if err != nil {
		e.fail(&tr, report.StageDependencies, err, "")
		return tr
	}
	log.Debug().Bool("stale", stale).Int("deps", len(tr.Dependencies)).Msg("checked artifact")

	if stale {
		e.printf("compiling > ")
		tr.Compiled = true
		cmd, res, err := e.compile(ctx, source, tr.Dependencies, tr.Artifact)
		tr.Command = cmd.String()
		if err != nil {
			e.fail(&tr, report.StageCompile, err, output(res))
			return tr
		}
	}

	e.printf("running > ")
	res, err := e.runTest(ctx, tr.Artifact)
	if err != nil {
		e.fail(&tr, report.StageRun, err, output(res))
		return tr
	}

	if s.Memcheck {
		res, err := e.runMemcheck(ctx, tr.Artifact)
		if err != nil {
			e.fail(&tr, report.StageMemcheck, err, output(res))
			return tr
		}
	}

	if s.Coverage {
		tr.Coverage = e.runCoverage(ctx, source, tr.Artifact)
	}

	e.println("passed.")
	return tr
}

// fail records a failure on tr and prints it.
func (e *Engine) fail(tr *report.TestResult, stage report.Stage, err error, out string) {
	tr.Status = report.Fail
	tr.Stage = stage
	tr.Message = err.Error()
	tr.Output = out

	e.Log.Debug().Str("test", tr.Name).Str("stage", string(stage)).Err(err).Msg("test failed")

	if stage == report.StageDependencies {
		e.printf("\nERROR: %s!\n", err)
		return
	}
	e.println("FAILED!")
	e.printf("    %s\n", err)
	if out != "" {
		for _, line := range strings.Split(truncateLines(out, maxFailureLines), "\n") {
			e.printf("    | %s\n", line)
		}
	}
}

// artifactPath returns <builddir>/<name><ext> for source, where name is
// unique per source under the engine root.
func (e *Engine) artifactPath(source string) string {
	return e.artifactBase(source) + e.Settings.ArtifactExt
}

func (e *Engine) artifactBase(source string) string {
	return filepath.Join(e.Settings.BuildDir, toolchain.ArtifactName(source, e.Settings.Root))
}

func (e *Engine) printf(format string, args ...any) {
	if e.Out != nil {
		fmt.Fprintf(e.Out, format, args...)
	}
}

func (e *Engine) println(s string) {
	if e.Out != nil {
		fmt.Fprintln(e.Out, s)
	}
}

// TestName is the source path without its translation unit extension.
func TestName(source, ext string) string {
	return strings.TrimSuffix(source, "."+ext)
}

// maxFailureLines is the maximum number of output lines printed per failure.
const maxFailureLines = 20

func truncateLines(s string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	result := strings.Join(lines[:maxLines], "\n")
	result += fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
	return result
}

func output(res *runner.Result) string {
	if res == nil {
		return ""
	}
	return res.Output()
}
