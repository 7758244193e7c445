package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/testbuild/internal/report"
	"github.com/deixis/testbuild/internal/runner"
	"github.com/deixis/testbuild/internal/toolchain"
)

// TestFailure reports a test binary, or the memory checker wrapping it,
// exiting with a non-zero status.
type TestFailure struct {
	Stage    report.Stage
	ExitCode int
}

func (e *TestFailure) Error() string {
	if e.Stage == report.StageMemcheck {
		return fmt.Sprintf("memory check failed (exit status %d)", e.ExitCode)
	}
	return fmt.Sprintf("test failed (exit status %d)", e.ExitCode)
}

// runTest executes the test binary. Exit status 0 is a pass.
func (e *Engine) runTest(ctx context.Context, artifact string) (*runner.Result, error) {
	argv := []string{e.execPath(artifact)}
	res, err := e.Runner.Run(ctx, argv, "")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, &TestFailure{Stage: report.StageRun, ExitCode: res.ExitCode}
	}
	return res, nil
}

// runMemcheck executes the test binary again under the memory checker.
func (e *Engine) runMemcheck(ctx context.Context, artifact string) (*runner.Result, error) {
	if len(e.Settings.MemcheckArgv) == 0 {
		return nil, fmt.Errorf("no memory checker configured")
	}
	argv := append(append([]string(nil), e.Settings.MemcheckArgv...), e.execPath(artifact))
	res, err := e.Runner.Run(ctx, argv, "")
	if err != nil {
		return nil, toolError(argv[0], err)
	}
	if res.ExitCode != 0 {
		return res, &TestFailure{Stage: report.StageMemcheck, ExitCode: res.ExitCode}
	}
	return res, nil
}

// execPath renders artifact so that it is executed from the file system
// rather than looked up on PATH.
func (e *Engine) execPath(artifact string) string {
	p := toolchain.NativePath(artifact, e.Settings.Windows)
	if !strings.ContainsAny(p, `/\`) {
		if e.Settings.Windows {
			return `.\` + p
		}
		return "./" + p
	}
	return p
}
