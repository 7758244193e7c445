package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deixis/testbuild/internal/runner"
	"github.com/deixis/testbuild/internal/toolchain"
)

// CompileError reports a compiler invocation that did not produce the
// test binary.
type CompileError struct {
	Command  string
	Artifact string
	ExitCode int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compilation failed: %s was not produced (exit status %d)", e.Artifact, e.ExitCode)
}

// compile builds artifact from the translation units among deps. The old
// artifact is removed first so that a failed build never leaves a stale
// binary behind; success is judged by the artifact existing afterwards,
// not by the compiler's exit status.
func (e *Engine) compile(ctx context.Context, source string, deps []string, artifact string) (toolchain.Command, *runner.Result, error) {
	s := e.Settings

	if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
		return toolchain.Command{}, nil, fmt.Errorf("removing %s: %w", artifact, err)
	}
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return toolchain.Command{}, nil, fmt.Errorf("creating %s: %w", filepath.Dir(artifact), err)
	}

	spec := toolchain.CompileSpec{
		Macros:       s.Macros,
		IncludePaths: s.IncludePaths,
		Units:        toolchain.Units(deps, s.Extension),
		Artifact:     artifact,
		Coverage:     s.Coverage,
		Windows:      s.Windows,
	}
	if s.Profile.Obj != "" {
		spec.Object = e.artifactBase(source) + s.Profile.ObjExt
	}
	cmd := s.Profile.Command(spec)

	e.Log.Debug().Str("cmd", cmd.String()).Msg("compiling")

	res, err := e.Runner.Run(ctx, cmd.Argv, "")
	if err != nil {
		return cmd, nil, toolError(s.Profile.Exe, err)
	}
	if _, statErr := os.Stat(artifact); statErr != nil {
		return cmd, res, &CompileError{Command: cmd.String(), Artifact: artifact, ExitCode: res.ExitCode}
	}
	if res.ExitCode != 0 {
		e.Log.Warn().Int("exit", res.ExitCode).Str("artifact", artifact).Msg("compiler failed but produced a binary")
	}
	return cmd, res, nil
}
