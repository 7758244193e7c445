package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// runCoverage runs the coverage tool over source from the artifact's
// directory, so the report files land next to the build output. Coverage
// problems are logged as warnings and never fail the test.
func (e *Engine) runCoverage(ctx context.Context, source, artifact string) string {
	s := e.Settings
	if len(s.CoverageArgv) == 0 {
		return ""
	}
	dir, err := filepath.Abs(filepath.Dir(artifact))
	if err != nil {
		e.Log.Warn().Err(err).Str("source", source).Msg("coverage report failed")
		return ""
	}
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	argv := append(append([]string(nil), s.CoverageArgv...), "-o", dir, source)

	res, err := e.Runner.Run(ctx, argv, dir)
	if err != nil {
		err = toolError(argv[0], err)
		var unavailable ErrToolUnavailable
		if errors.As(err, &unavailable) {
			e.Log.Warn().Str("tool", argv[0]).Msg(unavailable.Error())
		} else {
			e.Log.Warn().Err(err).Str("source", source).Msg("coverage report failed")
		}
		return ""
	}
	if res.ExitCode != 0 {
		e.Log.Warn().Int("exit", res.ExitCode).Str("source", source).Msg("coverage tool reported an error")
	}
	return strings.TrimSpace(res.Output())
}
