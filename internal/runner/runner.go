// Package runner executes external tools (compilers, test binaries,
// memory checkers, coverage tools) with a root directory bound, a timeout
// and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Runner executes commands within a root directory.
type Runner struct {
	Root      string
	Timeout   time.Duration // zero means no timeout
	MaxOutput int           // bytes per stream

	// Allowed lists extra directories a command may run in, such as a
	// build directory outside Root. Relative entries are joined to Root.
	Allowed []string
}

// Run executes argv. The first element is the program, resolved via PATH
// unless it contains a path separator. cwd is resolved relative to Root and
// must remain within Root or one of the Allowed directories.
//
// A non-zero exit is not an error; it is reported in Result.ExitCode.
// Errors are returned only when the program could not be started. Those
// wrap exec.ErrNotFound when the program does not exist.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: r.MaxOutput}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: r.MaxOutput}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("executing %s: %w", argv[0], runErr)
		}
		exitCode = exitErr.ExitCode()
		if exitCode < 0 {
			// Killed by a signal, typically the timeout.
			exitCode = 1
		}
	}

	return &Result{
		RunID:     uuid.New().String(),
		Argv:      append([]string(nil), argv...),
		ExitCode:  exitCode,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: r.MaxOutput > 0 && (stdout.Len() >= r.MaxOutput || stderr.Len() >= r.MaxOutput),
		Duration:  elapsed,
	}, nil
}

// resolveDir resolves cwd relative to Root and checks it stays inside.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Root, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Root, cwd))
	}

	if r.Root == "" || within(r.Root, dir) {
		return dir, nil
	}
	for _, a := range r.Allowed {
		if !filepath.IsAbs(a) {
			a = filepath.Join(r.Root, a)
		}
		if within(a, dir) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("cwd %q is outside root %q", cwd, r.Root)
}

// within reports whether dir is base or below it.
func within(base, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), dir)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// limitWriter writes up to limit bytes to buf and discards the rest.
// A limit of zero or less means unlimited.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		// Report everything as consumed so io.Copy does not fail with a
		// short write.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
