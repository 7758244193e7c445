package runner

import (
	"strings"
	"time"
)

// Result holds the output of a command execution.
type Result struct {
	RunID     string        // unique identifier for this execution
	Argv      []string      // command as executed
	ExitCode  int           // process exit code
	Stdout    []byte        // captured stdout (may be truncated)
	Stderr    []byte        // captured stderr (may be truncated)
	Truncated bool          // true if output exceeded the size cap
	Duration  time.Duration // wall time
}

// Output returns stdout followed by stderr, trimmed of trailing newlines.
func (r *Result) Output() string {
	var b strings.Builder
	b.Write(r.Stdout)
	if len(r.Stdout) > 0 && len(r.Stderr) > 0 && r.Stdout[len(r.Stdout)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.Write(r.Stderr)
	return strings.TrimRight(b.String(), "\n")
}
