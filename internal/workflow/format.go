package workflow

import (
	"fmt"

	"github.com/deixis/testbuild/internal/report"
)

// FormatFailures returns one line per failed test: name, failing stage and
// message.
func FormatFailures(rr *report.RunResult) []string {
	var out []string
	for _, d := range report.Failures(rr) {
		out = append(out, fmt.Sprintf("%s [%s] %s", d.Test, d.Stage, d.Message))
	}
	return out
}

// FormatCounts renders the pass/fail tally of rr.
func FormatCounts(rr *report.RunResult) string {
	passed, failed := rr.Counts()
	s := fmt.Sprintf("%d passed, %d failed", passed, failed)
	if rr.Halted {
		s += " (halted after the first failure)"
	}
	return s
}
