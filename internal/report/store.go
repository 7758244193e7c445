// Package report holds the structured result of a test run and stores
// results so they can be inspected after the run finished.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of a single test.
type Status string

const (
	Pass Status = "pass"
	Fail Status = "fail"
)

// Stage identifies where a failing test stopped.
type Stage string

const (
	StageDependencies Stage = "dependencies"
	StageCompile      Stage = "compile"
	StageRun          Stage = "run"
	StageMemcheck     Stage = "memcheck"
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult holds the outcome of one invocation over a set of sources.
type RunResult struct {
	ID       string       `json:"id"`
	Compiler string       `json:"compiler"`
	BuildDir string       `json:"build_dir"`
	Passed   bool         `json:"passed"`
	Halted   bool         `json:"halted,omitempty"` // stopped at the first failure
	Tests    []TestResult `json:"tests"`
}

// TestResult holds the outcome of building and running one test source.
type TestResult struct {
	Name         string        `json:"name"`
	Source       string        `json:"source"`
	Artifact     string        `json:"artifact"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Compiled     bool          `json:"compiled"`
	Command      string        `json:"command,omitempty"` // compiler invocation, when compiled
	Status       Status        `json:"status"`
	Stage        Stage         `json:"stage,omitempty"` // failing stage
	Message      string        `json:"message,omitempty"`
	Output       string        `json:"output,omitempty"`   // output of the failing step
	Coverage     string        `json:"coverage,omitempty"` // coverage tool report
	Duration     time.Duration `json:"duration"`
}

// Counts returns the number of passed and failed tests.
func (r *RunResult) Counts() (passed, failed int) {
	for _, t := range r.Tests {
		if t.Status == Pass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Find returns the test whose name, source or base name matches key.
func (r *RunResult) Find(key string) (*TestResult, error) {
	for i := range r.Tests {
		t := &r.Tests[i]
		if t.Name == key || t.Source == key {
			return t, nil
		}
	}
	for i := range r.Tests {
		t := &r.Tests[i]
		if baseName(t.Name) == key {
			return t, nil
		}
	}
	return nil, fmt.Errorf("run %s has no test %q", r.ID, key)
}

// Diagnostic is a flattened failure record.
type Diagnostic struct {
	Test    string
	Source  string
	Stage   Stage
	Message string
	Output  string
}

// Failures returns one diagnostic per failed test, in run order.
func Failures(r *RunResult) []Diagnostic {
	var out []Diagnostic
	for _, t := range r.Tests {
		if t.Status != Fail {
			continue
		}
		out = append(out, diagnostic(t))
	}
	return out
}

// ByDependency returns the failed tests whose dependency set includes
// path (matched on the full path or its suffix).
func ByDependency(r *RunResult, path string) []Diagnostic {
	var out []Diagnostic
	for _, t := range r.Tests {
		if t.Status != Fail || !dependsOn(t, path) {
			continue
		}
		out = append(out, diagnostic(t))
	}
	return out
}

func dependsOn(t TestResult, path string) bool {
	for _, dep := range t.Dependencies {
		if dep == path || strings.HasSuffix(dep, "/"+path) {
			return true
		}
	}
	return false
}

func diagnostic(t TestResult) Diagnostic {
	return Diagnostic{
		Test:    t.Name,
		Source:  t.Source,
		Stage:   t.Stage,
		Message: t.Message,
		Output:  t.Output,
	}
}

func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
