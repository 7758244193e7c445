package workflow

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// toolInfo holds install hints for an external tool.
type toolInfo struct {
	Package string // distribution package name
	URL     string
}

// knownTools maps executable names to install hints.
var knownTools = map[string]toolInfo{
	"g++":      {Package: "g++", URL: "https://gcc.gnu.org/install/"},
	"clang++":  {Package: "clang", URL: "https://clang.llvm.org/get_started.html"},
	"cl":       {URL: "https://visualstudio.microsoft.com/visual-cpp-build-tools/"},
	"valgrind": {Package: "valgrind", URL: "https://valgrind.org/downloads/"},
	"gcov":     {Package: "gcc", URL: "https://gcc.gnu.org/onlinedocs/gcc/Gcov.html"},
}

// ErrToolUnavailable is returned when an external tool is not installed.
type ErrToolUnavailable struct {
	Name string
	Info *toolInfo
}

func NewErrToolUnavailable(name string) ErrToolUnavailable {
	e := ErrToolUnavailable{Name: name}
	if info, ok := knownTools[filepath.Base(name)]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed", e.Name)
	if e.Info == nil {
		return b.String()
	}
	if e.Info.Package != "" {
		fmt.Fprintf(&b, " (install package %q", e.Info.Package)
		if e.Info.URL != "" {
			fmt.Fprintf(&b, ", see %s", e.Info.URL)
		}
		b.WriteString(")")
	} else if e.Info.URL != "" {
		fmt.Fprintf(&b, " (see %s)", e.Info.URL)
	}
	return b.String()
}

// toolError maps a start failure of argv[0] to ErrToolUnavailable when the
// executable does not exist.
func toolError(name string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return NewErrToolUnavailable(name)
	}
	return err
}
