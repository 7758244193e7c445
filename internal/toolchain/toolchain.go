// Package toolchain holds the compiler profile table and builds the
// compile-and-link command line for a single test.
package toolchain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Profile describes how to drive one compiler. Profiles are values and are
// never mutated after selection.
type Profile struct {
	Name  string
	Exe   string
	Flags []string

	Macro   string // macro definition option, e.g. "-D"
	IncPath string // include path option, e.g. "-I"
	Obj     string // object output option; empty if the compiler needs none
	Out     string // link output option, e.g. "-o"

	// JoinOutput attaches the Obj and Out values to their option
	// ("/Fetest.exe") instead of passing them as separate arguments.
	JoinOutput bool

	// CoverageFlags are added when building with coverage instrumentation.
	CoverageFlags []string

	ObjExt string // extension of the object file written via Obj
}

// gccFlags is the warning set shared by gcc and clang.
var gccFlags = []string{
	"-std=c++0x",
	"-Wall", "-Wextra", "-Wpedantic",
	"-Wno-unknown-pragmas",
	"-Wno-unknown-warning",
	"-Wno-unknown-warning-option",
	"-fdiagnostics-color=always",
	"-Wformat=2",
	"-Wcast-align", "-Wcast-qual",
	"-Wconversion",
	"-Wctor-dtor-privacy",
	"-Wdisabled-optimization",
	"-Wdouble-promotion",
	"-Winit-self",
	"-Wlogical-op",
	"-Wmissing-include-dirs",
	"-Wno-sign-conversion",
	"-Wnoexcept",
	"-Wold-style-cast",
	"-Woverloaded-virtual",
	"-Wredundant-decls",
	"-Wshadow",
	"-Wstrict-aliasing=1",
	"-Wstrict-null-sentinel",
	"-Wstrict-overflow=5",
	"-Wswitch-default",
	"-Wundef",
	"-Wuseless-cast",
}

// Builtin returns the built-in profile table keyed by name.
func Builtin() map[string]Profile {
	return map[string]Profile{
		"gcc": {
			Name: "gcc", Exe: "g++", Flags: clone(gccFlags),
			Macro: "-D", IncPath: "-I", Out: "-o",
			CoverageFlags: []string{"--coverage", "-O0", "-g"},
		},
		"clang": {
			Name: "clang", Exe: "clang++", Flags: clone(gccFlags),
			Macro: "-D", IncPath: "-I", Out: "-o",
			CoverageFlags: []string{"--coverage", "-O0", "-g"},
		},
		"msvc": {
			Name: "msvc", Exe: "cl", Flags: []string{"/W4", "/EHsc"},
			Macro: "/D", IncPath: "/I", Obj: "/Fo", Out: "/Fe",
			JoinOutput: true,
			ObjExt:     ".obj",
		},
	}
}

// UnsupportedCompilerError is returned when a profile name is unknown.
type UnsupportedCompilerError struct {
	Name  string
	Valid []string
}

func (e *UnsupportedCompilerError) Error() string {
	return fmt.Sprintf("compiler %s not supported (valid: %s)", e.Name, strings.Join(e.Valid, ", "))
}

// Lookup selects a profile by name from table.
func Lookup(table map[string]Profile, name string) (Profile, error) {
	p, ok := table[name]
	if !ok {
		return Profile{}, &UnsupportedCompilerError{Name: name, Valid: Names(table)}
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// Names returns the sorted profile names of table.
func Names(table map[string]Profile) []string {
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CompileSpec holds everything needed to build one test binary.
type CompileSpec struct {
	Macros       []string
	IncludePaths []string
	Units        []string // translation units, in command-line order
	Object       string   // object output path; only used if the profile has Obj
	Artifact     string
	Coverage     bool
	Windows      bool // render paths with back slashes
}

// Command is a rendered compiler invocation.
type Command struct {
	Argv []string
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	parts := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		if strings.ContainsAny(a, " \t\"") {
			a = fmt.Sprintf("%q", a)
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

// Command builds the compile-and-link argv for spec: executable, flags,
// macros, include paths, object output, translation units, link output.
func (p Profile) Command(spec CompileSpec) Command {
	native := func(s string) string { return NativePath(s, spec.Windows) }

	argv := []string{p.Exe}
	argv = append(argv, p.Flags...)
	if spec.Coverage {
		argv = append(argv, p.CoverageFlags...)
	}
	for _, m := range spec.Macros {
		if m = strings.TrimSpace(m); m != "" {
			argv = append(argv, p.Macro+m)
		}
	}
	for _, ip := range spec.IncludePaths {
		if ip = strings.TrimSpace(ip); ip != "" {
			argv = append(argv, p.IncPath+native(ip))
		}
	}
	if p.Obj != "" && spec.Object != "" {
		argv = append(argv, p.option(p.Obj, native(spec.Object))...)
	}
	for _, tu := range spec.Units {
		argv = append(argv, native(tu))
	}
	argv = append(argv, p.option(p.Out, native(spec.Artifact))...)
	return Command{Argv: argv}
}

func (p Profile) option(opt, value string) []string {
	if p.JoinOutput {
		return []string{opt + value}
	}
	return []string{opt, value}
}

// NativePath trims surrounding whitespace and, when windows is set,
// converts forward slashes to back slashes.
func NativePath(path string, windows bool) string {
	path = strings.TrimSpace(path)
	if windows {
		return strings.ReplaceAll(path, "/", `\`)
	}
	return path
}

// Units filters deps down to translation units with extension ext
// (without the dot) and returns them sorted.
func Units(deps []string, ext string) []string {
	suffix := "." + strings.TrimPrefix(ext, ".")
	var out []string
	for _, d := range deps {
		if strings.HasSuffix(d, suffix) {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// ArtifactName derives the artifact name of a source, relative to the build
// directory. Sources under root keep their relative path without the
// extension, so test/a/x.cpp and test/b/x.cpp never share an artifact.
// Sources outside root use their stem plus a short hash of the absolute
// path. An empty root means the working directory.
func ArtifactName(source, root string) string {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = filepath.Clean(source)
	}
	stem := strings.TrimSuffix(abs, filepath.Ext(abs))
	if absRoot, err := filepath.Abs(root); err == nil {
		if rel, err := filepath.Rel(absRoot, stem); err == nil && rel != "." && !escapes(rel) {
			return rel
		}
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs)))
	return filepath.Base(stem) + "-" + id.String()[:8]
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
