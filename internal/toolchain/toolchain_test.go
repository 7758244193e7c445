package toolchain

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLookup_Builtin(t *testing.T) {
	for _, name := range []string{"gcc", "clang", "msvc"} {
		p, err := Lookup(Builtin(), name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", name, err)
		}
		if p.Name != name {
			t.Errorf("Name = %q, want %q", p.Name, name)
		}
	}
}

func TestLookup_Unsupported(t *testing.T) {
	_, err := Lookup(Builtin(), "tcc")
	var uce *UnsupportedCompilerError
	if !errors.As(err, &uce) {
		t.Fatalf("error = %v, want *UnsupportedCompilerError", err)
	}
	if diff := cmp.Diff([]string{"clang", "gcc", "msvc"}, uce.Valid); diff != "" {
		t.Errorf("Valid mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "clang, gcc, msvc") {
		t.Errorf("error = %q, want valid choices listed", err)
	}
}

func TestCommand_GCC(t *testing.T) {
	p := Profile{Name: "gcc", Exe: "g++", Flags: []string{"-Wall"}, Macro: "-D", IncPath: "-I", Out: "-o"}
	cmd := p.Command(CompileSpec{
		Macros:       []string{"NDEBUG", "", " NO_DEBUG "},
		IncludePaths: []string{"", "../include/"},
		Units:        []string{"a.cpp", "b.cpp"},
		Object:       "ignored.o",
		Artifact:     "../build_test/a",
	})
	want := []string{"g++", "-Wall", "-DNDEBUG", "-DNO_DEBUG", "-I../include/", "a.cpp", "b.cpp", "-o", "../build_test/a"}
	if diff := cmp.Diff(want, cmd.Argv); diff != "" {
		t.Errorf("Argv mismatch (-want +got):\n%s", diff)
	}
}

func TestCommand_Coverage(t *testing.T) {
	p := Builtin()["gcc"]
	p.Flags = nil
	cmd := p.Command(CompileSpec{Units: []string{"t.cpp"}, Artifact: "t", Coverage: true})
	want := []string{"g++", "--coverage", "-O0", "-g", "t.cpp", "-o", "t"}
	if diff := cmp.Diff(want, cmd.Argv); diff != "" {
		t.Errorf("Argv mismatch (-want +got):\n%s", diff)
	}
}

func TestCommand_MSVCWindows(t *testing.T) {
	p := Builtin()["msvc"]
	cmd := p.Command(CompileSpec{
		Macros:       []string{"NDEBUG"},
		IncludePaths: []string{"../include/"},
		Units:        []string{"test/a.cpp"},
		Object:       "../build_test/a.obj",
		Artifact:     "../build_test/a.exe",
		Windows:      true,
	})
	want := []string{
		"cl", "/W4", "/EHsc", "/DNDEBUG", `/I..\include\`,
		`/Fo..\build_test\a.obj`, `test\a.cpp`, `/Fe..\build_test\a.exe`,
	}
	if diff := cmp.Diff(want, cmd.Argv); diff != "" {
		t.Errorf("Argv mismatch (-want +got):\n%s", diff)
	}
}

func TestCommand_String(t *testing.T) {
	cmd := Command{Argv: []string{"g++", "my file.cpp", "-o", "out"}}
	if got, want := cmd.String(), `g++ "my file.cpp" -o out`; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUnits(t *testing.T) {
	got := Units([]string{"z.cpp", "a.h", "lib.hpp", "m.cpp", "notes.cppx"}, "cpp")
	if diff := cmp.Diff([]string{"m.cpp", "z.cpp"}, got); diff != "" {
		t.Errorf("Units mismatch (-want +got):\n%s", diff)
	}
}

func TestArtifactName(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		source string
		want   string
	}{
		{filepath.Join(root, "test", "dir", "options_test.cpp"), filepath.Join("test", "dir", "options_test")},
		{filepath.Join(root, "x.cpp"), "x"},
	}
	for _, tt := range tests {
		if got := ArtifactName(tt.source, root); got != tt.want {
			t.Errorf("ArtifactName(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestArtifactName_SameBasenameDistinct(t *testing.T) {
	root := t.TempDir()
	a := ArtifactName(filepath.Join(root, "a", "x.cpp"), root)
	b := ArtifactName(filepath.Join(root, "b", "x.cpp"), root)
	if a == b {
		t.Fatalf("a/x.cpp and b/x.cpp share artifact name %q", a)
	}
}

func TestArtifactName_OutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	a := ArtifactName(filepath.Join(other, "a", "x.cpp"), root)
	b := ArtifactName(filepath.Join(other, "b", "x.cpp"), root)
	if a == b {
		t.Fatalf("sources outside root share artifact name %q", a)
	}
	for _, got := range []string{a, b} {
		if !strings.HasPrefix(got, "x-") || strings.ContainsRune(got, filepath.Separator) {
			t.Errorf("ArtifactName outside root = %q, want x-<hash>", got)
		}
	}
	if again := ArtifactName(filepath.Join(other, "a", "x.cpp"), root); again != a {
		t.Errorf("ArtifactName not stable: %q then %q", a, again)
	}
}

func TestBuiltin_IsACopy(t *testing.T) {
	a := Builtin()["gcc"]
	a.Flags[0] = "mutated"
	if Builtin()["gcc"].Flags[0] == "mutated" {
		t.Error("Builtin profiles share flag slices")
	}
}
