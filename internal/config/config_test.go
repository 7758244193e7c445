package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/deixis/testbuild/internal/toolchain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_YAMLFromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".testbuild.yaml"), `
version: 1
timeout: 10m
build_dir: build
include_paths: ["", include]
macros: [NDEBUG]
compiler: clang
`)
	sub := filepath.Join(root, "test", "unit")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != root {
		t.Errorf("Root = %q, want %q", res.Root, root)
	}
	cfg := res.Config
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Timeout() != 10*time.Minute {
		t.Errorf("Timeout() = %v, want 10m", cfg.Timeout())
	}
	if got, want := cfg.BuildDirectory(), filepath.Join(root, "build"); got != want {
		t.Errorf("BuildDirectory() = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"", filepath.Join(root, "include")}, cfg.SearchPaths()); diff != "" {
		t.Errorf("SearchPaths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"NDEBUG"}, cfg.MacroList()); diff != "" {
		t.Errorf("MacroList mismatch (-want +got):\n%s", diff)
	}
	if cfg.CompilerName() != "clang" {
		t.Errorf("CompilerName() = %q, want clang", cfg.CompilerName())
	}
}

func TestLoad_TOML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".testbuild.toml"), `
extension = ".cc"
macros = []
memcheck = ["valgrind", "-q", "--error-exitcode=3"]

[compilers.gcc13]
base = "gcc"
exe = "g++-13"
`)

	res, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := res.Config
	if cfg.TUExtension() != "cc" {
		t.Errorf("TUExtension() = %q, want cc", cfg.TUExtension())
	}
	if len(cfg.MacroList()) != 0 {
		t.Errorf("MacroList() = %v, want explicit empty list", cfg.MacroList())
	}
	if diff := cmp.Diff([]string{"valgrind", "-q", "--error-exitcode=3"}, cfg.MemcheckArgv()); diff != "" {
		t.Errorf("MemcheckArgv mismatch (-want +got):\n%s", diff)
	}

	s, err := cfg.Settings(Overrides{Compiler: "gcc13"})
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.Profile.Exe != "g++-13" || s.Profile.Macro != "-D" {
		t.Errorf("Profile = %+v, want g++-13 inheriting gcc options", s.Profile)
	}
}

func TestLoad_NoProjectFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir || res.Path != "" {
		t.Errorf("LoadResult = %+v, want defaults rooted at %q", res, dir)
	}
	cfg := res.Config
	if cfg.BuildDirectory() != DefaultBuildDir {
		t.Errorf("BuildDirectory() = %q, want %q", cfg.BuildDirectory(), DefaultBuildDir)
	}
	if diff := cmp.Diff(DefaultIncludePaths, cfg.SearchPaths()); diff != "" {
		t.Errorf("SearchPaths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultMacros, cfg.MacroList()); diff != "" {
		t.Errorf("MacroList mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".testbuild.yaml"), "macros: [unterminated\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSettings_Overrides(t *testing.T) {
	cfg := &Config{CompilerBuildDirs: true, BuildDir: "/out"}
	s, err := cfg.Settings(Overrides{
		Compiler:       "clang",
		Recompile:      true,
		ContinueOnFail: true,
		Memcheck:       true,
		Timeout:        time.Second,
	})
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.Profile.Exe != "clang++" {
		t.Errorf("Profile.Exe = %q, want clang++", s.Profile.Exe)
	}
	if s.BuildDir != filepath.Join("/out", "clang") {
		t.Errorf("BuildDir = %q, want /out/clang", s.BuildDir)
	}
	if !s.Recompile || !s.ContinueOnFail || !s.Memcheck || s.Coverage {
		t.Errorf("flags not carried over: %+v", s)
	}
	if s.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", s.Timeout)
	}
	if diff := cmp.Diff(DefaultMemcheck, s.MemcheckArgv); diff != "" {
		t.Errorf("MemcheckArgv mismatch (-want +got):\n%s", diff)
	}
}

func TestSettings_UnsupportedCompiler(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Settings(Overrides{Compiler: "tcc"})
	var uce *toolchain.UnsupportedCompilerError
	if !errors.As(err, &uce) {
		t.Fatalf("error = %v, want *toolchain.UnsupportedCompilerError", err)
	}
}

func TestProfiles_CustomWithoutExe(t *testing.T) {
	cfg := &Config{Compilers: map[string]ProfileConfig{"icc": {Flags: []string{"-O2"}}}}
	if _, err := cfg.Profiles(); err == nil {
		t.Fatal("expected error for custom profile without exe")
	}
}

func TestSettings_Rooted(t *testing.T) {
	s := Settings{BuildDir: "../build_test", IncludePaths: []string{"", "../include/", "/abs"}}
	got := s.Rooted("/work/test")

	if got.BuildDir != "/work/build_test" {
		t.Errorf("BuildDir = %q, want /work/build_test", got.BuildDir)
	}
	if diff := cmp.Diff([]string{"", "/work/include", "/abs"}, got.IncludePaths); diff != "" {
		t.Errorf("IncludePaths mismatch (-want +got):\n%s", diff)
	}
	if got.Root != "/work/test" {
		t.Errorf("Root = %q, want /work/test", got.Root)
	}
	if s.IncludePaths[1] != "../include/" {
		t.Error("Rooted modified the receiver's include paths")
	}
}
