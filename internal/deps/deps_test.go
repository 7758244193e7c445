package deps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_NoDirectives(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "plain.cpp"), "int main() { return 0; }\n")

	r := &Resolver{}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{src}, got.Sorted()); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_MissingRoot(t *testing.T) {
	r := &Resolver{}
	got, err := r.Resolve(filepath.Join(t.TempDir(), "nope.cpp"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve(missing) = %v, want empty set", got.Sorted())
	}
}

func TestResolve_AllDirectiveForms(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "include")
	writeFile(t, filepath.Join(inc, "lib.h"), "#pragma once\n")
	writeFile(t, filepath.Join(dir, "local.h"), "// nothing\n")
	writeFile(t, filepath.Join(dir, "impl.cpp"), "#include \"local.h\"\n")
	src := writeFile(t, filepath.Join(dir, "test.cpp"), `
#include <lib.h>
  #include   "local.h"
#include <vector>
#pragma test needs( "impl.cpp" )
int main() {}
`)

	r := &Resolver{SearchPaths: []string{"", inc}}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{
		filepath.Join(dir, "impl.cpp"),
		filepath.Join(inc, "lib.h"),
		filepath.Join(dir, "local.h"),
		src,
	}
	if diff := cmp.Diff(want, got.Sorted()); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SearchPathOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	writeFile(t, filepath.Join(first, "dup.h"), "")
	writeFile(t, filepath.Join(second, "dup.h"), "")
	src := writeFile(t, filepath.Join(dir, "src", "t.cpp"), "#include <dup.h>\n")

	r := &Resolver{SearchPaths: []string{first, second}}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Has(filepath.Join(first, "dup.h")) {
		t.Errorf("Resolve = %v, want first search path to win", got.Sorted())
	}
	if got.Has(filepath.Join(second, "dup.h")) {
		t.Errorf("Resolve = %v, second search path should not be used", got.Sorted())
	}
}

func TestResolve_UnresolvedNameKept(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "t.cpp"), "#include \"ghost.h\"\n")

	r := &Resolver{}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{src, "ghost.h"}, got.Sorted()); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_DirAnchorsRelativeNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "include", "lib.h"), "#pragma once\n")
	writeFile(t, filepath.Join(dir, "top.h"), "#pragma once\n")
	src := writeFile(t, filepath.Join(dir, "test", "t.cpp"), "#include <lib.h>\n#include <top.h>\n#include \"ghost.h\"\n")

	r := &Resolver{SearchPaths: []string{"", "include"}, Dir: dir}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{
		filepath.Join(dir, "ghost.h"),
		filepath.Join(dir, "include", "lib.h"),
		src,
		filepath.Join(dir, "top.h"),
	}
	if diff := cmp.Diff(want, got.Sorted()); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SelfInclude(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "self.cpp"), "#include \"self.cpp\"\n")

	r := &Resolver{}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{src}, got.Sorted()); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Cycle(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.h"), "#include \"b.h\"\n")
	b := writeFile(t, filepath.Join(dir, "b.h"), "#include \"a.h\"\n")
	src := writeFile(t, filepath.Join(dir, "t.cpp"), "#include \"a.h\"\n")

	r := &Resolver{}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{a, b, src}, got.Sorted()); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SameBasenameDifferentDirs(t *testing.T) {
	dir := t.TempDir()
	// x/util.h and y/util.h share a basename; both must be expanded.
	writeFile(t, filepath.Join(dir, "x", "util.h"), "#include \"only_x.h\"\n")
	writeFile(t, filepath.Join(dir, "x", "only_x.h"), "")
	writeFile(t, filepath.Join(dir, "y", "util.h"), "#include \"only_y.h\"\n")
	writeFile(t, filepath.Join(dir, "y", "only_y.h"), "")
	src := writeFile(t, filepath.Join(dir, "t.cpp"), "#include \"x/util.h\"\n#include \"y/util.h\"\n")

	r := &Resolver{}
	got, err := r.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, want := range []string{
		filepath.Join(dir, "x", "only_x.h"),
		filepath.Join(dir, "y", "only_y.h"),
	} {
		if !got.Has(want) {
			t.Errorf("Resolve = %v, missing %s", got.Sorted(), want)
		}
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "t.cpp"), "// header\n#include <a.h>\n#include \"b.hpp\"\r\n#pragma test needs(\"c.cpp\")\n#include <string>\n")

	got, err := Scan(src)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []Directive{
		{Kind: AngleInclude, Name: "a.h", Line: 2},
		{Kind: QuotedInclude, Name: "b.hpp", Line: 3},
		{Kind: Needs, Name: "c.cpp", Line: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_Missing(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing.cpp")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
