// Package deps resolves the transitive include and needs dependencies of
// C++ source files by scanning them line by line.
//
// Three directive forms are recognised, each anchored to a whole line:
//
//	#pragma test needs("path/to/file.ext")
//	#include <path/to/file.ext>
//	#include "path/to/file.ext"
//
// Names without an extension (e.g. <vector>) never match.
package deps

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Kind identifies the directive form a dependency was declared with.
type Kind string

const (
	Needs         Kind = "needs"
	AngleInclude  Kind = "include<>"
	QuotedInclude Kind = "include\"\""
)

// directivePatterns are tried in order; the first match on a line wins.
var directivePatterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{Needs, regexp.MustCompile(`^\s*#pragma\s+test\s+needs\(\s*"(.+\..+)"\s*\)\s*$`)},
	{AngleInclude, regexp.MustCompile(`^\s*#include\s+<(.+\..+)>\s*$`)},
	{QuotedInclude, regexp.MustCompile(`^\s*#include\s+"(.+\..+)"\s*$`)},
}

// Directive is a single dependency declaration found in a file.
type Directive struct {
	Kind Kind
	Name string // referenced name as written
	Line int    // 1-based
}

// Set is a set of file paths.
type Set map[string]struct{}

// Add inserts p into the set.
func (s Set) Add(p string) { s[p] = struct{}{} }

// Has reports whether p is in the set.
func (s Set) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Resolver computes dependency sets. SearchPaths are tried in order after
// the name as given and the including file's directory; an empty entry
// means the name as given.
//
// Dir anchors names as given, relative search paths and unresolved names.
// Empty means the process working directory.
type Resolver struct {
	SearchPaths []string
	Dir         string
}

// Resolve returns source and every file it transitively depends on.
// A nonexistent source yields an empty set. Names that cannot be located
// are kept verbatim so the caller can report them.
//
// Files are expanded at most once, keyed by their absolute cleaned path,
// so include cycles terminate and same-named headers in different
// directories are both followed.
func (r *Resolver) Resolve(source string) (Set, error) {
	set := make(Set)
	source = r.anchor(source)
	if !isFile(source) {
		return set, nil
	}
	source = filepath.Clean(source)
	expanded := map[string]bool{canonical(source): true}
	set.Add(source)
	if err := r.walk(source, set, expanded); err != nil {
		return nil, err
	}
	return set, nil
}

func (r *Resolver) walk(file string, set Set, expanded map[string]bool) error {
	if !isFile(file) {
		return nil
	}
	directives, err := Scan(file)
	if err != nil {
		return err
	}
	dir := filepath.Dir(file)
	for _, d := range directives {
		dep := r.locate(d.Name, dir)
		key := canonical(dep)
		if expanded[key] {
			continue
		}
		expanded[key] = true
		set.Add(dep)
		if err := r.walk(dep, set, expanded); err != nil {
			return err
		}
	}
	return nil
}

// locate maps a referenced name to a path: the name itself, then relative
// to dir, then each search path. The first existing candidate wins.
func (r *Resolver) locate(name, dir string) string {
	if p := r.anchor(name); exists(p) {
		return filepath.Clean(p)
	}
	if p := filepath.Join(dir, name); exists(p) {
		return p
	}
	for _, sp := range r.SearchPaths {
		if p := filepath.Join(r.anchor(sp), name); exists(p) {
			return p
		}
	}
	return r.anchor(name)
}

// anchor joins a relative p to r.Dir.
func (r *Resolver) anchor(p string) string {
	if r.Dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.Dir, p)
}

// Scan returns the dependency directives of a single file in line order.
func Scan(path string) ([]Directive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	defer f.Close()

	var out []Directive
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, p := range directivePatterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			out = append(out, Directive{Kind: p.kind, Name: m[1], Line: line})
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return out, nil
}

func canonical(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !fi.IsDir()
}
