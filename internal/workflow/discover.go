package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSources is returned when discovery finds nothing to build.
var ErrNoSources = errors.New("no source files found")

// DiscoverSources expands paths into test sources. A path ending in the
// translation unit extension is taken as is; any other path is walked
// recursively for files with that extension. Without paths the working
// directory is walked.
func DiscoverSources(paths []string, ext string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	suffix := "." + strings.TrimPrefix(ext, ".")

	var sources []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			sources = append(sources, p)
		}
	}

	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			if _, err := os.Stat(p); err != nil {
				return nil, fmt.Errorf("source %s: %w", p, err)
			}
			add(p)
			continue
		}
		var found []string
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", p, err)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}
