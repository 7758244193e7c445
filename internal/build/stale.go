// Package build decides whether a test artifact has to be rebuilt.
package build

import (
	"fmt"
	"os"
	"sort"
)

// MissingDependencyError reports a dependency that could not be found on
// disk while checking an existing artifact.
type MissingDependencyError struct {
	Path string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("dependency %s could not be found", e.Path)
}

// Stale reports whether artifact must be rebuilt from deps.
//
// A missing artifact or force is always stale. Otherwise every dependency
// must exist, and the artifact is stale when any of them has a strictly
// newer modification time. Equal timestamps are not stale.
func Stale(artifact string, deps []string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	info, err := os.Stat(artifact)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("checking artifact %s: %w", artifact, err)
	}
	built := info.ModTime()

	// Walk in a fixed order so the reported missing dependency is stable.
	ordered := append([]string(nil), deps...)
	sort.Strings(ordered)

	stale := false
	for _, dep := range ordered {
		di, err := os.Stat(dep)
		if err != nil {
			if os.IsNotExist(err) {
				return false, &MissingDependencyError{Path: dep}
			}
			return false, fmt.Errorf("checking dependency %s: %w", dep, err)
		}
		if di.ModTime().After(built) {
			stale = true
		}
	}
	return stale, nil
}
