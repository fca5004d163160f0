// Package sourceset implements an insertion-ordered, deduplicating set of
// project-relative source file paths.
package sourceset

import (
	"fmt"
	"os"
	"path/filepath"
)

// Set is an ordered, deduplicated collection of source file paths, each
// verified to refer to an existing regular file (relative to a project
// root) at the time it was added.
type Set struct {
	root  string
	paths []string
	seen  map[string]bool
}

// New creates an empty Set rooted at root. Paths passed to Add are resolved
// relative to root when not already absolute.
func New(root string) *Set {
	return &Set{
		root: root,
		seen: make(map[string]bool),
	}
}

// Add inserts path if it has not already been added and refers to an
// existing regular file. It returns true on success. A missing file is a
// non-fatal condition: Add returns false and the caller is expected to
// surface a warning, not abort.
func (s *Set) Add(path string) bool {
	if s.seen[path] {
		return false
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.root, resolved)
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return false
	}

	s.seen[path] = true
	s.paths = append(s.paths, path)
	return true
}

// Paths returns the source paths in the order they were successfully added.
func (s *Set) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Len returns the number of distinct sources currently in the set.
func (s *Set) Len() int {
	return len(s.paths)
}

// Resolved returns the absolute path for a member of the set.
func (s *Set) Resolved(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

// Contains reports whether path has already been added.
func (s *Set) Contains(path string) bool {
	return s.seen[path]
}

// AddWarnings adds each path in paths, returning a warning string for every
// one that was skipped because the file did not exist. Paths already
// present in the set are silently deduplicated and produce no warning.
func (s *Set) AddWarnings(paths []string) []string {
	var warnings []string
	for _, p := range paths {
		if s.seen[p] {
			continue
		}
		if !s.Add(p) {
			warnings = append(warnings, fmt.Sprintf("source file not found, skipping: %s", s.Resolved(p)))
		}
	}
	return warnings
}
