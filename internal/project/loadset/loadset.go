// Package loadset tracks the projects currently being loaded, so recursive
// dependency loads can detect a cycle instead of recursing forever.
package loadset

import "sync"

// Set is a mutex-protected collection of in-flight project identifiers. It
// is created once per top-level build invocation and threaded explicitly
// through every Project.Build call (BuildOptions.LoadSet), rather than kept as a package-level
// global: a single process can run more than one independent build (tests
// do this constantly) and each must see its own loading set.
type Set struct {
	mu      sync.Mutex
	loading map[string]bool
}

// New returns an empty Set.
func New() *Set {
	return &Set{loading: make(map[string]bool)}
}

// Enter registers name as currently loading. It returns false if name is
// already present, meaning the caller has found a dependency cycle.
func (s *Set) Enter(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading[name] {
		return false
	}
	s.loading[name] = true
	return true
}

// Leave removes name from the set, whether its load succeeded or failed.
func (s *Set) Leave(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loading, name)
}
