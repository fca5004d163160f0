// Package incdep implements the incremental dependency engine: given a
// source file and a list of include search paths, it decides whether a
// named object artifact needs to be rebuilt, caching file modification
// times and per-file include sets across a single build.
package incdep

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// includeSetCacheSize bounds the number of distinct source files whose
// scanned #include sets are held in memory at once. A build with more
// unique sources than this will re-scan the coldest ones, trading a little
// redundant I/O for a bounded working set.
const includeSetCacheSize = 4096

// Engine decides whether object files are stale with respect to their
// transitive include closure, the originating source, and the project
// descriptor. An Engine is created once per project build; its caches are
// discarded afterward.
type Engine struct {
	descriptorMTime time.Time

	mu           sync.Mutex
	mtimes       map[string]time.Time
	includeSets  *lru.Cache // string (source path) -> []string (resolved include paths)
	checked      map[string]bool
	checkedOK    map[string]bool
}

// New creates an Engine, recording descriptorPath's modification time as a
// dependency every source file is implicitly checked against.
func New(descriptorPath string) (*Engine, error) {
	cache, err := lru.New(includeSetCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		mtimes:      make(map[string]time.Time),
		includeSets: cache,
		checked:     make(map[string]bool),
		checkedOK:   make(map[string]bool),
	}

	if info, err := os.Stat(descriptorPath); err == nil {
		e.descriptorMTime = info.ModTime()
	}
	// A missing descriptor (e.g. synthesized in-memory) degrades to the
	// zero Time, which never forces a rebuild on its own account.

	return e, nil
}

// RequiresRebuild returns true when object is missing, older than any file
// in the transitive include closure of source, or older than the project
// descriptor. Results are memoized per source path for the lifetime of the
// Engine.
func (e *Engine) RequiresRebuild(source, object string, includePaths []string) bool {
	e.mu.Lock()
	if _, checked := e.checked[source]; checked {
		result := e.checkedOK[source]
		e.mu.Unlock()
		return result
	}
	e.mu.Unlock()

	result := e.computeRequiresRebuild(source, object, includePaths)

	e.mu.Lock()
	e.checked[source] = true
	e.checkedOK[source] = result
	e.mu.Unlock()

	return result
}

func (e *Engine) computeRequiresRebuild(source, object string, includePaths []string) bool {
	objInfo, err := os.Stat(object)
	if err != nil {
		return true
	}
	objTime := objInfo.ModTime()

	if !e.descriptorMTime.IsZero() && e.descriptorMTime.After(objTime) {
		return true
	}

	searchPaths := append([]string{filepath.Dir(source)}, includePaths...)

	visited := make(map[string]bool)
	return e.includeIsNewerThan(source, searchPaths, objTime, visited)
}

// includeIsNewerThan walks the transitive include closure of file, returning
// true as soon as it finds a file newer than objTime (or file itself is
// missing, since a deleted header should force a rebuild on next touch).
func (e *Engine) includeIsNewerThan(file string, searchPaths []string, objTime time.Time, visited map[string]bool) bool {
	if visited[file] {
		return false
	}
	visited[file] = true

	mtime, ok := e.fileMTime(file)
	if !ok {
		return true
	}
	if mtime.After(objTime) {
		return true
	}

	includes := e.includesOf(file, searchPaths)
	for _, inc := range includes {
		if e.includeIsNewerThan(inc, searchPaths, objTime, visited) {
			return true
		}
	}
	return false
}

// fileMTime returns a memoized modification time for path.
func (e *Engine) fileMTime(path string) (time.Time, bool) {
	e.mu.Lock()
	if t, ok := e.mtimes[path]; ok {
		e.mu.Unlock()
		return t, true
	}
	e.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}

	e.mu.Lock()
	e.mtimes[path] = info.ModTime()
	e.mu.Unlock()

	return info.ModTime(), true
}

// includesOf returns the resolved, existing include paths for file,
// scanning and caching the result on first use. The cache is never
// invalidated during a build: the filesystem is assumed stable for the
// duration of a single compile pass.
func (e *Engine) includesOf(file string, searchPaths []string) []string {
	if cached, ok := e.includeSets.Get(file); ok {
		return cached.([]string)
	}

	tokens := scanIncludeTokens(file)
	resolved := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if path, ok := resolveInclude(tok, searchPaths); ok {
			resolved = append(resolved, path)
		}
		// Unresolved includes (system headers outside any search path)
		// are ignored: they are not part of the closure we can check.
	}

	e.includeSets.Add(file, resolved)
	return resolved
}

// scanIncludeTokens reads file as text and returns every #include argument
// it finds, verbatim (the raw path between its delimiters). The scan is
// intentionally tolerant of comments, string literals, and unusual
// whitespace: a false positive costs at most one harmless extra rebuild.
func scanIncludeTokens(file string) []string {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "#include")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("#include"):]

		var open, close byte
		start := -1
		for i := 0; i < len(rest); i++ {
			if rest[i] == '"' {
				open, close = '"', '"'
				start = i + 1
				break
			}
			if rest[i] == '<' {
				open, close = '<', '>'
				start = i + 1
				break
			}
		}
		_ = open
		if start < 0 {
			continue
		}

		end := strings.IndexByte(rest[start:], close)
		if end < 0 {
			continue
		}

		tokens = append(tokens, rest[start:start+end])
	}

	return tokens
}

// resolveInclude resolves a raw #include path against each search path in
// order, accepting the first that exists as a regular file.
func resolveInclude(token string, searchPaths []string) (string, bool) {
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, token)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
