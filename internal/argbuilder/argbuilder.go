// Package argbuilder accumulates compiler and linker argument lists with the
// domain rules for include paths, library search paths, library names, and
// preprocessor defines.
package argbuilder

import (
	"fmt"
	"os"
	"strings"
)

// Builder is a thin, ordered accumulator of argument strings. Order matters:
// downstream linker invocations require search paths to precede the
// object-file block, which must precede library-name flags.
type Builder struct {
	args     []string
	warnings []string
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Args returns the accumulated argument list.
func (b *Builder) Args() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// Warnings returns diagnostics collected for paths that were dropped.
func (b *Builder) Warnings() []string {
	return b.warnings
}

// AddArgs trims whitespace from each value and pushes the non-empty ones
// verbatim, in order.
func (b *Builder) AddArgs(values ...string) *Builder {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		b.args = append(b.args, v)
	}
	return b
}

// AddIncludeSearchPaths pushes `-I<path>` for each path that exists as a
// directory, warning about and dropping any that do not.
func (b *Builder) AddIncludeSearchPaths(paths ...string) *Builder {
	for _, p := range paths {
		if !dirExists(p) {
			b.warn("include search path does not exist, skipping: %s", p)
			continue
		}
		b.args = append(b.args, "-I"+p)
	}
	return b
}

// AddLibrarySearchPaths pushes `-L<path>` for each path that exists as a
// directory, warning about and dropping any that do not.
func (b *Builder) AddLibrarySearchPaths(paths ...string) *Builder {
	for _, p := range paths {
		if !dirExists(p) {
			b.warn("library search path does not exist, skipping: %s", p)
			continue
		}
		b.args = append(b.args, "-L"+p)
	}
	return b
}

// AddLibraryFiles pushes a linker flag per library name. A name beginning
// with the literal prefix "lib" and ending in ".a" or ".so" is an exact
// filename reference and is emitted as `-l:<name>`; every other name is an
// ordinary library name emitted as `-l<name>`.
func (b *Builder) AddLibraryFiles(names ...string) *Builder {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if isExactLibraryFilename(name) {
			b.args = append(b.args, "-l:"+name)
		} else {
			b.args = append(b.args, "-l"+name)
		}
	}
	return b
}

// AddDefines pushes `-D<name>` for each define.
func (b *Builder) AddDefines(names ...string) *Builder {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		b.args = append(b.args, "-D"+name)
	}
	return b
}

// isExactLibraryFilename reports whether name is a "lib*.a"/"lib*.so"
// literal filename rather than an ordinary library name to pass to -l.
func isExactLibraryFilename(name string) bool {
	if !strings.HasPrefix(name, "lib") {
		return false
	}
	return strings.HasSuffix(name, ".a") || strings.HasSuffix(name, ".so")
}

func (b *Builder) warn(format string, args ...any) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
