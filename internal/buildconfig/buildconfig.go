// Package buildconfig implements a named build profile: target kind,
// toolchain command names, output layout, optimisation/debug knobs,
// include/lib paths, library names, defines, and the compile-task planning
// that turns a project's source sets into a scheduler-ready task stack.
package buildconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgebuild/forge/internal/argbuilder"
	"github.com/forgebuild/forge/internal/incdep"
	"github.com/forgebuild/forge/internal/objcache"
	"github.com/forgebuild/forge/internal/pkgconfig"
	"github.com/forgebuild/forge/internal/shellrun"
)

// TargetKind identifies the kind of artifact a Configuration produces.
type TargetKind string

const (
	TargetExecutable  TargetKind = "executable"
	TargetStaticLib   TargetKind = "static-archive"
	TargetSharedLib   TargetKind = "shared-object"
)

// sourceCategory labels which of a project's three source sets a given
// source belongs to. Disambiguation counting runs across all three in this
// fixed order, so object naming stays deterministic regardless of which
// sets changed between builds.
type sourceCategory string

const (
	categoryGeneratedResources sourceCategory = "gen"
	categoryProjectWide        sourceCategory = "src"
	categoryConfigSpecific     sourceCategory = "cfg"
)

// Configuration is one named build profile.
type Configuration struct {
	Name   string
	Target TargetKind

	Compiler string
	Linker   string
	Archiver string

	OutputDir  string
	OutputName string

	Standard      string
	Optimisation  string
	DebugLevel    string

	IncludePaths []string
	LibPaths     []string
	Libs         []string
	Defines      []string

	// PkgConfigPackages is the generalized form of the legacy single-value
	// "gtk_version" field: zero or more pkg-config package names whose
	// cflags/libs are folded into IncludePaths/Libs at plan time.
	PkgConfigPackages []string

	// GTKVersion is the legacy single-value alias for PkgConfigPackages: a
	// bare major version (e.g. "3") expands to the "gtk+-3.0" package.
	GTKVersion string

	// Dependencies maps a dependency project identifier to the
	// configuration name to build within it. An empty string value means
	// "use the same configuration name as this one".
	Dependencies map[string]string

	// Sources holds paths, relative to the project root, that belong only
	// to this configuration (on top of the project-wide source set).
	Sources []string

	IsDefault bool
}

// Normalize applies load-time invariants: validating include/lib search
// paths (dropping ones that do not exist, with a warning), and for
// static-archive targets, normalizing the output name to the "lib*.a"
// convention.
func (c *Configuration) Normalize() (warnings []string) {
	var kept []string
	for _, p := range c.IncludePaths {
		if dirExists(p) {
			kept = append(kept, p)
		} else {
			warnings = append(warnings, fmt.Sprintf("include path does not exist, dropping: %s", p))
		}
	}
	c.IncludePaths = kept

	kept = nil
	for _, p := range c.LibPaths {
		if dirExists(p) {
			kept = append(kept, p)
		} else {
			warnings = append(warnings, fmt.Sprintf("library path does not exist, dropping: %s", p))
		}
	}
	c.LibPaths = kept

	if c.Target == TargetStaticLib {
		c.OutputName = normalizeStaticLibName(c.OutputName)
	}

	return warnings
}

// normalizeStaticLibName ensures name begins with "lib" and ends with ".a",
// silently repairing whichever half is missing.
func normalizeStaticLibName(name string) string {
	if !strings.HasPrefix(name, "lib") {
		name = "lib" + name
	}
	if !strings.HasSuffix(name, ".a") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".a"
	}
	return name
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CompileTask is a single compiler invocation, planned but not yet run.
// It implements the scheduler's Task interface.
type CompileTask struct {
	label    string
	output   string
	compiler string
	args     []string

	cache     *objcache.Cache
	cacheKey  objcache.Key

	done      bool
	ok        bool
	rawOutput string
}

// NewCompileTask constructs a planned compile task.
func NewCompileTask(label, output, compiler string, args []string) *CompileTask {
	return &CompileTask{label: label, output: output, compiler: compiler, args: args}
}

// withCache attaches the shared object cache entry this task should
// populate on a successful compile. A zero-value cache (nil) disables
// caching for the task.
func (t *CompileTask) withCache(cache *objcache.Cache, key objcache.Key) *CompileTask {
	t.cache = cache
	t.cacheKey = key
	return t
}

// Execute runs the compiler invocation, recording its outcome. On success,
// if the task carries a cache entry, the produced object is stored so a
// future clean checkout with identical inputs can skip recompiling it.
func (t *CompileTask) Execute(ctx context.Context) error {
	result := shellrun.Run(ctx, t.compiler, t.args, nil)
	t.done = true
	t.ok = result.OK
	t.rawOutput = result.Output
	if !t.ok {
		return fmt.Errorf("%s: exit code %d", t.label, result.ExitCode)
	}
	if t.cache != nil {
		// Best-effort: a caching failure must not fail the build.
		_ = t.cache.Store(t.cacheKey, t.output)
	}
	return nil
}

func (t *CompileTask) Done() bool         { return t.done }
func (t *CompileTask) OK() bool           { return t.ok }
func (t *CompileTask) Output() string     { return t.rawOutput }
func (t *CompileTask) Label() string      { return t.label }
func (t *CompileTask) ObjectPath() string { return t.output }

// plannedSource bundles a source path with its category for disambiguation.
type plannedSource struct {
	relPath  string
	category sourceCategory
}

// Plan computes the deterministic output object path for every source
// across the three categorized sets, then builds a compile-task stack for
// only the sources the dependency engine reports as needing a rebuild.
//
// sourceRoot is the project root sources are resolved against. pkgCFlags is
// the include-path half of a prior ResolvePkgConfig call (the lib half is
// folded into c.Libs by the caller before LinkArgs runs).
func (c *Configuration) Plan(
	ctx context.Context,
	engine *incdep.Engine,
	sourceRoot string,
	generated, projectWide []string,
	pkgCFlags []string,
	forceRebuildAll bool,
	cache *objcache.Cache,
) (outputs []string, tasks []*CompileTask, err error) {
	var planned []plannedSource
	seen := make(map[string]string) // resolved absolute source path -> first category it appeared in

	addAll := func(paths []string, cat sourceCategory) error {
		for _, p := range paths {
			resolved := p
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(sourceRoot, resolved)
			}
			if firstCat, dup := seen[resolved]; dup {
				return fmt.Errorf("duplicate source %q (already present via %s)", p, firstCat)
			}
			seen[resolved] = string(cat)
			planned = append(planned, plannedSource{relPath: p, category: cat})
		}
		return nil
	}

	if err := addAll(generated, categoryGeneratedResources); err != nil {
		return nil, nil, err
	}
	if err := addAll(projectWide, categoryProjectWide); err != nil {
		return nil, nil, err
	}
	if err := addAll(c.Sources, categoryConfigSpecific); err != nil {
		return nil, nil, err
	}

	basenameCount := make(map[string]int)

	allIncludes := append(append([]string{}, c.IncludePaths...), pkgCFlags...)

	var compilerFingerprint string
	if cache != nil {
		// Computed once per Plan call: every task in this configuration
		// shares the same compiler invocation.
		compilerFingerprint, _ = objcache.CompilerFingerprint(ctx, c.Compiler)
	}

	for _, ps := range planned {
		absSrc := ps.relPath
		if !filepath.IsAbs(absSrc) {
			absSrc = filepath.Join(sourceRoot, absSrc)
		}

		full := filepath.Base(ps.relPath)
		base := strings.TrimSuffix(full, filepath.Ext(full))
		n := basenameCount[base]
		basenameCount[base] = n + 1

		objName := base + ".obj"
		if n > 0 {
			objName = fmt.Sprintf("%s.%d.obj", base, n)
		}

		objPath := filepath.Join(c.OutputDir, string(ps.category), objName)
		outputs = append(outputs, objPath)

		needsRebuild := forceRebuildAll || engine.RequiresRebuild(absSrc, objPath, allIncludes)
		if !needsRebuild {
			continue
		}

		args := c.compileArgs(absSrc, objPath, allIncludes)

		var cacheKey objcache.Key
		if cache != nil && !forceRebuildAll {
			if sourceHash, hashErr := objcache.HashSource(absSrc); hashErr == nil {
				cacheKey = objcache.Key{
					SourceHash:      sourceHash,
					ArgsHash:        objcache.HashArgs(args),
					CompilerVersion: compilerFingerprint,
				}
				if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
					return nil, nil, fmt.Errorf("creating object directory for %s: %w", ps.relPath, err)
				}
				if hit, fetchErr := cache.Fetch(cacheKey, objPath); fetchErr == nil && hit {
					continue
				}
			}
		}

		_ = os.Remove(objPath)
		if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating object directory for %s: %w", ps.relPath, err)
		}

		task := NewCompileTask(ps.relPath, objPath, c.Compiler, args)
		if cache != nil && cacheKey.SourceHash != "" {
			task.withCache(cache, cacheKey)
		}
		tasks = append(tasks, task)
	}

	return outputs, tasks, nil
}

// compileArgs builds the per-source compiler argument list: optimisation,
// debug level, build-timestamp defines, user defines, include flags, the
// language standard flag (skipped for plain C files), then the
// output/input pair.
func (c *Configuration) compileArgs(absSrc, objPath string, includePaths []string) []string {
	b := argbuilder.New()

	if c.Optimisation != "" {
		b.AddArgs("-o" + c.Optimisation)
	}
	if c.DebugLevel != "" {
		b.AddArgs("-g" + c.DebugLevel)
	}
	if c.Target == TargetSharedLib {
		b.AddArgs("-fPIC")
	}

	now := time.Now()
	b.AddDefines(
		fmt.Sprintf(`FORGE_BUILD_DATETIME="%s"`, now.Format(time.RFC3339)),
		fmt.Sprintf(`FORGE_BUILD_DATE="%s"`, now.Format("2006-01-02")),
		fmt.Sprintf(`FORGE_BUILD_TIME="%s"`, now.Format("15:04:05")),
		"FORGE_BUILT",
	)
	b.AddDefines(c.Defines...)
	b.AddIncludeSearchPaths(includePaths...)

	if c.Standard != "" && filepath.Ext(absSrc) != ".c" {
		b.AddArgs("-std=" + c.Standard)
	}

	b.AddArgs("-o", objPath, "-c", absSrc)

	return b.Args()
}

// ResolvePkgConfig invokes pkg-config for every configured package (plus
// the legacy gtkVersion alias if set), returning the combined cflags-derived
// include paths and libs-derived library names. Paths or libraries that
// pkg-config reports but that do not resolve to anything useful are
// dropped with a warning, matching the Arg Builder's own tolerance.
func (c *Configuration) ResolvePkgConfig(ctx context.Context, gtkVersion string) (cflags, libs []string, warnings []string) {
	packages := append([]string{}, c.PkgConfigPackages...)
	if gtkVersion != "" {
		packages = append(packages, "gtk+-"+gtkVersion+".0")
	}

	for _, pkg := range packages {
		pc, err := pkgconfig.Query(ctx, pkg)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("pkg-config query for %q failed: %v", pkg, err))
			continue
		}
		cflags = append(cflags, pc.IncludePaths...)
		libs = append(libs, pc.Libs...)
	}

	return cflags, libs, warnings
}

// LinkArgs assembles the final link/archive argument list per target kind.
//
//	Executable:     lib-search paths, dep-lib-search paths, object files, dep-libs, configuration libs, -o <target>
//	Static archive: "rcs", <target>, object files
//	Shared object:  "-shared", then the executable layout
func (c *Configuration) LinkArgs(objects, depLibPaths, depLibs []string, targetPath string) []string {
	b := argbuilder.New()

	switch c.Target {
	case TargetStaticLib:
		b.AddArgs("rcs", targetPath)
		b.AddArgs(objects...)
		return b.Args()

	case TargetSharedLib:
		b.AddArgs("-shared")
	}

	b.AddLibrarySearchPaths(c.LibPaths...)
	b.AddLibrarySearchPaths(depLibPaths...)
	b.AddArgs(objects...)
	b.AddLibraryFiles(depLibs...)
	b.AddLibraryFiles(c.Libs...)
	b.AddArgs("-o", targetPath)

	return b.Args()
}

// TargetPath returns the absolute output path for this configuration's
// artifact.
func (c *Configuration) TargetPath(projectRoot string) string {
	dir := c.OutputDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectRoot, dir)
	}
	return filepath.Join(dir, c.OutputName)
}
