// Package project parses a JSON project descriptor into a Project — a
// named collection of build Configurations over a shared source set — and
// drives its build and run.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/forgebuild/forge/internal/buildconfig"
	"github.com/forgebuild/forge/internal/incdep"
	"github.com/forgebuild/forge/internal/log"
	"github.com/forgebuild/forge/internal/objcache"
	"github.com/forgebuild/forge/internal/project/loadset"
	"github.com/forgebuild/forge/internal/scheduler"
	"github.com/forgebuild/forge/internal/shellrun"
	"github.com/forgebuild/forge/internal/sourceset"
)

// Project is a loaded, validated project descriptor: a name, a root
// directory every relative path resolves against, a configuration map, a
// project-wide source set, an optional resource set, and a version triple.
type Project struct {
	Name           string
	RootDir        string
	descriptorPath string

	Configs     map[string]*buildconfig.Configuration
	configOrder []string

	Sources   *sourceset.Set
	Resources *sourceset.Set
	Version   *semver.Version

	// runtimeLibPaths collects dependency library-search directories
	// discovered during the most recent Build, for Run to export into the
	// executable's environment.
	runtimeLibPaths []string
}

// ConfigNames returns the project's configuration names in the project's
// declared order (sorted, since JSON object key order is not preserved by
// encoding/json; determinism matters more here than mirroring source
// order).
func (p *Project) ConfigNames() []string {
	out := make([]string, len(p.configOrder))
	copy(out, p.configOrder)
	return out
}

// Load parses the descriptor at path into a Project. Load itself performs
// no cycle detection: a descriptor can be parsed any number of times in
// isolation. Cycle detection happens in Build, which is where dependency
// projects are actually recursively constructed and built (see Build).
func Load(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &FilesystemError{Project: path, Path: path, Reason: err.Error()}
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, &FilesystemError{Project: abs, Path: abs, Reason: "descriptor unreadable: " + err.Error()}
	}

	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &ConfigError{Project: abs, Reason: "invalid JSON: " + err.Error()}
	}

	rootDir := filepath.Dir(abs)

	version, err := semver.NewVersion(d.Version)
	if err != nil {
		return nil, &ConfigError{Project: abs, Key: "version", Reason: err.Error()}
	}
	if version.Major() == 0 && version.Minor() == 0 && version.Patch() == 0 {
		return nil, &ConfigError{Project: abs, Key: "version", Reason: "version must be non-zero"}
	}

	if len(d.Configurations) == 0 {
		return nil, &ConfigError{Project: abs, Key: "configurations", Reason: "at least one configuration is required"}
	}

	configs := make(map[string]*buildconfig.Configuration, len(d.Configurations))
	names := make([]string, 0, len(d.Configurations))
	for name := range d.Configurations {
		names = append(names, name)
	}
	sort.Strings(names)

	defaultCount := 0
	for _, name := range names {
		cd := d.Configurations[name]
		cfg, err := buildConfiguration(abs, rootDir, name, cd)
		if err != nil {
			return nil, err
		}
		if cfg.IsDefault {
			defaultCount++
		}
		configs[name] = cfg
	}
	if defaultCount > 1 {
		return nil, &ConfigError{Project: abs, Key: "default", Reason: "more than one configuration marked default"}
	}

	if len(d.SourceFiles) == 0 {
		return nil, &ConfigError{Project: abs, Key: "source_files", Reason: "at least one source file is required"}
	}
	sources := sourceset.New(rootDir)
	for _, warning := range sources.AddWarnings(d.SourceFiles) {
		log.Default().Warn(warning, "project", abs)
	}

	resources := sourceset.New(rootDir)
	for _, warning := range resources.AddWarnings(d.ResourceFiles) {
		log.Default().Warn(warning, "project", abs)
	}

	return &Project{
		Name:           abs,
		RootDir:        rootDir,
		descriptorPath: abs,
		Configs:        configs,
		configOrder:    names,
		Sources:        sources,
		Resources:      resources,
		Version:        version,
	}, nil
}

// buildConfiguration translates one descriptor configuration into a
// buildconfig.Configuration, resolving relative paths against rootDir and
// applying the load-time invariants (path existence, static-archive naming).
func buildConfiguration(projectName, rootDir, name string, cd configDescriptor) (*buildconfig.Configuration, error) {
	target, err := resolveTargetKind(cd.Target)
	if err != nil {
		return nil, &ConfigError{Project: projectName, Key: "configurations." + name + ".target", Reason: err.Error()}
	}

	optimisation := string(cd.Optimisation)
	if optimisation == "" {
		optimisation = string(cd.Optimization)
	}

	compiler := orDefault(cd.Compiler, "c++")
	linker := orDefault(cd.Linker, compiler)
	archiver := orDefault(cd.Archiver, "ar")

	outputDir := orDefault(cd.OutputPath, "bin")
	outputName := orDefault(cd.OutputName, name)

	deps, err := parseDependencies(cd.Dependencies)
	if err != nil {
		return nil, &ConfigError{Project: projectName, Key: "configurations." + name + ".dependencies", Reason: err.Error()}
	}
	depMap := make(map[string]string, len(deps))
	for _, d := range deps {
		depMap[d.ProjectPath] = d.ConfigName
	}

	var extraSources []string
	for _, src := range cd.SourceFiles {
		abs := src
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(rootDir, abs)
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			log.Default().Warn("configuration source file not found, dropping", "project", projectName, "config", name, "path", src)
			continue
		}
		extraSources = append(extraSources, src)
	}

	cfg := &buildconfig.Configuration{
		Name:              name,
		Target:            buildconfig.TargetKind(target),
		Compiler:          compiler,
		Linker:            linker,
		Archiver:          archiver,
		OutputDir:         outputDir,
		OutputName:        outputName,
		Standard:          cd.Standard,
		Optimisation:      optimisation,
		DebugLevel:        string(cd.DebugLevel),
		IncludePaths:      resolvePaths(rootDir, cd.Include),
		LibPaths:          resolvePaths(rootDir, cd.LibPaths),
		Libs:              append([]string{}, cd.Libs...),
		Defines:           append([]string{}, cd.Define...),
		PkgConfigPackages: append([]string{}, cd.PkgConfig...),
		Dependencies:      depMap,
		Sources:           extraSources,
		IsDefault:         cd.Default,
	}
	cfg.GTKVersion = cd.GtkVersion

	for _, warning := range cfg.Normalize() {
		log.Default().Warn(warning, "project", projectName, "config", name)
	}

	return cfg, nil
}

func resolvePaths(rootDir string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if filepath.IsAbs(p) {
			out = append(out, p)
		} else {
			out = append(out, filepath.Join(rootDir, p))
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// BuildOptions controls one Build invocation.
type BuildOptions struct {
	ConfigName    string
	RebuildAll    bool
	Workers       int
	TruncateLines int
	LoadSet       *loadset.Set
	Logger        log.Logger
	// Emit, if set, is called with each completed task's (possibly
	// truncated) output as it finishes.
	Emit func(label, output string)
	// ObjectCache, if set, is consulted before compiling each source and
	// populated after a successful compile. A nil cache (the default)
	// disables caching without changing any rebuild decision.
	ObjectCache *objcache.Cache
}

// resolveActiveConfig implements the "explicit name, is_default, or the
// only one" selection rule.
func (p *Project) resolveActiveConfig(name string) (string, error) {
	if name != "" {
		if _, ok := p.Configs[name]; !ok {
			return "", &ConfigError{Project: p.Name, Key: "configurations", Reason: fmt.Sprintf("no such configuration %q", name)}
		}
		return name, nil
	}

	if len(p.Configs) == 1 {
		for only := range p.Configs {
			return only, nil
		}
	}

	var def string
	count := 0
	for n, c := range p.Configs {
		if c.IsDefault {
			def = n
			count++
		}
	}
	if count == 1 {
		return def, nil
	}

	return "", &ConfigError{Project: p.Name, Key: "configurations", Reason: "no configuration specified and none marked default"}
}

// Build resolves the active configuration, recursively builds declared
// dependency projects, runs the resource pre-step if needed, plans and
// executes the compile-task stack, then links/archives the target.
func (p *Project) Build(ctx context.Context, opts BuildOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoop()
	}

	ls := opts.LoadSet
	if ls == nil {
		ls = loadset.New()
	}
	if !ls.Enter(p.Name) {
		return &CycleError{Project: p.Name, Chain: []string{p.Name}}
	}
	defer ls.Leave(p.Name)

	activeName, err := p.resolveActiveConfig(opts.ConfigName)
	if err != nil {
		return err
	}
	cfg := p.Configs[activeName]

	var depLibPaths, depLibs []string
	for depPath, depCfgName := range cfg.Dependencies {
		resolvedCfgName := depCfgName
		if resolvedCfgName == "" {
			resolvedCfgName = activeName
		}

		depDescriptor := depPath
		if !filepath.IsAbs(depDescriptor) {
			depDescriptor = filepath.Join(p.RootDir, depDescriptor)
		}

		depProject, err := Load(depDescriptor)
		if err != nil {
			return err
		}

		depOpts := opts
		depOpts.ConfigName = resolvedCfgName
		depOpts.LoadSet = ls
		if err := depProject.Build(ctx, depOpts); err != nil {
			return err
		}

		depCfg := depProject.Configs[resolvedCfgName]
		if depCfg.Target == buildconfig.TargetStaticLib || depCfg.Target == buildconfig.TargetSharedLib {
			depLibs = append(depLibs, depCfg.OutputName)
			depLibPaths = append(depLibPaths, depCfg.TargetPath(depProject.RootDir))
			depLibPaths = append(depLibPaths, filepath.Dir(depCfg.TargetPath(depProject.RootDir)))
		}
	}

	var generated []string
	if p.Resources.Len() > 0 {
		resourceDir := filepath.Join(p.RootDir, cfg.OutputDir, "gen")
		var resourceAbsPaths []string
		for _, r := range p.Resources.Paths() {
			resourceAbsPaths = append(resourceAbsPaths, p.Resources.Resolved(r))
		}

		task := NewResourceTask(resourceAbsPaths, resourceDir)
		if err := task.Execute(ctx); err != nil {
			return &BuildFailedError{Project: p.Name, Task: task.Label(), Output: task.Output()}
		}
		generated = task.GeneratedSources()
	}

	pkgCFlags, pkgLibs, warnings := cfg.ResolvePkgConfig(ctx, cfg.GTKVersion)
	for _, w := range warnings {
		logger.Warn(w, "project", p.Name, "config", activeName)
	}
	finalLibs := append(append([]string{}, cfg.Libs...), pkgLibs...)

	engine, err := incdep.New(p.descriptorPath)
	if err != nil {
		return &FilesystemError{Project: p.Name, Path: p.descriptorPath, Reason: err.Error()}
	}

	var projectWideSources []string
	for _, s := range p.Sources.Paths() {
		projectWideSources = append(projectWideSources, p.Sources.Resolved(s))
	}

	outputs, tasks, err := cfg.Plan(ctx, engine, p.RootDir, generated, projectWideSources, pkgCFlags, opts.RebuildAll, opts.ObjectCache)
	if err != nil {
		return &ConfigError{Project: p.Name, Reason: err.Error()}
	}

	targetPath := cfg.TargetPath(p.RootDir)

	if len(tasks) > 0 {
		_ = os.Remove(targetPath)

		schedulerTasks := make([]scheduler.Task, len(tasks))
		for i, t := range tasks {
			schedulerTasks[i] = t
		}

		result := scheduler.Run(ctx, schedulerTasks, workersOrDefault(opts.Workers), func(t scheduler.Task) {
			out := scheduler.Truncate(t.Output(), opts.TruncateLines)
			if opts.Emit != nil {
				opts.Emit(t.Label(), out)
			}
		})

		if !result.OK {
			var failedLabel, failedOutput string
			for _, t := range result.Completed {
				if !t.OK() {
					failedLabel, failedOutput = t.Label(), t.Output()
					break
				}
			}
			return &BuildFailedError{Project: p.Name, Task: failedLabel, Output: failedOutput}
		}
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return &FilesystemError{Project: p.Name, Path: filepath.Dir(targetPath), Reason: err.Error()}
	}

	linkCmd := cfg.Linker
	if cfg.Target == buildconfig.TargetStaticLib {
		linkCmd = cfg.Archiver
	}
	linkArgs := cfg.LinkArgs(outputs, depLibPaths, append(depLibs, finalLibs...), targetPath)

	result := shellrun.Run(ctx, linkCmd, linkArgs, nil)
	if opts.Emit != nil {
		opts.Emit(activeName+":link", result.Output)
	}
	if !result.OK {
		return &BuildFailedError{Project: p.Name, Task: activeName + ":link", Output: result.Output}
	}

	p.runtimeLibPaths = depLibPaths
	return nil
}

func workersOrDefault(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
