package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Rewrite serializes p back into a project descriptor at destPath, with
// every configuration's defaults (compiler, linker, archiver, output
// directory, output name, target kind) filled in explicitly. This backs
// "-u FILE": the loader's defaulting logic becomes visible and editable on
// disk instead of staying implicit, without building anything.
func Rewrite(p *Project, destPath string) error {
	d := descriptor{
		Version:        p.Version.String(),
		SourceFiles:    p.Sources.Paths(),
		ResourceFiles:  p.Resources.Paths(),
		Configurations: make(map[string]configDescriptor, len(p.Configs)),
	}

	for name, cfg := range p.Configs {
		target := "executable"
		switch cfg.Target {
		case "static-archive":
			target = "library"
		case "shared-object":
			target = "sharedlibrary"
		}

		deps := make([]json.RawMessage, 0, len(cfg.Dependencies))
		depPaths := make([]string, 0, len(cfg.Dependencies))
		for depPath := range cfg.Dependencies {
			depPaths = append(depPaths, depPath)
		}
		sort.Strings(depPaths)
		for _, depPath := range depPaths {
			depCfgName := cfg.Dependencies[depPath]
			var raw json.RawMessage
			var err error
			if depCfgName == "" {
				raw, err = json.Marshal(depPath)
			} else {
				raw, err = json.Marshal(map[string]string{depPath: depCfgName})
			}
			if err != nil {
				return fmt.Errorf("project: encoding dependency %q for rewrite: %w", depPath, err)
			}
			deps = append(deps, raw)
		}

		d.Configurations[name] = configDescriptor{
			Default:      cfg.IsDefault,
			Target:       target,
			Compiler:     cfg.Compiler,
			Linker:       cfg.Linker,
			Archiver:     cfg.Archiver,
			OutputPath:   cfg.OutputDir,
			OutputName:   cfg.OutputName,
			Standard:     cfg.Standard,
			Optimisation: flexString(cfg.Optimisation),
			DebugLevel:   flexString(cfg.DebugLevel),
			GtkVersion:   cfg.GTKVersion,
			PkgConfig:    append([]string{}, cfg.PkgConfigPackages...),
			Include:      relativize(p.RootDir, cfg.IncludePaths),
			LibPaths:     relativize(p.RootDir, cfg.LibPaths),
			Libs:         append([]string{}, cfg.Libs...),
			Define:       append([]string{}, cfg.Defines...),
			Dependencies: deps,
			SourceFiles:  append([]string{}, cfg.Sources...),
		}
	}

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("project: encoding descriptor for rewrite: %w", err)
	}
	out = append(out, '\n')

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("project: creating directory for %s: %w", destPath, err)
	}
	if err := os.WriteFile(destPath, out, 0644); err != nil {
		return &FilesystemError{Project: p.Name, Path: destPath, Reason: "writing rewritten descriptor: " + err.Error()}
	}
	return nil
}

// relativize converts each absolute path back to project-root-relative
// form when possible, leaving it untouched otherwise.
func relativize(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(root, p); err == nil && !filepath.IsAbs(rel) {
			out = append(out, rel)
		} else {
			out = append(out, p)
		}
	}
	return out
}
