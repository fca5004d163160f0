// Package scriptmode implements the "-#" script-mode driver: it lets a
// single C/C++ source file act as an executable script by stripping its
// leading directive line, synthesizing a one-configuration project around
// it in a cache directory keyed by a hash of the script's path, building
// that project, and replacing
// the current process with the resulting binary.
package scriptmode

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebuild/forge/internal/config"
	"github.com/forgebuild/forge/internal/project"
)

// shebangConfig is the name of the single configuration synthesized for a
// script-mode project.
const shebangConfig = "shebang"

// Run executes scriptPath as a script: see the package doc for the steps.
// extraArgs are forwarded to the produced executable, each trimmed of
// leading whitespace per spec.md §4.8.
func Run(ctx context.Context, cfg *config.Config, scriptPath string, extraArgs []string) error {
	absSrc, err := filepath.Abs(scriptPath)
	if err != nil {
		return fmt.Errorf("resolving script path %q: %w", scriptPath, err)
	}

	cacheDir := cfg.ScriptCacheEntryDir(cacheKey(absSrc))
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating script cache directory: %w", err)
	}

	strippedName := filepath.Base(absSrc)
	strippedPath := filepath.Join(cacheDir, strippedName)
	descriptorPath := filepath.Join(cacheDir, "project.json")

	if err := refreshStripped(absSrc, strippedPath); err != nil {
		return err
	}

	if _, err := os.Stat(descriptorPath); os.IsNotExist(err) {
		if err := synthesizeDescriptor(descriptorPath, strippedName); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("checking synthesized project %q: %w", descriptorPath, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	if err := os.Chdir(cacheDir); err != nil {
		return fmt.Errorf("entering script cache directory %q: %w", cacheDir, err)
	}

	p, loadErr := project.Load(descriptorPath)
	var buildErr error
	if loadErr == nil {
		buildErr = p.Build(ctx, project.BuildOptions{ConfigName: shebangConfig})
	}

	if chdirErr := os.Chdir(cwd); chdirErr != nil {
		return fmt.Errorf("restoring working directory %q: %w", cwd, chdirErr)
	}

	if loadErr != nil {
		return loadErr
	}
	if buildErr != nil {
		return buildErr
	}

	trimmed := make([]string, len(extraArgs))
	for i, a := range extraArgs {
		trimmed[i] = strings.TrimLeft(a, " \t")
	}

	return p.Run(shebangConfig, trimmed)
}

// cacheKey derives the stable cache directory name for a script's absolute
// path: the sha256 of the path, hex-encoded.
func cacheKey(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}

// refreshStripped copies original to stripped, dropping its first line, if
// stripped is missing or older than original.
func refreshStripped(original, stripped string) error {
	origInfo, err := os.Stat(original)
	if err != nil {
		return fmt.Errorf("reading script %q: %w", original, err)
	}

	if strippedInfo, err := os.Stat(stripped); err == nil {
		if !origInfo.ModTime().After(strippedInfo.ModTime()) {
			return nil
		}
	}

	data, err := os.ReadFile(original)
	if err != nil {
		return fmt.Errorf("reading script %q: %w", original, err)
	}

	if err := os.WriteFile(stripped, dropFirstLine(data), 0644); err != nil {
		return fmt.Errorf("writing stripped script %q: %w", stripped, err)
	}
	return nil
}

// dropFirstLine returns data with everything up to and including its first
// newline removed. A file with no newline strips to empty: the whole file
// was the directive line.
func dropFirstLine(data []byte) []byte {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil
	}
	return data[idx+1:]
}

// synthesizeDescriptor writes a one-configuration project descriptor naming
// sourceName as its sole source file, with default optimisation and output
// directory.
func synthesizeDescriptor(path, sourceName string) error {
	doc := map[string]any{
		"version":      "1.0.0",
		"source_files": []string{sourceName},
		"configurations": map[string]any{
			shebangConfig: map[string]any{
				"default":     true,
				"target":      "executable",
				"output_path": "bin",
				"output_name": strings.TrimSuffix(sourceName, filepath.Ext(sourceName)),
				"optimisation": "2",
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("synthesizing project descriptor: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing synthesized project descriptor %q: %w", path, err)
	}
	return nil
}
