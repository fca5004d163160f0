package functional

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

func writeDescriptor(state *testState, dir string, descriptor map[string]any) error {
	out, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return err
	}
	full := filepath.Join(state.workDir, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(full, "project.json"), out, 0o644)
}

func writeSource(state *testState, dir, name, body string) error {
	full := filepath.Join(state.workDir, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(full, name), []byte(body), 0o644)
}

func aProjectDescriptorDeclaringSource(ctx context.Context, source, config string) error {
	state := getState(ctx)
	if err := writeSource(state, ".", source, "int main() { return 0; }\n"); err != nil {
		return err
	}
	return writeDescriptor(state, ".", map[string]any{
		"version":      "1.0.0",
		"source_files": []string{source},
		"configurations": map[string]any{
			config: map[string]any{
				"default":      true,
				"target":       "executable",
				"optimisation": "2",
				"output_path":  "bin",
				"output_name":  "hello",
			},
		},
	})
}

func aProjectDescriptorWithTargetNamed(ctx context.Context, config, target, name string) error {
	state := getState(ctx)
	if err := writeSource(state, ".", "lib.cpp", "int add(int a, int b) { return a + b; }\n"); err != nil {
		return err
	}
	return writeDescriptor(state, ".", map[string]any{
		"version":      "1.0.0",
		"source_files": []string{"lib.cpp"},
		"configurations": map[string]any{
			config: map[string]any{
				"default":     true,
				"target":      target,
				"output_path": "bin",
				"output_name": name,
			},
		},
	})
}

func aProjectDependingOnLibraryProject(ctx context.Context, parent, lib string) error {
	state := getState(ctx)
	if err := writeSource(state, lib, "lib.cpp", "int add(int a, int b) { return a + b; }\n"); err != nil {
		return err
	}
	if err := writeDescriptor(state, lib, map[string]any{
		"version":      "1.0.0",
		"source_files": []string{"lib.cpp"},
		"configurations": map[string]any{
			"release": map[string]any{
				"default":     true,
				"target":      "library",
				"output_path": "bin",
				"output_name": lib,
			},
		},
	}); err != nil {
		return err
	}

	if err := writeSource(state, parent, "main.cpp", "int main() { return 0; }\n"); err != nil {
		return err
	}
	return writeDescriptor(state, parent, map[string]any{
		"version":      "1.0.0",
		"source_files": []string{"main.cpp"},
		"configurations": map[string]any{
			"release": map[string]any{
				"default":      true,
				"target":       "executable",
				"output_path":  "bin",
				"output_name":  parent,
				"dependencies": []string{"../" + lib},
			},
		},
	})
}

func aProjectDescriptorWithBasenameCollision(ctx context.Context, srcA, srcB string) error {
	state := getState(ctx)
	if err := writeSource(state, filepath.Dir(srcA), filepath.Base(srcA), "void a() {}\n"); err != nil {
		return err
	}
	if err := writeSource(state, filepath.Dir(srcB), filepath.Base(srcB), "void b() {}\n"); err != nil {
		return err
	}
	return writeDescriptor(state, ".", map[string]any{
		"version":      "1.0.0",
		"source_files": []string{srcA, srcB},
		"configurations": map[string]any{
			"release": map[string]any{
				"default":     true,
				"target":      "library",
				"output_path": "bin",
				"output_name": "collision",
			},
		},
	})
}

func aScriptModeSourceFile(ctx context.Context, name string) error {
	state := getState(ctx)
	return writeSource(state, ".", name, "//> script\n#include <cstdio>\nint main() { printf(\"hi\\n\"); return 0; }\n")
}

// projectDeclaresDependencyOn adds a "dependencies" entry to the named
// project's sole configuration, pointing at the other project. Used to
// construct a mutual-dependency cycle across two Given steps.
func projectDeclaresDependencyOn(ctx context.Context, project, dependsOn string) error {
	state := getState(ctx)
	srcName := project + ".cpp"
	if err := writeSource(state, project, srcName, "int "+project+"_fn() { return 0; }\n"); err != nil {
		return err
	}
	return writeDescriptor(state, project, map[string]any{
		"version":      "1.0.0",
		"source_files": []string{srcName},
		"configurations": map[string]any{
			"release": map[string]any{
				"default":      true,
				"target":       "executable",
				"output_path":  "bin",
				"output_name":  project,
				"dependencies": []string{"../" + dependsOn},
			},
		},
	})
}

func iTouchTheFile(ctx context.Context, path string) error {
	state := getState(ctx)
	full := filepath.Join(state.workDir, path)
	now := time.Now().Add(time.Second)
	return os.Chtimes(full, now, now)
}

// iRun executes a command string, replacing "forge" at the start with the
// test binary path, from the scenario's temporary working directory.
func iRun(ctx context.Context, command string) (context.Context, error) {
	state := getState(ctx)
	if state == nil {
		return ctx, fmt.Errorf("no test state; is the Before hook running?")
	}

	args := strings.Fields(command)
	if len(args) > 0 && args[0] == "forge" {
		args[0] = state.binPath
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = state.workDir
	cmd.Env = append(os.Environ(), "FORGE_NO_TELEMETRY=1")

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return ctx, fmt.Errorf("command execution failed: %w", err)
		}
	} else {
		state.exitCode = 0
	}

	return ctx, nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s",
			expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

func theExitCodeIsNot(ctx context.Context, notExpected int) error {
	state := getState(ctx)
	if state.exitCode == notExpected {
		return fmt.Errorf("expected exit code to not be %d\nstdout: %s\nstderr: %s",
			notExpected, state.stdout, state.stderr)
	}
	return nil
}

func theOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theErrorOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stderr, text) {
		return fmt.Errorf("expected stderr to contain %q, got:\n%s", text, state.stderr)
	}
	return nil
}

func theFileExists(ctx context.Context, path string) error {
	state := getState(ctx)
	fullPath := filepath.Join(state.workDir, path)
	if _, err := os.Lstat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("expected file %q to exist", fullPath)
	}
	return nil
}

func theFileDoesNotExist(ctx context.Context, path string) error {
	state := getState(ctx)
	fullPath := filepath.Join(state.workDir, path)
	if _, err := os.Lstat(fullPath); err == nil {
		return fmt.Errorf("expected file %q not to exist", fullPath)
	}
	return nil
}

// zeroCompileTasksRan checks the previous run's output for any "== label =="
// compile-task banner; the link step's "== config:link ==" banner always
// runs and is not itself a compile task.
func zeroCompileTasksRan(ctx context.Context) error {
	state := getState(ctx)
	for _, line := range strings.Split(state.stdout, "\n") {
		if strings.HasPrefix(line, "== ") && !strings.HasSuffix(line, ":link ==") {
			return fmt.Errorf("expected no compile task banners, got line %q in:\n%s", line, state.stdout)
		}
	}
	return nil
}

func compilingRanExactlyOnce(ctx context.Context, source string) error {
	state := getState(ctx)
	marker := "== " + source + " =="
	count := strings.Count(state.stdout, marker)
	if count != 1 {
		return fmt.Errorf("expected %q to appear exactly once, appeared %d times:\n%s", marker, count, state.stdout)
	}
	return nil
}
