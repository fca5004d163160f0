package scriptmode

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/forgebuild/forge/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()
	return &config.Config{
		HomeDir:        home,
		ScriptCacheDir: filepath.Join(home, "scriptcache"),
	}
}

func fakeCompilerScript(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool script requires a POSIX shell")
	}

	script := `#!/bin/sh
target=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then
    target="$2"
    shift 2
    continue
  fi
  shift
done
mkdir -p "$(dirname "$target")"
: > "$target"
chmod +x "$target"
exit 0
`
	// Named "c++" so it satisfies buildconfig's default compiler/linker
	// resolution without a descriptor override.
	path := filepath.Join(dir, "c++")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDropFirstLine(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"#!forge\nint main(){}\n", "int main(){}\n"},
		{"no newline at all", ""},
		{"#!forge\n", ""},
	}
	for _, c := range cases {
		got := dropFirstLine([]byte(c.in))
		if !bytes.Equal(got, []byte(c.want)) {
			t.Errorf("dropFirstLine(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCacheKey_StableAndDistinct(t *testing.T) {
	a := cacheKey("/tmp/one.cpp")
	b := cacheKey("/tmp/one.cpp")
	c := cacheKey("/tmp/two.cpp")
	if a != b {
		t.Errorf("cacheKey not stable: %s != %s", a, b)
	}
	if a == c {
		t.Errorf("cacheKey collided for distinct paths")
	}
}

func TestRefreshStripped_DropsDirectiveAndSkipsWhenFresh(t *testing.T) {
	srcDir := t.TempDir()
	script := filepath.Join(srcDir, "tool.cpp")
	if err := os.WriteFile(script, []byte("#!forge\nint main() { return 0; }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cacheDir := cfg.ScriptCacheEntryDir(cacheKey(mustAbs(t, script)))
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	strippedPath := filepath.Join(cacheDir, "tool.cpp")

	if err := refreshStripped(mustAbs(t, script), strippedPath); err != nil {
		t.Fatal(err)
	}
	stripped, err := os.ReadFile(strippedPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(stripped) != "int main() { return 0; }\n" {
		t.Errorf("stripped content = %q", stripped)
	}

	// Rewriting a sentinel into the cached copy and re-running refreshStripped
	// against an unchanged source must leave it untouched (source not newer).
	if err := os.WriteFile(strippedPath, []byte("sentinel"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := refreshStripped(mustAbs(t, script), strippedPath); err != nil {
		t.Fatal(err)
	}
	unchanged, err := os.ReadFile(strippedPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(unchanged) != "sentinel" {
		t.Errorf("refreshStripped overwrote an up-to-date cached copy: %q", unchanged)
	}
}

func TestSynthesizeDescriptor_NamesSourceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.json")
	if err := synthesizeDescriptor(path, "tool.cpp"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"tool.cpp"`)) {
		t.Errorf("synthesized descriptor missing source file name: %s", data)
	}
	if !bytes.Contains(data, []byte(`"shebang"`)) {
		t.Errorf("synthesized descriptor missing the shebang configuration: %s", data)
	}
}

func TestRun_BuildsThenAttemptsToExecTheResult(t *testing.T) {
	srcDir := t.TempDir()
	fakeCompilerScript(t, srcDir)
	t.Setenv("PATH", srcDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	script := filepath.Join(srcDir, "tool.cpp")
	if err := os.WriteFile(script, []byte("#!forge\nint main() { return 0; }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	if err := Run(context.Background(), cfg, script, nil); err == nil {
		t.Fatal("expected Run to return the exec error for the stand-in binary (an empty file), got nil")
	}
}

func mustAbs(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}
