package objcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgebuild/forge/internal/config"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	home := t.TempDir()
	cfg := &config.Config{
		HomeDir:        home,
		ObjectCacheDir: filepath.Join(home, "objcache"),
	}
	c, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeObject(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "main.obj")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFetch_MissOnEmptyCache(t *testing.T) {
	c := testCache(t)
	dest := filepath.Join(t.TempDir(), "main.obj")

	hit, err := c.Fetch(Key{SourceHash: "a", ArgsHash: "b", CompilerVersion: "c"}, dest)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("expected a miss on an empty cache")
	}
}

func TestStoreThenFetch_RoundTripsContent(t *testing.T) {
	c := testCache(t)
	srcDir := t.TempDir()
	objPath := writeObject(t, srcDir, "object file contents")

	key := Key{SourceHash: "src1", ArgsHash: "args1", CompilerVersion: "c++ 13.2"}
	if err := c.Store(key, objPath); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "restored.obj")
	hit, err := c.Fetch(key, dest)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatal("expected a hit after Store")
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "object file contents" {
		t.Errorf("restored content = %q", got)
	}
}

func TestFetch_DistinctKeysDoNotCollide(t *testing.T) {
	c := testCache(t)
	srcDir := t.TempDir()
	objPath := writeObject(t, srcDir, "v1")

	key1 := Key{SourceHash: "src1", ArgsHash: "args1", CompilerVersion: "c1"}
	key2 := Key{SourceHash: "src2", ArgsHash: "args1", CompilerVersion: "c1"}

	if err := c.Store(key1, objPath); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.obj")
	hit, err := c.Fetch(key2, dest)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("expected distinct keys not to collide")
	}
}

func TestStats_ReflectsStoredEntries(t *testing.T) {
	c := testCache(t)
	srcDir := t.TempDir()
	objPath := writeObject(t, srcDir, "some bytes of object code")

	key := Key{SourceHash: "s", ArgsHash: "a", CompilerVersion: "c"}
	if err := c.Store(key, objPath); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}
	if stats.TotalSize <= 0 {
		t.Errorf("TotalSize = %d, want > 0", stats.TotalSize)
	}

	dest := filepath.Join(t.TempDir(), "out.obj")
	if _, err := c.Fetch(key, dest); err != nil {
		t.Fatal(err)
	}
	stats, err = c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1 after one Fetch", stats.Hits)
	}
}

func TestEvict_RemovesEntriesOlderThanMaxAge(t *testing.T) {
	c := testCache(t)
	srcDir := t.TempDir()
	objPath := writeObject(t, srcDir, "stale")

	key := Key{SourceHash: "s", ArgsHash: "a", CompilerVersion: "c"}
	if err := c.Store(key, objPath); err != nil {
		t.Fatal(err)
	}

	if err := c.Evict(0, time.Nanosecond); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.obj")
	hit, err := c.Fetch(key, dest)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("expected Evict to drop an entry older than maxAge")
	}
}

func TestEvict_RemovesLeastRecentlyUsedOverSizeLimit(t *testing.T) {
	c := testCache(t)
	srcDir := t.TempDir()

	obj1 := writeObject(t, srcDir, "aaaaaaaaaa")
	key1 := Key{SourceHash: "s1", ArgsHash: "a", CompilerVersion: "c"}
	if err := c.Store(key1, obj1); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)

	obj2path := filepath.Join(srcDir, "second.obj")
	if err := os.WriteFile(obj2path, []byte("bbbbbbbbbb"), 0644); err != nil {
		t.Fatal(err)
	}
	key2 := Key{SourceHash: "s2", ArgsHash: "a", CompilerVersion: "c"}
	if err := c.Store(key2, obj2path); err != nil {
		t.Fatal(err)
	}

	statsBefore, _ := c.Stats()
	if err := c.Evict(statsBefore.TotalSize-1, 0); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.obj")
	hit1, _ := c.Fetch(key1, dest)
	if hit1 {
		t.Error("expected the older entry to be evicted first")
	}
	hit2, _ := c.Fetch(key2, dest)
	if !hit2 {
		t.Error("expected the newer entry to survive eviction")
	}
}

func TestHashSource_StableForIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cpp")
	b := filepath.Join(dir, "b.cpp")
	os.WriteFile(a, []byte("int main(){return 0;}"), 0644)
	os.WriteFile(b, []byte("int main(){return 0;}"), 0644)

	ha, err := HashSource(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := HashSource(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Error("expected identical content to hash identically across files")
	}
}

func TestHashArgs_OrderSensitive(t *testing.T) {
	a := HashArgs([]string{"-O2", "-Wall"})
	b := HashArgs([]string{"-Wall", "-O2"})
	if a == b {
		t.Error("expected differently ordered argument lists to hash differently")
	}
}
