// Package objcache implements a persistent, content-addressed, compressed
// object cache shared across clean checkouts of the same project.
//
// Entries are keyed by (source content hash, resolved compiler argument
// list, compiler fingerprint). Hitting the cache lets a clean checkout skip
// recompiling a source the local tree has never seen before, so long as
// some other checkout already compiled it with the identical inputs. This
// is strictly an accelerator: internal/incdep's mtime walk remains the
// primary, required staleness check, and a cache miss or a disabled cache
// never changes what gets rebuilt.
package objcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/forgebuild/forge/internal/config"
	"github.com/forgebuild/forge/internal/shellrun"
)

// Key identifies a cacheable compile result.
type Key struct {
	SourceHash      string // sha256 hex of the source file's contents
	ArgsHash        string // sha256 hex of the normalized compiler argument list
	CompilerVersion string // fingerprint of the compiler that would produce the object
}

// id collapses a Key into the single string used as the sqlite primary key
// and the blob filename.
func (k Key) id() string {
	h := sha256.New()
	h.Write([]byte(k.SourceHash))
	h.Write([]byte{0})
	h.Write([]byte(k.ArgsHash))
	h.Write([]byte{0})
	h.Write([]byte(k.CompilerVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a handle on the shared object cache's sqlite index and
// compressed blob directory. A Cache is safe for concurrent use.
type Cache struct {
	db      *sql.DB
	blobDir string

	mu sync.Mutex
}

// Open opens (creating if necessary) the object cache described by cfg.
func Open(cfg *config.Config) (*Cache, error) {
	blobDir := cfg.ObjectCacheBlobDir()
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("objcache: creating blob directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.ObjectCacheIndexFile())
	if err != nil {
		return nil, fmt.Errorf("objcache: opening index: %w", err)
	}
	// modernc.org/sqlite serializes internally; a single connection avoids
	// SQLITE_BUSY from overlapping writers within this process.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, blobDir: blobDir}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
CREATE TABLE IF NOT EXISTS entries (
	id               TEXT PRIMARY KEY,
	size             INTEGER NOT NULL,
	compiler_version TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_used_at     INTEGER NOT NULL,
	hits             INTEGER NOT NULL DEFAULT 0
)`)
	return err
}

// Close closes the underlying index. It does not touch the blob directory.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) blobPath(id string) string {
	return filepath.Join(c.blobDir, id+".zst")
}

// Fetch writes the cached object for key to destPath if present, reporting
// whether a cached entry existed. A miss is not an error.
func (c *Cache) Fetch(key Key, destPath string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	var exists int
	err := c.db.QueryRow(`SELECT 1 FROM entries WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("objcache: looking up entry: %w", err)
	}

	blob, err := os.Open(c.blobPath(id))
	if errors.Is(err, os.ErrNotExist) {
		// Index and blob disagree (e.g. blob manually pruned); treat as a
		// miss rather than failing the build, and forget the stale row.
		_, _ = c.db.Exec(`DELETE FROM entries WHERE id = ?`, id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("objcache: opening blob: %w", err)
	}
	defer blob.Close()

	zr, err := zstd.NewReader(blob)
	if err != nil {
		return false, fmt.Errorf("objcache: creating zstd reader: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return false, fmt.Errorf("objcache: creating object directory: %w", err)
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return false, fmt.Errorf("objcache: creating object file: %w", err)
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		return false, fmt.Errorf("objcache: decompressing blob: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, err
	}

	now := time.Now().Unix()
	_, _ = c.db.Exec(`UPDATE entries SET last_used_at = ?, hits = hits + 1 WHERE id = ?`, now, id)
	return true, nil
}

// Store compresses objectPath's contents into the blob store and upserts
// its index row.
func (c *Cache) Store(key Key, objectPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	in, err := os.Open(objectPath)
	if err != nil {
		return fmt.Errorf("objcache: opening object to cache: %w", err)
	}
	defer in.Close()

	blobPath := c.blobPath(id)
	tmpPath := blobPath + ".tmp"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("objcache: creating blob: %w", err)
	}

	zw, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("objcache: creating zstd writer: %w", err)
	}
	if _, copyErr := io.Copy(zw, in); copyErr != nil {
		zw.Close()
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("objcache: compressing object: %w", copyErr)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("objcache: installing blob: %w", err)
	}

	info, err := os.Stat(blobPath)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err = c.db.Exec(`
INSERT INTO entries (id, size, compiler_version, created_at, last_used_at, hits)
VALUES (?, ?, ?, ?, ?, 0)
ON CONFLICT(id) DO UPDATE SET size = excluded.size, last_used_at = excluded.last_used_at`,
		id, info.Size(), key.CompilerVersion, now, now)
	if err != nil {
		return fmt.Errorf("objcache: recording entry: %w", err)
	}
	return nil
}

// Evict deletes least-recently-used entries until the blob store is at or
// under maxSize, and unconditionally drops entries older than maxAge.
func (c *Cache) Evict(maxSize int64, maxAge time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).Unix()
		rows, err := c.db.Query(`SELECT id FROM entries WHERE last_used_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("objcache: querying aged entries: %w", err)
		}
		var stale []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			stale = append(stale, id)
		}
		rows.Close()
		for _, id := range stale {
			if err := c.remove(id); err != nil {
				return err
			}
		}
	}

	if maxSize <= 0 {
		return nil
	}

	type row struct {
		id        string
		size      int64
		lastUsed  int64
	}
	rows, err := c.db.Query(`SELECT id, size, last_used_at FROM entries`)
	if err != nil {
		return fmt.Errorf("objcache: querying entries: %w", err)
	}
	var all []row
	var total int64
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.size, &r.lastUsed); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
		total += r.size
	}
	rows.Close()

	if total <= maxSize {
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].lastUsed < all[j].lastUsed })
	for _, r := range all {
		if total <= maxSize {
			break
		}
		if err := c.remove(r.id); err != nil {
			return err
		}
		total -= r.size
	}
	return nil
}

func (c *Cache) remove(id string) error {
	if err := os.Remove(c.blobPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objcache: removing blob: %w", err)
	}
	if _, err := c.db.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("objcache: removing entry: %w", err)
	}
	return nil
}

// Stats summarizes the cache's current contents.
type Stats struct {
	Entries   int
	TotalSize int64
	Hits      int64
}

// Stats reports the current entry count, total blob size, and cumulative
// hit count.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	err := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(hits), 0) FROM entries`).
		Scan(&s.Entries, &s.TotalSize, &s.Hits)
	if err != nil {
		return Stats{}, fmt.Errorf("objcache: reading stats: %w", err)
	}
	return s, nil
}

// HashSource hashes a source file's contents for use as Key.SourceHash.
func HashSource(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashArgs hashes a normalized compiler argument list for use as
// Key.ArgsHash. Order is significant: two equivalent but differently
// ordered argument lists hash differently, matching how a real compiler
// invocation is order-sensitive.
func HashArgs(args []string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(args, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// CompilerFingerprint runs "compiler --version" and hashes its output, so
// a cache entry is invalidated whenever the toolchain itself changes.
func CompilerFingerprint(ctx context.Context, compiler string) (string, error) {
	res := shellrun.Run(ctx, compiler, []string{"--version"}, nil)
	h := sha256.New()
	h.Write([]byte(res.Output))
	return hex.EncodeToString(h.Sum(nil)), nil
}
