// Package filecache provides a versioned, mtime-gated content store that
// backs the language-service host adapter and the watch loop.
//
// A Cache never re-reads a file whose mtime hasn't moved since the last
// touch, and it never forgets a path once tracked: a file that disappears
// or becomes unreadable keeps its version counter (bumped once more) so
// downstream consumers can tell "changed to unreadable" apart from
// "never existed".
package filecache

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSnapshot is an immutable view of a file's content at a known mtime.
// Cache.Touch returns copies of FileSnapshot, never the entry it holds
// internally, so callers can't mutate cache state by holding onto one.
type FileSnapshot struct {
	Path    string
	Version int
	MTime   time.Time
	Content *string // absent (nil) when the file is empty, missing, or unreadable
}

// entry is the mutable record the Cache owns for a path. Cache.Touch
// mutates entries in place; FileSnapshot copies are handed out instead.
type entry struct {
	version int
	mtime   time.Time
	content *string
}

// Cache is the exclusive owner of all FileSnapshots it creates. It is safe
// for concurrent use; the watch loop and any number of LanguageHosts sharing
// the same working tree may call touch concurrently for distinct paths
// (touch is not reentrant-safe for the *same* path — callers serialize that
// naturally, as the watch loop does).
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	resolved map[string]string // raw input path -> resolved absolute path, first wins

	reads int // number of times the content of a file was actually read; exposed for tests
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		entries:  make(map[string]*entry),
		resolved: make(map[string]string),
	}
}

// ReadCount returns how many times Touch has actually read a file's content
// (as opposed to short-circuiting on an unchanged mtime). Exposed to verify
// the "no re-read on unchanged mtime" invariant.
func (c *Cache) ReadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Resolve normalizes path to an absolute, forward-slash form. The result is
// cached by the raw input string: the first call for a given input wins,
// even if the working directory later changes.
func (c *Cache) Resolve(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(path)
}

func (c *Cache) resolveLocked(path string) string {
	if abs, ok := c.resolved[path]; ok {
		return abs
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)
	c.resolved[path] = abs
	return abs
}

// GetSnapshot returns the current snapshot for path without touching the
// filesystem. Returns false if path has never been touched.
func (c *Cache) GetSnapshot(path string) (FileSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	abs := c.resolveLocked(path)
	e, ok := c.entries[abs]
	if !ok {
		return FileSnapshot{}, false
	}
	return snapshotOf(abs, e), true
}

// Touch is the hot path: resolve path, read its current content if the
// mtime moved, and return a copy of the resulting snapshot. See the package
// doc for the unreadable-file version-bump rule.
func (c *Cache) Touch(path string) FileSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	abs := c.resolveLocked(path)
	e, ok := c.entries[abs]
	if !ok {
		e = &entry{}
		c.entries[abs] = e
	}

	mtime, err := statFile(abs)
	if err != nil {
		if e.content != nil || e.version > 0 {
			e.version++
			e.mtime = time.Time{}
			e.content = nil
		}
		return snapshotOf(abs, e)
	}

	if !e.mtime.IsZero() && mtime.Equal(e.mtime) {
		return snapshotOf(abs, e)
	}

	content, err := os.ReadFile(abs)
	c.reads++
	if err != nil {
		if e.content != nil || e.version > 0 {
			e.version++
			e.mtime = time.Time{}
			e.content = nil
		}
		return snapshotOf(abs, e)
	}

	e.version++
	e.mtime = mtime
	if len(content) == 0 {
		e.content = nil
	} else {
		text := string(content)
		e.content = &text
	}
	return snapshotOf(abs, e)
}

// GetOrTouch returns the existing snapshot for path if one has already been
// recorded, otherwise it touches the filesystem.
func (c *Cache) GetOrTouch(path string) FileSnapshot {
	if snap, ok := c.GetSnapshot(path); ok {
		return snap
	}
	return c.Touch(path)
}

// TrackedPaths returns the absolute paths of every file the cache has seen.
func (c *Cache) TrackedPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	return paths
}

// Clear forgets every tracked file.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func snapshotOf(abs string, e *entry) FileSnapshot {
	snap := FileSnapshot{
		Path:    abs,
		Version: e.version,
		MTime:   e.mtime,
	}
	if e.content != nil {
		content := *e.content
		snap.Content = &content
	}
	return snap
}

// statFile opens and stats path in a single scoped block, guaranteeing the
// descriptor is closed on every exit path, including an early return for
// directories (which FileCache never tracks content for).
func statFile(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return time.Time{}, err
	}
	if info.IsDir() {
		return time.Time{}, os.ErrInvalid
	}
	return info.ModTime(), nil
}
