// Package cache persists parsed session metadata keyed by
// source-file identity. An entry is authoritative only while the
// file's (mtime, size) fingerprint matches the one recorded at
// parse time; any mismatch forces a re-parse.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sesh-dev/sesh/internal/model"
)

// Fingerprint identifies one version of a source. Same-second,
// same-size content edits are not detectable; the cache
// knowingly serves stale data in that case. Count is zero for
// single-file sources and the file count for aggregates.
type Fingerprint struct {
	Mtime int64 `json:"mtime"` // unix nanoseconds
	Size  int64 `json:"size"`
	Count int   `json:"count,omitempty"`
}

// Entry is the cached parse output for one source path.
type Entry struct {
	Provider model.ProviderType  `json:"provider"`
	Fingerprint
	Sessions []model.SessionMeta `json:"sessions"`
}

// Cache is a file-backed metadata cache. Safe for concurrent
// use; writers are serialized, readers see complete entries.
type Cache struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
	dirty   bool
}

// Load reads the cache file at path. A missing or unparsable
// file yields an empty cache, never an error: discovery rebuilds
// from scratch.
func Load(path string) *Cache {
	c := &Cache{
		path:    path,
		entries: make(map[string]Entry),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		log.Printf("cache %s unreadable, rebuilding: %v", path, err)
		c.entries = make(map[string]Entry)
	}
	return c
}

// Stat computes the current fingerprint of a source path. The
// second return is false when the path no longer exists, which
// signals the entry should be dropped.
func Stat(sourcePath string) (Fingerprint, bool) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return Fingerprint{}, false
	}
	return Fingerprint{
		Mtime: info.ModTime().UnixNano(),
		Size:  info.Size(),
	}, true
}

// StatFiles aggregates a fingerprint over a set of files: the
// newest mtime, the summed size, and the file count. A directory
// stat does not reflect appends to the files inside it, so
// sources keyed by directory must fingerprint their contents.
func StatFiles(paths []string) Fingerprint {
	var fp Fingerprint
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if mt := info.ModTime().UnixNano(); mt > fp.Mtime {
			fp.Mtime = mt
		}
		fp.Size += info.Size()
		fp.Count++
	}
	return fp
}

// ParseFunc parses one source path into session metadata.
type ParseFunc func(sourcePath string) ([]model.SessionMeta, error)

// GetOrParse returns the cached sessions for sourcePath when its
// fingerprint is unchanged, re-parsing and re-caching otherwise.
// A vanished source drops the entry and returns nil.
func (c *Cache) GetOrParse(
	provider model.ProviderType, sourcePath string,
	parse ParseFunc,
) ([]model.SessionMeta, error) {
	fp, ok := Stat(sourcePath)
	if !ok {
		c.Drop(sourcePath)
		return nil, nil
	}
	return c.getOrParse(provider, sourcePath, fp, parse)
}

// GetOrParseFiles is GetOrParse for a source whose content spans
// several files under one key. The fingerprint aggregates the
// files, so appending to one, adding one, or removing one each
// force a re-parse. A vanished key path drops the entry and
// returns nil.
func (c *Cache) GetOrParseFiles(
	provider model.ProviderType, sourcePath string,
	files []string, parse ParseFunc,
) ([]model.SessionMeta, error) {
	if _, ok := Stat(sourcePath); !ok {
		c.Drop(sourcePath)
		return nil, nil
	}
	return c.getOrParse(provider, sourcePath, StatFiles(files), parse)
}

func (c *Cache) getOrParse(
	provider model.ProviderType, sourcePath string,
	fp Fingerprint, parse ParseFunc,
) ([]model.SessionMeta, error) {
	c.mu.Lock()
	entry, have := c.entries[sourcePath]
	c.mu.Unlock()
	if have && entry.Provider == provider && entry.Fingerprint == fp {
		return entry.Sessions, nil
	}

	sessions, err := parse(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sourcePath, err)
	}

	c.mu.Lock()
	c.entries[sourcePath] = Entry{
		Provider:    provider,
		Fingerprint: fp,
		Sessions:    sessions,
	}
	c.dirty = true
	c.mu.Unlock()
	return sessions, nil
}

// Drop removes the entry for sourcePath.
func (c *Cache) Drop(sourcePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[sourcePath]; ok {
		delete(c.entries, sourcePath)
		c.dirty = true
	}
}

// InvalidateUnder removes every entry whose source path equals
// root or falls beneath it. Called after a move so the next
// discovery re-parses from the new location.
func (c *Cache) InvalidateUnder(root string) int {
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for path := range c.entries {
		if path == root || strings.HasPrefix(path, prefix) {
			delete(c.entries, path)
			n++
		}
	}
	if n > 0 {
		c.dirty = true
	}
	return n
}

// InvalidateSession removes entries containing the session with
// the given identity. Matching is by (provider, id); the same id
// string under another provider is untouched.
func (c *Cache) InvalidateSession(key model.SessionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, entry := range c.entries {
		if entry.Provider != key.Provider {
			continue
		}
		for _, s := range entry.Sessions {
			if s.ID == key.ID {
				delete(c.entries, path)
				c.dirty = true
				break
			}
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save flushes the cache to disk via write-then-rename. A clean
// cache is left untouched.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := writeFileAtomic(c.path, data); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// writeFileAtomic writes data to path through a temp file in the
// same directory so readers never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
