package definitions

import (
	"io/fs"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// cacheEntry is the memoized parse result for one file. Size and mtime give
// a cheap staleness check; the content hash catches files touched without a
// content change, so re-saving an unchanged file never triggers a re-parse.
type cacheEntry struct {
	size  int64
	mtime time.Time
	sum   [32]byte

	defs []*core.ExternalDefinition
	err  error
}

type fileCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newFileCache() *fileCache {
	return &fileCache{entries: make(map[string]*cacheEntry)}
}

// lookup returns the cached result when the file is unchanged. The fast path
// compares size and mtime without touching content; callers fall back to
// lookupByContent after reading the file.
func (c *fileCache) lookup(path string, info fs.FileInfo) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if e.size != info.Size() || !e.mtime.Equal(info.ModTime()) {
		return nil, false
	}
	return e, true
}

// lookupByContent matches a read file against the cache by content hash and
// refreshes the stat fields on a hit so the next lookup takes the fast path.
func (c *fileCache) lookupByContent(path string, info fs.FileInfo, data []byte) (*cacheEntry, bool) {
	sum := blake3.Sum256(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || e.sum != sum {
		return nil, false
	}
	e.size = info.Size()
	e.mtime = info.ModTime()
	return e, true
}

// store records a parse result, successful or not.
func (c *fileCache) store(path string, info fs.FileInfo, data []byte, defs []*core.ExternalDefinition, err error) {
	e := &cacheEntry{
		size:  info.Size(),
		mtime: info.ModTime(),
		sum:   blake3.Sum256(data),
		defs:  defs,
		err:   err,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = e
}

// prune drops entries for files no longer present on disk.
func (c *fileCache) prune(keep map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path := range c.entries {
		if _, ok := keep[path]; !ok {
			delete(c.entries, path)
		}
	}
}

// invalidate clears the cache entirely. Refresh uses it so a reload after a
// source update re-reads every file.
func (c *fileCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func (c *fileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
