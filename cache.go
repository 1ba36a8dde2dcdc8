package coursekit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/fileutil"
)

// Cache remembers the source hash of every compiled (course, locale) pair so
// unchanged courses are skipped on the next run. It persists to cache.json
// in the output directory.
type Cache struct {
	mu    sync.Mutex
	data  map[string]string
	dirty bool

	path      string
	log       *buildlog.Logger
	lastFlush time.Time
	throttle  time.Duration
	now       func() time.Time
}

// NewCache loads the cache from <outputDir>/cache.json. A missing or corrupt
// file starts an empty cache.
func NewCache(outputDir string, log *buildlog.Logger) *Cache {
	c := &Cache{
		data:     map[string]string{},
		path:     filepath.Join(outputDir, "cache.json"),
		log:      log,
		throttle: time.Second,
		now:      time.Now,
	}
	raw, err := os.ReadFile(c.path) // #nosec G304 -- fixed output path
	if err != nil {
		return c
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		log.Warnf("discarding corrupt change cache %s: %v", c.path, err)
		c.data = map[string]string{}
	}
	return c
}

// Get returns the recorded hash for a cache key, or "".
func (c *Cache) Get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

// Set records the hash for a cache key.
func (c *Cache) Set(key, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data[key] == hash {
		return
	}
	c.data[key] = hash
	c.dirty = true
}

// Invalidate drops all entries of one course, forcing its next compilation
// even when content.md is unchanged. Used by watch mode, where an edit to a
// YAML bundle must rebuild the course.
func (c *Cache) Invalidate(courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if strings.HasPrefix(key, courseID+"-") {
			delete(c.data, key)
			c.dirty = true
		}
	}
}

// Flush persists the cache if it changed, throttled so rapid successive
// compilations collapse into one disk write.
func (c *Cache) Flush() error {
	c.mu.Lock()
	if !c.dirty || c.now().Sub(c.lastFlush) < c.throttle {
		c.mu.Unlock()
		return nil
	}
	c.lastFlush = c.now()
	c.mu.Unlock()
	return c.write()
}

// FlushNow persists the cache unconditionally if it changed.
func (c *Cache) FlushNow() error {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty {
		return nil
	}
	return c.write()
}

func (c *Cache) write() error {
	c.mu.Lock()
	raw, err := json.Marshal(c.data)
	c.dirty = false
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding change cache: %w", err)
	}
	return fileutil.WriteAtomic(c.path, raw, 0o600)
}
