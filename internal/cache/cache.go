// Package cache implements the engine's global container cache (GCT): a
// process-wide registry that keeps loaded databases, tables, directories,
// and pages available by name so repeated lookups within one command
// stream avoid re-reading the container file from storage.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Class identifies which container level a cache entry belongs to.
// Each class is sized and evicted independently, mirroring the engine's
// separate DIRECTORY_CACHE / PAGE_CACHE / TABLE_CACHE / DATABASE_CACHE
// tables.
type Class string

const (
	ClassDatabase  Class = "database"
	ClassTable     Class = "table"
	ClassDirectory Class = "directory"
	ClassPage      Class = "page"
)

// Stats reports point-in-time cache occupancy and hit/miss counts for one
// class.
type Stats struct {
	Entries   int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

// SaveFunc persists an entry's current contents to storage. It is invoked
// on eviction and on explicit Flush.
type SaveFunc func() error

// FreeFunc releases any resources held by an entry after it has been
// saved and removed from the cache.
type FreeFunc func() error

type entry struct {
	class      Class
	name       string
	basePath   string
	value      interface{}
	pinned     bool
	save       SaveFunc
	free       FreeFunc
	accessedAt time.Time
	element    *list.Element
}

type classBucket struct {
	entries   map[string]*entry
	evictList *list.List
	maxSize   int
	hits      uint64
	misses    uint64
	evictions uint64
}

// Recorder observes cache hit/miss events, letting an external metrics
// collector track cache efficiency without this package depending on it.
type Recorder interface {
	RecordCacheHit(class Class)
	RecordCacheMiss(class Class)
}

// Cache is the process-wide global container table. One Cache instance
// is shared by every package that loads containers (internal/container,
// internal/kernel).
type Cache struct {
	mu       sync.Mutex
	buckets  map[Class]*classBucket
	recorder Recorder
}

// SetRecorder wires an optional metrics recorder into c, reported on every
// subsequent Find. A nil recorder disables reporting.
func (c *Cache) SetRecorder(recorder Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = recorder
}

// Config sizes each cache class. A zero value for a class's MaxEntries
// means unbounded.
type Config struct {
	DatabaseMaxEntries  int
	TableMaxEntries     int
	DirectoryMaxEntries int
	PageMaxEntries      int
}

// New creates a cache sized per config.
func New(config Config) *Cache {
	c := &Cache{
		buckets: map[Class]*classBucket{
			ClassDatabase:  newBucket(config.DatabaseMaxEntries),
			ClassTable:     newBucket(config.TableMaxEntries),
			ClassDirectory: newBucket(config.DirectoryMaxEntries),
			ClassPage:      newBucket(config.PageMaxEntries),
		},
	}
	return c
}

func newBucket(maxSize int) *classBucket {
	return &classBucket{
		entries:   make(map[string]*entry),
		evictList: list.New(),
		maxSize:   maxSize,
	}
}

func cacheKey(name, basePath string) string {
	return fmt.Sprintf("%s\x00%s", basePath, name)
}

// Find returns a previously cached container value for (name, basePath)
// in the given class, mirroring CHC_find_entry. The second return value
// is false on a miss.
func (c *Cache) Find(class Class, name, basePath string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[class]
	key := cacheKey(name, basePath)
	e, ok := bucket.entries[key]
	if !ok {
		bucket.misses++
		if c.recorder != nil {
			c.recorder.RecordCacheMiss(class)
		}
		return nil, false
	}

	e.accessedAt = time.Now()
	bucket.evictList.MoveToFront(e.element)
	bucket.hits++
	if c.recorder != nil {
		c.recorder.RecordCacheHit(class)
	}
	return e.value, true
}

// Add registers a freshly loaded container under (name, basePath),
// mirroring CHC_add_entry. save and then free are invoked when the entry is
// evicted or flushed. Adding evicts the class's least-recently-used
// unpinned entry if the class is already at capacity.
func (c *Cache) Add(class Class, name, basePath string, value interface{}, free FreeFunc, save SaveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[class]
	key := cacheKey(name, basePath)

	if existing, ok := bucket.entries[key]; ok {
		existing.value = value
		existing.save = save
		existing.free = free
		existing.accessedAt = time.Now()
		bucket.evictList.MoveToFront(existing.element)
		return
	}

	e := &entry{
		class:      class,
		name:       name,
		basePath:   basePath,
		value:      value,
		save:       save,
		free:       free,
		accessedAt: time.Now(),
	}
	e.element = bucket.evictList.PushFront(key)
	bucket.entries[key] = e

	c.evictIfNeeded(bucket)
}

// Exists reports whether name is registered under any class, regardless
// of whether it has ever been written to storage. A container created and
// cached within the current transaction but not yet saved still counts as
// existing, closing the window where two such containers could be assigned
// the same generated name before either reaches disk.
func (c *Cache) Exists(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, bucket := range c.buckets {
		for _, e := range bucket.entries {
			if e.name == name {
				return true
			}
		}
	}
	return false
}

// Pin marks an entry as ineligible for least-recently-used eviction until
// Unpin is called.
func (c *Cache) Pin(class Class, name, basePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.buckets[class].entries[cacheKey(name, basePath)]; ok {
		e.pinned = true
	}
}

// Unpin clears a previous Pin, making the entry eligible for eviction
// again.
func (c *Cache) Unpin(class Class, name, basePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.buckets[class].entries[cacheKey(name, basePath)]; ok {
		e.pinned = false
	}
}

// Flush saves and removes a single entry, mirroring CHC_flush_entry. It
// is a no-op if the entry is not cached.
func (c *Cache) Flush(class Class, name, basePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(name, basePath)
	bucket := c.buckets[class]
	e, ok := bucket.entries[key]
	if !ok {
		return nil
	}

	return c.evict(bucket, e)
}

// FlushAll saves and removes every entry in a class, used by transaction
// rollback.
func (c *Cache) FlushAll(class Class) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[class]
	var firstErr error
	for bucket.evictList.Len() > 0 {
		key := bucket.evictList.Front().Value.(string)
		e := bucket.entries[key]
		if err := c.evict(bucket, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// evict saves (if a save callback is set), frees, and removes one entry.
// Caller must hold c.mu.
func (c *Cache) evict(bucket *classBucket, e *entry) error {
	var err error
	if e.save != nil {
		err = e.save()
	}
	if e.free != nil {
		if ferr := e.free(); ferr != nil && err == nil {
			err = ferr
		}
	}

	bucket.evictList.Remove(e.element)
	delete(bucket.entries, cacheKey(e.name, e.basePath))
	bucket.evictions++
	return err
}

// evictIfNeeded evicts least-recently-used unpinned entries until the
// bucket is back within capacity. Caller must hold c.mu.
func (c *Cache) evictIfNeeded(bucket *classBucket) {
	if bucket.maxSize <= 0 {
		return
	}

	for len(bucket.entries) > bucket.maxSize {
		element := oldestUnpinned(bucket)
		if element == nil {
			return
		}
		key := element.Value.(string)
		_ = c.evict(bucket, bucket.entries[key])
	}
}

func oldestUnpinned(bucket *classBucket) *list.Element {
	for e := bucket.evictList.Back(); e != nil; e = e.Prev() {
		key := e.Value.(string)
		if entry, ok := bucket.entries[key]; ok && !entry.pinned {
			return e
		}
	}
	return nil
}

// Stats reports current occupancy and hit/miss counters for a class.
func (c *Cache) Stats(class Class) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[class]
	total := bucket.hits + bucket.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(bucket.hits) / float64(total)
	}

	return Stats{
		Entries:   len(bucket.entries),
		Capacity:  bucket.maxSize,
		Hits:      bucket.hits,
		Misses:    bucket.misses,
		Evictions: bucket.evictions,
		HitRate:   hitRate,
	}
}
