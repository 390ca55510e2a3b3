// Package imgcache is shared store of decoded images keyed by locator (URL).
// Size is bounded by entry count. Eviction is strict FIFO by insertion order,
// done in batches: when Put makes Len() > max, oldest `batch` entries go at once.
// Get does not refresh position.
package imgcache

import (
	"image"
	"sync"

	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/log2"
)

const (
	DefaultMaxEntries = 50
	DefaultEvictBatch = 10
)

type Config struct {
	MaxEntries int `hcl:"max_entries"`
	EvictBatch int `hcl:"evict_batch"`
}

type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type Cache struct {
	mu    sync.Mutex
	log   *log2.Log
	max   int
	batch int
	items map[string]image.Image
	order []string // oldest first
	stats Stats
}

func New(config Config, log *log2.Log) *Cache {
	maxEntries := helpers.IntDefault(config.MaxEntries, DefaultMaxEntries)
	return &Cache{
		log:   log,
		max:   maxEntries,
		batch: helpers.IntDefault(config.EvictBatch, DefaultEvictBatch),
		items: make(map[string]image.Image, maxEntries+1),
		order: make([]string, 0, maxEntries+1),
	}
}

func (self *Cache) Get(locator string) (image.Image, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	img, ok := self.items[locator]
	if ok {
		self.stats.Hits++
		metricHits.Inc()
	} else {
		self.stats.Misses++
		metricMisses.Inc()
	}
	return img, ok
}

func (self *Cache) Has(locator string) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	_, ok := self.items[locator]
	return ok
}

// Put inserts or overwrites. Overwrite keeps original insertion position.
func (self *Cache) Put(locator string, img image.Image) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if _, ok := self.items[locator]; ok {
		self.items[locator] = img
		return
	}
	self.items[locator] = img
	self.order = append(self.order, locator)
	if len(self.order) > self.max {
		self.evictLocked()
	}
	metricEntries.Set(float64(len(self.order)))
}

// evictLocked removes oldest batch in one pass, never the entry just inserted.
func (self *Cache) evictLocked() {
	n := self.batch
	if n > len(self.order)-1 {
		n = len(self.order) - 1
	}
	for _, locator := range self.order[:n] {
		delete(self.items, locator)
	}
	rest := copy(self.order, self.order[n:])
	for i := rest; i < len(self.order); i++ {
		self.order[i] = ""
	}
	self.order = self.order[:rest]
	self.stats.Evictions += uint64(n)
	metricEvictions.Add(float64(n))
	self.log.Debugf("imgcache evicted=%d entries=%d", n, rest)
}

func (self *Cache) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.order)
}

// Keys returns locators oldest first.
func (self *Cache) Keys() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	keys := make([]string, len(self.order))
	copy(keys, self.order)
	return keys
}

func (self *Cache) Stats() Stats {
	self.mu.Lock()
	defer self.mu.Unlock()
	s := self.stats
	s.Entries = len(self.order)
	return s
}

func (self *Cache) MaxEntries() int { return self.max }
