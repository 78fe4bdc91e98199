package dataType

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultSeenRetention = 2 * time.Minute
	DefaultSeenShards    = 32

	// minimum spacing between two opportunistic sweeps
	seenSweepGap = time.Second
)

type seenEntry struct {
	id    string
	first int64 // unix nanos
}

// seenShard keeps its ids in first-seen order so the oldest is at the front.
type seenShard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

func (s *seenShard) remove(el *list.Element) {
	delete(s.entries, el.Value.(*seenEntry).id)
	s.order.Remove(el)
}

// SeenCache remembers message ids for a retention window. MarkSeen is an
// atomic check-and-set per id.
type SeenCache struct {
	shards     []*seenShard
	shardCount uint64
	retention  time.Duration
	softLimit  int
	shardCap   int
	size       atomic.Int64
	lastSweep  atomic.Int64
	clock      Clock
}

type SeenCacheConfig struct {
	Retention time.Duration
	Shards    int
	SoftLimit int // sweep before insert once this many ids are held; 0 disables
	Capacity  int // hard bound; 0 means unbounded
	Clock     Clock
}

func NewSeenCache(cfg SeenCacheConfig) *SeenCache {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultSeenRetention
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultSeenShards
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	c := &SeenCache{
		shards:     make([]*seenShard, cfg.Shards),
		shardCount: uint64(cfg.Shards),
		retention:  cfg.Retention,
		softLimit:  cfg.SoftLimit,
		clock:      cfg.Clock,
	}
	if cfg.Capacity > 0 {
		c.shardCap = (cfg.Capacity + cfg.Shards - 1) / cfg.Shards
	}
	for i := range c.shards {
		c.shards[i] = &seenShard{entries: make(map[string]*list.Element), order: list.New()}
	}
	c.lastSweep.Store(cfg.Clock.Now().UnixNano())
	return c
}

func (c *SeenCache) getShard(id string) *seenShard {
	return c.shards[xxhash.Sum64String(id)%c.shardCount]
}

func (c *SeenCache) live(first int64, now time.Time) bool {
	return now.UnixNano()-first < int64(c.retention)
}

// MarkSeen records id and reports whether this is its first observation
// within the retention window. Of any number of concurrent callers with the
// same id exactly one gets true.
func (c *SeenCache) MarkSeen(id string) bool {
	now := c.clock.Now()
	c.maybeSweep(now)

	s := c.getShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, exists := s.entries[id]; exists {
		e := el.Value.(*seenEntry)
		if c.live(e.first, now) {
			return false
		}
		// expired: seen again for the first time
		e.first = now.UnixNano()
		s.order.MoveToBack(el)
		return true
	}
	if c.shardCap > 0 && s.order.Len() >= c.shardCap {
		s.remove(s.order.Front())
		c.size.Add(-1)
	}
	s.entries[id] = s.order.PushBack(&seenEntry{id: id, first: now.UnixNano()})
	c.size.Add(1)
	return true
}

// Contains reports whether id is remembered, without recording it.
func (c *SeenCache) Contains(id string) bool {
	now := c.clock.Now()
	s := c.getShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, exists := s.entries[id]
	return exists && c.live(el.Value.(*seenEntry).first, now)
}

// Evict forgets id.
func (c *SeenCache) Evict(id string) {
	s := c.getShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, exists := s.entries[id]; exists {
		s.remove(el)
		c.size.Add(-1)
	}
}

func (c *SeenCache) Len() int {
	return int(c.size.Load())
}

// Sweep removes every id older than the retention window and returns how many
// were dropped.
func (c *SeenCache) Sweep(now time.Time) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for el := s.order.Front(); el != nil && !c.live(el.Value.(*seenEntry).first, now); el = s.order.Front() {
			s.remove(el)
			removed++
		}
		s.mu.Unlock()
	}
	c.size.Add(int64(-removed))
	c.lastSweep.Store(now.UnixNano())
	return removed
}

func (c *SeenCache) maybeSweep(now time.Time) {
	if c.softLimit <= 0 || c.size.Load() < int64(c.softLimit) {
		return
	}
	last := c.lastSweep.Load()
	if now.UnixNano()-last < int64(seenSweepGap) {
		return
	}
	// one caller sweeps, the rest carry on
	if !c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	c.Sweep(now)
}

func StartSeenCacheGC(cache *SeenCache, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cache.Sweep(cache.clock.Now())
		case <-stopCh:
			return
		}
	}
}
