package dataType

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type secondSlot struct {
	second int64
	count  int64
}

// slotRing keeps one counter per second over the last len(slots) seconds.
type slotRing struct {
	slots    []secondSlot
	lastSeen int64
}

func (r *slotRing) add(sec, n int64) {
	s := &r.slots[sec%int64(len(r.slots))]
	if s.second != sec {
		s.second = sec
		s.count = 0
	}
	s.count += n
	r.lastSeen = sec
}

func (r *slotRing) sum(window, now int64) int64 {
	if window > int64(len(r.slots)) {
		window = int64(len(r.slots))
	}
	var total int64
	for sec := now - window + 1; sec <= now; sec++ {
		s := r.slots[sec%int64(len(r.slots))]
		if s.second == sec {
			total += s.count
		}
	}
	return total
}

type counterShard struct {
	mu    sync.Mutex
	rings map[string]*slotRing
}

// WindowCounter counts events per key over sliding windows of whole seconds.
type WindowCounter struct {
	shards     []*counterShard
	shardCount uint64
	horizon    int64
	clock      Clock
}

// NewWindowCounter keeps horizon seconds of history per key.
func NewWindowCounter(shards int, horizon time.Duration, clock Clock) *WindowCounter {
	if shards <= 0 {
		shards = 16
	}
	secs := int64(horizon / time.Second)
	if secs < 1 {
		secs = 1
	}
	if clock == nil {
		clock = SystemClock{}
	}
	wc := &WindowCounter{
		shards:     make([]*counterShard, shards),
		shardCount: uint64(shards),
		horizon:    secs,
		clock:      clock,
	}
	for i := range wc.shards {
		wc.shards[i] = &counterShard{rings: make(map[string]*slotRing)}
	}
	return wc
}

func (wc *WindowCounter) shardFor(key string) *counterShard {
	return wc.shards[xxhash.Sum64String(key)%wc.shardCount]
}

// Add records n events for key and returns the counts over each of the given
// windows, including this addition.
func (wc *WindowCounter) Add(key string, n int64, windows ...time.Duration) []int64 {
	now := wc.clock.Now().Unix()
	s := wc.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[key]
	if !ok {
		r = &slotRing{slots: make([]secondSlot, wc.horizon)}
		s.rings[key] = r
	}
	r.add(now, n)
	out := make([]int64, len(windows))
	for i, w := range windows {
		out[i] = r.sum(int64(w/time.Second), now)
	}
	return out
}

func (wc *WindowCounter) Query(key string, window time.Duration) int64 {
	now := wc.clock.Now().Unix()
	s := wc.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rings[key]; ok {
		return r.sum(int64(window/time.Second), now)
	}
	return 0
}

// GC drops keys idle for longer than the horizon.
func (wc *WindowCounter) GC() {
	threshold := wc.clock.Now().Unix() - wc.horizon
	for _, s := range wc.shards {
		s.mu.Lock()
		for key, r := range s.rings {
			if r.lastSeen < threshold {
				delete(s.rings, key)
			}
		}
		s.mu.Unlock()
	}
}

func StartCounterGC(counter *WindowCounter, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			counter.GC()
		case <-stopCh:
			return
		}
	}
}
