package dataType

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adhoc_rdv/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(clock Clock, retention time.Duration) *SeenCache {
	return NewSeenCache(SeenCacheConfig{Retention: retention, Shards: 8, Clock: clock})
}

func TestSeenCache_MarkSeen(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := newTestCache(clock, time.Minute)

	assert.True(t, c.MarkSeen("a"), "first observation")
	assert.False(t, c.MarkSeen("a"), "second observation")
	assert.False(t, c.MarkSeen("a"), "third observation")
	assert.True(t, c.MarkSeen("b"))
	assert.Equal(t, 2, c.Len())
}

func TestSeenCache_ConcurrentMarkSeen(t *testing.T) {
	c := newTestCache(SystemClock{}, time.Minute)

	const callers = 64
	for round := 0; round < 20; round++ {
		id := fmt.Sprintf("msg-%d", round)
		var firsts atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if c.MarkSeen(id) {
					firsts.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		require.Equal(t, int64(1), firsts.Load(), "round %d: exactly one first observation", round)
	}
}

func TestSeenCache_RetentionWindow(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := newTestCache(clock, time.Minute)

	require.True(t, c.MarkSeen("a"))
	clock.Advance(59 * time.Second)
	assert.True(t, c.Contains("a"))
	assert.False(t, c.MarkSeen("a"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Contains("a"), "expired entries are not reported")
	assert.True(t, c.MarkSeen("a"), "an expired id counts as new again")
}

func TestSeenCache_ContainsHasNoSideEffect(t *testing.T) {
	c := newTestCache(SystemClock{}, time.Minute)
	assert.False(t, c.Contains("x"))
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.MarkSeen("x"))
}

func TestSeenCache_Sweep(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := newTestCache(clock, time.Minute)

	c.MarkSeen("old-1")
	c.MarkSeen("old-2")
	clock.Advance(45 * time.Second)
	c.MarkSeen("new")
	clock.Advance(30 * time.Second)

	removed := c.Sweep(clock.Now())
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("new"))
}

func TestSeenCache_Evict(t *testing.T) {
	c := newTestCache(SystemClock{}, time.Minute)
	c.MarkSeen("a")
	c.Evict("a")
	c.Evict("missing")
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.MarkSeen("a"))
}

func TestSeenCache_SoftLimitSweeps(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := NewSeenCache(SeenCacheConfig{Retention: time.Minute, Shards: 4, SoftLimit: 10, Clock: clock})

	for i := 0; i < 10; i++ {
		c.MarkSeen(fmt.Sprintf("stale-%d", i))
	}
	clock.Advance(2 * time.Minute)
	c.MarkSeen("fresh")

	assert.Equal(t, 1, c.Len(), "stale ids are swept once the soft limit is reached")
}

func TestSeenCache_CapacityEvictsOldest(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := NewSeenCache(SeenCacheConfig{Retention: time.Hour, Shards: 1, Capacity: 3, Clock: clock})

	for _, id := range []string{"a", "b", "c"} {
		c.MarkSeen(id)
		clock.Advance(time.Second)
	}
	c.MarkSeen("d")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains("a"), "oldest id is evicted under capacity pressure")
	assert.True(t, c.Contains("d"))
}

func TestStartSeenCacheGC(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := newTestCache(clock, time.Second)
	c.MarkSeen("a")
	clock.Advance(5 * time.Second)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		StartSeenCacheGC(c, 10*time.Millisecond, stop)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	close(stop)
	testutil.WithTimeout(t, time.Second, func() { <-done })
}

func TestSeenCache_CapacityOrderFollowsRemarks(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	c := NewSeenCache(SeenCacheConfig{Retention: 10 * time.Second, Shards: 1, Capacity: 3, Clock: clock})

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, c.MarkSeen(id))
		clock.Advance(time.Second)
	}
	// a expires and is marked again, so it is now the newest entry
	clock.Advance(8 * time.Second)
	require.True(t, c.MarkSeen("a"))
	assert.Equal(t, 3, c.Len())

	clock.Advance(time.Second)
	require.True(t, c.MarkSeen("d"))
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Contains("a"), "re-marked id moved to the back")
	assert.True(t, c.Contains("d"))

	// b went first, c is next
	require.True(t, c.MarkSeen("e"))
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Contains("a"))
	assert.True(t, c.Contains("d"))
	assert.True(t, c.Contains("e"))
	assert.Equal(t, 0, c.Sweep(clock.Now()), "nothing live is swept")
}

func TestSeenCache_FullShardStaysFast(t *testing.T) {
	c := NewSeenCache(SeenCacheConfig{Retention: time.Hour, Shards: 1, Capacity: 50000})
	for i := 0; i < 50000; i++ {
		c.MarkSeen(fmt.Sprintf("warm-%d", i))
	}

	start := time.Now()
	for i := 0; i < 50000; i++ {
		require.True(t, c.MarkSeen(fmt.Sprintf("new-%d", i)))
	}
	assert.Equal(t, 50000, c.Len())
	assert.False(t, c.Contains("warm-0"))
	assert.True(t, c.Contains("new-49999"))
	// a scan per insert would take minutes here
	assert.Less(t, time.Since(start), 10*time.Second)
}
