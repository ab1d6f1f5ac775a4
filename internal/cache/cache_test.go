package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (r *countingRecorder) ObserveCacheLookup(_ string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func newTestCache(clock Clock, max int) *TTL[string] {
	return New[string](Options{Name: "test", TTL: 30 * time.Second, MaxEntries: max, Clock: clock})
}

func TestTTL_HitWithinTTL(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	c := newTestCache(clock, 10)

	c.Set("k", "v")
	clock.Advance(29 * time.Second)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestTTL_ExpiresAtTTL(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	c := newTestCache(clock, 10)

	c.Set("k", "v")
	clock.Advance(30 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTL_ZeroCapacityAlwaysMisses(t *testing.T) {
	c := newTestCache(NewManualClock(time.Now()), 0)

	c.Set("k", "v")

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTTL_EvictsExpiredWhenFull(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	c := newTestCache(clock, 2)

	c.Set("a", "1")
	c.Set("b", "2")
	clock.Advance(31 * time.Second)
	c.Set("c", "3")

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "3", got)
}

func TestTTL_Purge(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	c := newTestCache(clock, 10)

	c.Set("a", "1")
	clock.Advance(20 * time.Second)
	c.Set("b", "2")
	assert.Zero(t, c.Purge())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestTTL_EvictsSoonestExpiringWhenNothingExpired(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	c := newTestCache(clock, 2)

	c.Set("a", "1")
	clock.Advance(time.Second)
	c.Set("b", "2")
	clock.Advance(time.Second)
	c.Set("c", "3")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestTTL_OverwriteDoesNotEvict(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	c := newTestCache(clock, 1)

	c.Set("a", "1")
	c.Set("a", "2")

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", got)
}

func TestTTL_RecordsLookups(t *testing.T) {
	rec := &countingRecorder{}
	c := New[int](Options{Name: "test", TTL: time.Minute, MaxEntries: 5, Recorder: rec})

	c.Get("missing")
	c.Set("k", 1)
	c.Get("k")
	c.Get("k")

	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	c := New[int](Options{TTL: time.Minute, MaxEntries: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i+j)%80)
				if _, ok := c.Get(key); !ok {
					c.Set(key, j)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
