package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Answer  string
	Sources []string
	Cached  bool
}

func cloneResponse(r response) response {
	r.Sources = append([]string(nil), r.Sources...)
	return r
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestGetSet(t *testing.T) {
	c := New[response](10, cloneResponse)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("q", response{Answer: "a", Sources: []string{"s1"}})
	got, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, "a", got.Answer)
	assert.Equal(t, []string{"s1"}, got.Sources)
}

func TestKeysAreExact(t *testing.T) {
	c := New[response](10, cloneResponse)
	c.Set("Leave policy", response{Answer: "a"})

	_, ok := c.Get("leave policy")
	assert.False(t, ok, "keys are case sensitive")
	_, ok = c.Get("Leave policy ")
	assert.False(t, ok, "keys are not trimmed by the cache")
}

func TestGetReturnsCopy(t *testing.T) {
	c := New[response](10, cloneResponse)
	orig := response{Answer: "a", Sources: []string{"s1"}}
	c.Set("q", orig)

	// Mutating the inserted value must not affect the cache.
	orig.Sources[0] = "changed"

	got, _ := c.Get("q")
	got.Cached = true
	got.Sources[0] = "mutated"

	again, _ := c.Get("q")
	assert.False(t, again.Cached)
	assert.Equal(t, []string{"s1"}, again.Sources)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[response](2, cloneResponse)
	c.Set("a", response{Answer: "1"})
	c.Set("b", response{Answer: "2"})

	// Touch a so b becomes LRU.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", response{Answer: "3"})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestMissDoesNotChangeOrder(t *testing.T) {
	c := New[response](2, cloneResponse)
	c.Set("a", response{})
	c.Set("b", response{})
	_, _ = c.Get("zzz")
	c.Set("c", response{})

	_, ok := c.Get("a")
	assert.False(t, ok, "a was LRU and should be evicted")
}

func TestOverwriteKeepsSize(t *testing.T) {
	c := New[response](2, cloneResponse)
	c.Set("a", response{Answer: "1"})
	c.Set("a", response{Answer: "2"})
	assert.Equal(t, 1, c.Len())

	got, _ := c.Get("a")
	assert.Equal(t, "2", got.Answer)
}

func TestDefaultCapacity(t *testing.T) {
	c := New[response](0, nil)
	assert.Equal(t, DefaultCapacity, c.Stats().Capacity)
}

func TestDegradedTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New[response](10, cloneResponse, WithDegradedTTL(time.Minute), WithClock(clock.now))

	c.SetDegraded("q", response{Answer: "(LLM call failed) timeout"})
	c.Set("ok", response{Answer: "fine"})

	clock.advance(59 * time.Second)
	_, ok := c.Get("q")
	assert.True(t, ok)

	clock.advance(time.Second)
	_, ok = c.Get("q")
	assert.False(t, ok, "degraded entry should expire")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().Expired)

	clock.advance(time.Hour)
	_, ok = c.Get("ok")
	assert.True(t, ok, "normal entries never expire")
}

func TestDegradedZeroTTLNotStored(t *testing.T) {
	c := New[response](10, cloneResponse, WithDegradedTTL(0))
	c.Set("q", response{Answer: "old"})
	c.SetDegraded("q", response{Answer: "(LLM call failed) x"})

	_, ok := c.Get("q")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestDegradedNegativeTTLBehavesNormally(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New[response](10, cloneResponse, WithDegradedTTL(-1), WithClock(clock.now))
	c.SetDegraded("q", response{Answer: "degraded"})

	clock.advance(24 * time.Hour)
	got, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, "degraded", got.Answer)
}

func TestNormalSetReplacesDegraded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New[response](10, cloneResponse, WithDegradedTTL(time.Second), WithClock(clock.now))
	c.SetDegraded("q", response{Answer: "degraded"})
	c.Set("q", response{Answer: "good"})

	clock.advance(time.Minute)
	got, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, "good", got.Answer)
}

func TestPurgeAndStats(t *testing.T) {
	c := New[response](10, nil)
	c.Set("a", response{})
	_, _ = c.Get("a")
	_, _ = c.Get("b")
	c.Purge()

	s := c.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[response](50, cloneResponse)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("q%d", (g*200+i)%80)
				c.Set(key, response{Answer: key, Sources: []string{key}})
				if got, ok := c.Get(key); ok && (got.Answer != key || len(got.Sources) != 1) {
					t.Errorf("corrupt entry for %s: %+v", key, got)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
