package memcache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrecontrole/sentinela/internal/infrastructure/memcache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type countingObserver struct {
	hits, misses, evicted, expired int
}

func (o *countingObserver) Hit()          { o.hits++ }
func (o *countingObserver) Miss()         { o.misses++ }
func (o *countingObserver) Evicted()      { o.evicted++ }
func (o *countingObserver) Expired(n int) { o.expired += n }

func newCache(t *testing.T, clock *fakeClock, opts ...memcache.Option) *memcache.Cache[string] {
	t.Helper()
	opts = append([]memcache.Option{memcache.WithClock(clock.Now)}, opts...)
	c, err := memcache.New[string](memcache.Config{DefaultTTL: time.Minute, MaxEntries: 10}, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := memcache.New[int](memcache.Config{DefaultTTL: 0, MaxEntries: 10})
	require.Error(t, err)
	_, err = memcache.New[int](memcache.Config{DefaultTTL: time.Second, MaxEntries: 0})
	require.Error(t, err)
}

func TestGet_EntryExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := newCache(t, clock)

	require.NoError(t, c.Set("list:Desvios", "rows", 10*time.Second))

	clock.Advance(9 * time.Second)
	v, ok, err := c.Get("list:Desvios")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rows", v)

	clock.Advance(time.Second)
	_, ok, err = c.Get("list:Desvios")
	require.NoError(t, err)
	assert.False(t, ok, "entry must be absent once now >= expiry")
	assert.Equal(t, 0, c.Stats().Size)
}

func TestSet_ZeroTTLUsesDefault(t *testing.T) {
	clock := newFakeClock()
	c := newCache(t, clock)

	require.NoError(t, c.Set("k", "v", 0))
	clock.Advance(59 * time.Second)
	_, ok, _ := c.Get("k")
	assert.True(t, ok)
	clock.Advance(time.Second)
	_, ok, _ = c.Get("k")
	assert.False(t, ok)
}

func TestSet_NegativeTTL(t *testing.T) {
	c := newCache(t, newFakeClock())
	err := c.Set("k", "v", -time.Second)
	require.ErrorIs(t, err, memcache.ErrInvalidTTL)
	_, ok, _ := c.Get("k")
	assert.False(t, ok)
}

func TestSet_OverwriteReplacesValueAndExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newCache(t, clock)

	require.NoError(t, c.Set("k", "v1", 5*time.Second))
	require.NoError(t, c.Set("k", "v2", 30*time.Second))

	clock.Advance(10 * time.Second)
	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", v)

	// a shorter ttl also replaces the longer one
	require.NoError(t, c.Set("k", "v3", time.Second))
	clock.Advance(time.Second)
	_, ok, _ = c.Get("k")
	assert.False(t, ok)
}

func TestStats_HitRate(t *testing.T) {
	c := newCache(t, newFakeClock())

	s := c.Stats()
	assert.Zero(t, s.HitRate)
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)

	require.NoError(t, c.Set("a", "1", 0))
	for i := 0; i < 3; i++ {
		_, ok, _ := c.Get("a")
		require.True(t, ok)
	}
	_, ok, _ := c.Get("missing")
	require.False(t, ok)

	s = c.Stats()
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 0.75, s.HitRate, 1e-9)
	assert.Equal(t, 1, s.Size)
}

func TestGet_EmptyKeyLeavesCountersUnchanged(t *testing.T) {
	c := newCache(t, newFakeClock())

	_, _, err := c.Get("")
	require.ErrorIs(t, err, memcache.ErrMalformedKey)
	require.ErrorIs(t, c.Set("", "v", 0), memcache.ErrMalformedKey)

	s := c.Stats()
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)
}

func TestInvalidate_Idempotent(t *testing.T) {
	c := newCache(t, newFakeClock())
	require.NoError(t, c.Set("k", "v", 0))

	require.NoError(t, c.Invalidate("k"))
	require.NoError(t, c.Invalidate("k"))
	require.NoError(t, c.Invalidate("never-set"))

	_, ok, _ := c.Get("k")
	assert.False(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	c := newCache(t, newFakeClock())
	require.NoError(t, c.Set("list:Desvios", "a", 0))
	require.NoError(t, c.Set("list:Desvios|limit:10", "b", 0))
	require.NoError(t, c.Set("list:Usuarios", "c", 0))

	assert.Equal(t, 2, c.InvalidatePrefix("list:Desvios"))
	_, ok, _ := c.Get("list:Usuarios")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestClear_KeepsCounters(t *testing.T) {
	c := newCache(t, newFakeClock())
	require.NoError(t, c.Set("k", "v", 0))
	_, _, _ = c.Get("k")

	c.Clear()

	s := c.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Equal(t, int64(1), s.Hits)
}

func TestSet_EvictsLeastRecentlyUsedWhenFull(t *testing.T) {
	obs := &countingObserver{}
	c, err := memcache.New[int](memcache.Config{DefaultTTL: time.Minute, MaxEntries: 2}, memcache.WithObserver(obs))
	require.NoError(t, err)

	require.NoError(t, c.Set("a", 1, 0))
	require.NoError(t, c.Set("b", 2, 0))
	_, _, _ = c.Get("a")
	require.NoError(t, c.Set("c", 3, 0))

	_, ok, _ := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = c.Get("a")
	assert.True(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, 1, obs.evicted)
}

func TestCleanupExpired(t *testing.T) {
	clock := newFakeClock()
	obs := &countingObserver{}
	c := newCache(t, clock, memcache.WithObserver(obs))

	require.NoError(t, c.Set("short", "1", time.Second))
	require.NoError(t, c.Set("long", "2", time.Hour))
	clock.Advance(2 * time.Second)

	s := c.Stats()
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, 1, s.Expired)

	assert.Equal(t, 1, c.CleanupExpired())
	s = c.Stats()
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, 0, s.Expired)
	assert.Equal(t, 1, obs.expired)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	clock := newFakeClock()
	c := newCache(t, clock)
	require.NoError(t, c.Set("k", "v", time.Second))
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Stats().Size == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c, err := memcache.New[int](memcache.Config{DefaultTTL: time.Minute, MaxEntries: 50})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*i)%80)
				_ = c.Set(key, i, 0)
				_, _, _ = c.Get(key)
				if i%17 == 0 {
					_ = c.Invalidate(key)
				}
			}
		}(g)
	}
	wg.Wait()

	s := c.Stats()
	assert.LessOrEqual(t, s.Size, 50)
	assert.Equal(t, int64(8*200), s.Hits+s.Misses)
}
