package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageTracker_Record(t *testing.T) {
	tracker := NewUsageTracker(nil, nil)

	record := tracker.Record("gpt-4o-mini", "generation", 1_000_000, 500_000)
	assert.InDelta(t, 0.150+0.300, record.CostUSD, 1e-9)

	stats := tracker.Stats()
	assert.Equal(t, 1, stats.Requests)
	assert.Equal(t, 1_000_000, stats.InputTokens)
	assert.Equal(t, 500_000, stats.OutputTokens)
	assert.InDelta(t, 0.450, stats.CostUSD, 1e-9)
	assert.InDelta(t, 0.450, stats.CostByModel["gpt-4o-mini"], 1e-9)
}

func TestUsageTracker_UnknownModelFallback(t *testing.T) {
	tracker := NewUsageTracker(nil, nil)

	record := tracker.Record("some-new-model", "generation", 1_000_000, 0)
	// Unknown models price as gpt-4o-mini, not zero.
	assert.InDelta(t, 0.150, record.CostUSD, 1e-9)
}

func TestUsageTracker_EmbeddingModel(t *testing.T) {
	tracker := NewUsageTracker(nil, nil)

	record := tracker.Record("text-embedding-3-small", "embedding", 2_000_000, 0)
	assert.InDelta(t, 0.040, record.CostUSD, 1e-9)
}

func TestUsageTracker_ConcurrentAccumulation(t *testing.T) {
	tracker := NewUsageTracker(nil, nil)

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				tracker.Record("gpt-4o-mini", "generation", 100, 50)
				tracker.CacheHit()
				tracker.CacheMiss()
			}
		}()
	}
	wg.Wait()

	stats := tracker.Stats()
	assert.Equal(t, goroutines*perGoroutine, stats.Requests)
	assert.Equal(t, goroutines*perGoroutine*100, stats.InputTokens)
	assert.Equal(t, goroutines*perGoroutine*50, stats.OutputTokens)
	assert.Equal(t, goroutines*perGoroutine, stats.CacheHits)
	assert.Equal(t, goroutines*perGoroutine, stats.CacheMisses)
	assert.InDelta(t, 0.5, stats.CacheHitRate(), 1e-9)
	assert.Len(t, tracker.Records(), goroutines*perGoroutine)
}

func TestUsageTracker_WithMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	tracker := NewUsageTracker(nil, metrics)

	tracker.Record("gpt-4o", "generation", 100, 200)
	tracker.CacheHit()
	tracker.CacheMiss()

	stats := tracker.Stats()
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 1, stats.CacheMisses)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("1234"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}

func TestCacheHitRate_NoLookups(t *testing.T) {
	assert.Zero(t, SessionStats{}.CacheHitRate())
}

func TestResponseCache_PutGet(t *testing.T) {
	cache := NewResponseCache[string](10, time.Minute)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Put("k", "v")
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Equal(t, 1, cache.Len())

	cache.Purge()
	assert.Zero(t, cache.Len())
}

func TestResponseCache_TTLExpiry(t *testing.T) {
	cache := NewResponseCache[int](10, 20*time.Millisecond)

	cache.Put("k", 42)
	_, ok := cache.Get("k")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestResponseCache_LRUEviction(t *testing.T) {
	cache := NewResponseCache[int](2, time.Minute)

	cache.Put("a", 1)
	cache.Put("b", 2)

	// Touching "a" makes "b" the least recently used entry, so it is the
	// victim when "c" arrives, even though "a" was inserted first.
	_, ok := cache.Get("a")
	require.True(t, ok)
	cache.Put("c", 3)

	_, ok = cache.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted at capacity")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
}

func TestCacheKey(t *testing.T) {
	fp := CorpusFingerprint([]string{"doc_a", "doc_b"})

	t.Run("whitespace and case normalized", func(t *testing.T) {
		assert.Equal(t,
			CacheKey("What  Are the FEES?", fp),
			CacheKey("what are the fees?", fp),
		)
	})

	t.Run("different query different key", func(t *testing.T) {
		assert.NotEqual(t, CacheKey("query one", fp), CacheKey("query two", fp))
	})

	t.Run("fingerprint change invalidates", func(t *testing.T) {
		other := CorpusFingerprint([]string{"doc_a", "doc_b", "doc_c"})
		assert.NotEqual(t, CacheKey("same query", fp), CacheKey("same query", other))
	})
}

func TestCorpusFingerprint_OrderIndependent(t *testing.T) {
	a := CorpusFingerprint([]string{"x", "y", "z"})
	b := CorpusFingerprint([]string{"z", "x", "y"})
	assert.Equal(t, a, b)

	c := CorpusFingerprint([]string{"x", "y"})
	assert.NotEqual(t, a, c)
}
