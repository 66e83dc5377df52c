package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int64
	delay time.Duration
}

func (c *countingEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	atomic.AddInt64(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = []float32{float32(len(text)), 1, 2}
	}
	return out, nil
}

func TestCacheHitAvoidsSecondCall(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCache(inner, 10, time.Hour, nil)

	first, err := cache.EmbedOne(context.Background(), "hola mundo")
	require.NoError(t, err)
	second, err := cache.EmbedOne(context.Background(), "hola mundo")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&inner.calls))
}

func TestCacheNormalisesFingerprint(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCache(inner, 10, time.Hour, nil)

	_, err := cache.EmbedOne(context.Background(), "Hola   Mundo")
	require.NoError(t, err)
	_, err = cache.EmbedOne(context.Background(), "  hola mundo ")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&inner.calls))
	assert.Equal(t, Fingerprint("HOLA MUNDO"), Fingerprint("hola  mundo"))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCache(inner, 2, time.Hour, nil)
	ctx := context.Background()

	_, err := cache.EmbedOne(ctx, "a")
	require.NoError(t, err)
	_, err = cache.EmbedOne(ctx, "b")
	require.NoError(t, err)
	// Touch "a" so "b" becomes the LRU entry.
	_, err = cache.EmbedOne(ctx, "a")
	require.NoError(t, err)
	_, err = cache.EmbedOne(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 2, cache.Len())

	before := atomic.LoadInt64(&inner.calls)
	_, err = cache.EmbedOne(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, before, atomic.LoadInt64(&inner.calls), "a should still be cached")

	_, err = cache.EmbedOne(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, before+1, atomic.LoadInt64(&inner.calls), "b should have been evicted")
}

func TestCacheTTLExpiryIsAMiss(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCache(inner, 10, time.Hour, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.EmbedOne(context.Background(), "caduca")
	require.NoError(t, err)

	cache.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = cache.EmbedOne(context.Background(), "caduca")
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&inner.calls))
}

func TestCacheCoalescesConcurrentMisses(t *testing.T) {
	inner := &countingEmbedder{delay: 20 * time.Millisecond}
	cache := NewCache(inner, 10, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.EmbedOne(context.Background(), "concurrente")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&inner.calls))
}
