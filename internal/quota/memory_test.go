// File: internal/quota/memory_test.go
package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterStore(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1000, 0)
	store := NewMemoryCounterStore()
	store.now = func() time.Time { return at }

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)

	value, err = store.IncrWithTTL(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	value, err = store.IncrWithTTL(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)

	value, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)

	// Counters are independent per key.
	value, err = store.IncrWithTTL(ctx, "other", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestMemoryCounterStoreExpiry(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1000, 0)
	store := NewMemoryCounterStore()
	store.now = func() time.Time { return at }

	_, err := store.IncrWithTTL(ctx, "k", time.Hour)
	require.NoError(t, err)

	// Past the TTL the counter reads as absent and restarts from one.
	at = at.Add(time.Hour + time.Second)

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)

	value, err = store.IncrWithTTL(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestMemoryCounterStoreConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCounterStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrWithTTL(ctx, "k", time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(50), value)
}
