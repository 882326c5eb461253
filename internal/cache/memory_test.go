package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "entry expires after its TTL")
}

func TestMemoryCacheTryLock(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock", "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.TryLock(ctx, "lock", "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lock cannot be re-acquired")

	// a non-owner unlock is a no-op.
	require.NoError(t, c.Unlock(ctx, "lock", "owner-2"))
	ok, err = c.TryLock(ctx, "lock", "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "lock", "owner-1"))
	ok, err = c.TryLock(ctx, "lock", "owner-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheLockExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	ok, err := c.TryLock(ctx, "lock", "crashed-owner", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// after the TTL lapses another owner can take the lock.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	ok, err = c.TryLock(ctx, "lock", "new-owner", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
