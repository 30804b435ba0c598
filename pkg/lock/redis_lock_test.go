package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedisLock(client, "test-lock")
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())
	assert.True(t, mr.Exists("test-lock"))

	// re-entrant for the holder
	acquired, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())
	assert.False(t, mr.Exists("test-lock"))
	require.NoError(t, l.Unlock(ctx))
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	_, client := setupRedis(t)
	first := NewRedisLock(client, "test-lock")
	second := NewRedisLock(client, "test-lock")
	ctx := context.Background()

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, first.Unlock(ctx))

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Unlock(ctx))
}

func TestRedisLock_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	mr, client := setupRedis(t)
	first := NewRedisLock(client, "test-lock")
	second := NewRedisLock(client, "test-lock")
	ctx := context.Background()

	_, err := first.TryLock(ctx)
	require.NoError(t, err)
	mr.FastForward(DefaultTTL + time.Second)

	acquired, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	// first no longer owns the key and must not delete it
	require.NoError(t, first.Unlock(ctx))
	assert.True(t, mr.Exists("test-lock"))

	require.NoError(t, second.Unlock(ctx))
}

func TestRedisLock_NilClient(t *testing.T) {
	l := NewRedisLock(nil, "test-lock")
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())
}

func TestWithLock(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	holder := NewRedisLock(client, RegistrySyncKey)
	contender := NewRedisLock(client, RegistrySyncKey)

	ran := false
	err := WithLock(ctx, holder, func(ctx context.Context) error {
		ran = true
		err := WithLock(ctx, contender, func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrNotAcquired)
		return errors.New("job failed")
	})
	assert.EqualError(t, err, "job failed")
	assert.True(t, ran)
	assert.False(t, holder.IsHeld())

	assert.NoError(t, WithLock(ctx, contender, func(ctx context.Context) error { return nil }))
}
