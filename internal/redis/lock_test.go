package redisclient

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, 5*time.Second)
}

func TestWithLockRunsCriticalSection(t *testing.T) {
	mr, locker := newTestLocker(t)

	ran := false
	err := locker.WithLock(context.Background(), "sweep", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:sweep"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Released on return.
	assert.False(t, mr.Exists("lock:sweep"))
}

func TestWithLockContention(t *testing.T) {
	_, locker := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "sweep", func(inner context.Context) error {
		// The section is held; a second acquire of the same name loses.
		second := locker.WithLock(ctx, "sweep", func(context.Context) error {
			t.Fatal("critical section must not run twice")
			return nil
		})
		assert.ErrorIs(t, second, ErrLockNotAcquired)

		// A different name is independent.
		return locker.WithLock(ctx, "payment:abc", func(context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithLockReacquireAfterRelease(t *testing.T) {
	_, locker := newTestLocker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := locker.WithLock(ctx, "sweep", func(context.Context) error { return nil })
		require.NoError(t, err)
	}
}

func TestWithLockDoesNotReleaseForeignToken(t *testing.T) {
	mr, locker := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "sweep", func(context.Context) error {
		// The lock expires mid-section and someone else takes it.
		mr.Del("lock:sweep")
		require.NoError(t, mr.Set("lock:sweep", "other-holder"))
		return nil
	})
	require.NoError(t, err)

	// The deferred release matched tokens and left the new holder alone.
	got, err := mr.Get("lock:sweep")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestWithLockPropagatesSectionError(t *testing.T) {
	mr, locker := newTestLocker(t)

	sentinel := assert.AnError
	err := locker.WithLock(context.Background(), "sweep", func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	// Released even on failure.
	assert.False(t, mr.Exists("lock:sweep"))
}
