package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/market-shopper/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerialises(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		_ = locker.WithLock(ctx, "submit:s1", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		_ = locker.WithLock(ctx, "submit:s1", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTryLockIsExclusive(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.TryLock(ctx, "submit:s1", time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("submit:s1"))

	_, err = locker.TryLock(ctx, "submit:s1", time.Minute)
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	lease.Release(ctx)
	lease.Release(ctx)
	require.False(t, mr.Exists("submit:s1"))

	again, err := locker.TryLock(ctx, "submit:s1", time.Minute)
	require.NoError(t, err)
	again.Release(ctx)
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.TryLock(ctx, "submit:s1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := locker.TryLock(ctx, "submit:s1", time.Minute)
	require.NoError(t, err)

	lease.Release(ctx)
	require.True(t, mr.Exists("submit:s1"))
	other.Release(ctx)
}
