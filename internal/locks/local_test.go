package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedback-bot/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalManager_AcquireRelease(t *testing.T) {
	manager := NewLocalManager()
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "report:c1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "report:c1", lock.Key())
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Release(ctx))
	assert.False(t, lock.IsHeld())
	assert.Equal(t, 0, manager.waiting("report:c1"))

	// releasing twice is harmless
	require.NoError(t, lock.Release(ctx))
}

func TestLocalManager_Contention(t *testing.T) {
	manager := NewLocalManager()
	ctx := context.Background()

	held, err := manager.AcquireLock(ctx, "report:c1", time.Second)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = manager.AcquireLock(shortCtx, "report:c1", time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other keys are independent
	other, err := manager.AcquireLock(ctx, "report:c2", time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	acquired := make(chan Lock)
	go func() {
		lock, err := manager.AcquireLock(ctx, "report:c1", time.Second)
		if err == nil {
			acquired <- lock
		}
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, held.Release(ctx))
	select {
	case lock := <-acquired:
		require.NoError(t, lock.Release(ctx))
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	assert.Equal(t, 0, manager.waiting("report:c1"))
}

func TestLocalManager_MutualExclusion(t *testing.T) {
	manager := NewLocalManager()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := manager.AcquireLock(ctx, "shared", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, lock.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, manager.waiting("shared"))
}

func TestNewLocker_WithoutRedis(t *testing.T) {
	locker, err := NewLocker(nil, nil)
	require.NoError(t, err)
	_, ok := locker.(*LocalManager)
	assert.True(t, ok)
}
