package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/redis"
)

const (
	lockKeyPrefix    = "lock:"
	retryDelay       = 50 * time.Millisecond
	minRenewInterval = time.Second
)

// RedsyncManager implements Locker with the Redlock algorithm so that bot
// instances sharing one Redis serialise on the same keys. Held locks are
// renewed at a third of their expiration until released.
type RedsyncManager struct {
	redsync    *redsync.Redsync
	logger     logging.Logger
	localLocks map[*RedsyncLock]struct{}
	mutex      sync.Mutex
}

// RedsyncLock wraps a redsync.Mutex with automatic renewal
type RedsyncLock struct {
	mutex      *redsync.Mutex
	key        string
	expiration time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	manager    *RedsyncManager
	once       sync.Once
}

// NewRedsyncManager creates a lock manager backed by the given Redis client.
func NewRedsyncManager(redisClient *redis.Client, logger logging.Logger) (*RedsyncManager, error) {
	if redisClient == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	pool := goredis.NewPool(redisClient.GetGoRedisClient())

	return &RedsyncManager{
		redsync:    redsync.New(pool),
		logger:     logger.WithFields(logging.String("component", "redsync_locks")),
		localLocks: make(map[*RedsyncLock]struct{}),
	}, nil
}

// AcquireLock retries until the lock is obtained or ctx is done. Without a
// deadline on ctx it gives up after roughly one expiration period, by which
// time a crashed holder's lock has lapsed.
func (rm *RedsyncManager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	tries := int(expiration/retryDelay) + 1
	mutex := rm.redsync.NewMutex(lockKeyPrefix+key,
		redsync.WithExpiry(expiration),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(retryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			timeout := errors.TimeoutError("acquire lock " + key)
			timeout.Cause = ctx.Err()
			return nil, timeout
		}
		return nil, errors.InternalError(fmt.Sprintf("failed to acquire distributed lock %s", key), err)
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &RedsyncLock{
		mutex:      mutex,
		key:        key,
		expiration: expiration,
		ctx:        lockCtx,
		cancel:     cancel,
		manager:    rm,
	}

	rm.mutex.Lock()
	rm.localLocks[lock] = struct{}{}
	rm.mutex.Unlock()

	go rm.renewLock(lock)

	return lock, nil
}

// renewLock extends the lock until it is released or an extension fails
func (rm *RedsyncManager) renewLock(lock *RedsyncLock) {
	renewInterval := lock.expiration / 3
	if renewInterval < minRenewInterval {
		renewInterval = minRenewInterval
	}

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				rm.logger.Warn("Lost distributed lock",
					logging.String("key", lock.key),
					logging.Err(err))
				lock.release()
				return
			}
		}
	}
}

// Close releases every lock still held through this manager
func (rm *RedsyncManager) Close() error {
	rm.mutex.Lock()
	held := make([]*RedsyncLock, 0, len(rm.localLocks))
	for lock := range rm.localLocks {
		held = append(held, lock)
	}
	rm.mutex.Unlock()

	for _, lock := range held {
		lock.release()
	}
	return nil
}

func (rl *RedsyncLock) Key() string {
	return rl.key
}

// Release stops renewal and deletes the key in Redis if this lock still owns it.
func (rl *RedsyncLock) Release(ctx context.Context) error {
	var err error
	rl.once.Do(func() {
		err = rl.unlock(ctx)
	})
	return err
}

func (rl *RedsyncLock) release() {
	rl.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rl.unlock(ctx); err != nil {
			rl.manager.logger.Debug("Failed to release distributed lock",
				logging.String("key", rl.key),
				logging.Err(err))
		}
	})
}

func (rl *RedsyncLock) unlock(ctx context.Context) error {
	rl.cancel()

	rl.manager.mutex.Lock()
	delete(rl.manager.localLocks, rl)
	rl.manager.mutex.Unlock()

	if ok, err := rl.mutex.UnlockContext(ctx); err != nil || !ok {
		return errors.InternalError(fmt.Sprintf("failed to release distributed lock %s", rl.key), err)
	}
	return nil
}

func (rl *RedsyncLock) IsHeld() bool {
	select {
	case <-rl.ctx.Done():
		return false
	default:
		return true
	}
}
