// Package locks serialises work on a shared key, such as the report of one
// feedback card. Two implementations are provided: LocalManager for a
// single process and RedsyncManager, which uses the Redlock algorithm from
// go-redsync to coordinate several instances through Redis.
//
// Example usage:
//
//	lock, err := locker.AcquireLock(ctx, "report:"+cardID, 30*time.Second)
//	if err != nil {
//		return err
//	}
//	defer lock.Release(context.Background())
package locks

import (
	"context"
	"time"
)

// Lock is a held lock. Release must be called exactly once.
type Lock interface {
	// Key returns the unique identifier for this lock.
	Key() string

	// Release gives the lock up. The lock should not be used afterwards.
	Release(ctx context.Context) error

	// IsHeld reports local state and does not query any backend.
	IsHeld() bool
}

// Locker hands out exclusive locks by key. AcquireLock blocks until the lock
// is free or ctx is done. The expiration bounds how long a crashed holder can
// keep the key; implementations that cannot outlive their holder may ignore it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error)
	Close() error
}
