package locks

import (
	"context"
	"sync"
	"time"

	"feedback-bot/internal/common/errors"
)

// LocalManager is an in-process Locker. Waiters queue on a per-key channel
// so acquisition honours context cancellation.
type LocalManager struct {
	mutex sync.Mutex
	keys  map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

// LocalLock is a lock acquired from a LocalManager
type LocalLock struct {
	key     string
	manager *LocalManager
	once    sync.Once
	mutex   sync.Mutex
	held    bool
}

func NewLocalManager() *LocalManager {
	return &LocalManager{keys: make(map[string]*keyLock)}
}

// AcquireLock waits for key to be free. The expiration is ignored since an
// in-process holder cannot outlive the process.
func (m *LocalManager) AcquireLock(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	m.mutex.Lock()
	entry, ok := m.keys[key]
	if !ok {
		entry = &keyLock{slot: make(chan struct{}, 1)}
		m.keys[key] = entry
	}
	entry.refs++
	m.mutex.Unlock()

	select {
	case entry.slot <- struct{}{}:
		return &LocalLock{key: key, manager: m, held: true}, nil
	case <-ctx.Done():
		m.unref(key)
		err := errors.TimeoutError("acquire lock " + key)
		err.Cause = ctx.Err()
		return nil, err
	}
}

func (m *LocalManager) unref(key string) *keyLock {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry := m.keys[key]
	entry.refs--
	if entry.refs == 0 {
		delete(m.keys, key)
	}
	return entry
}

// Close is a no-op; outstanding locks stay valid until released
func (m *LocalManager) Close() error {
	return nil
}

// waiting returns the number of holders and waiters for key
func (m *LocalManager) waiting(key string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if entry, ok := m.keys[key]; ok {
		return entry.refs
	}
	return 0
}

func (l *LocalLock) Key() string {
	return l.key
}

func (l *LocalLock) Release(_ context.Context) error {
	l.once.Do(func() {
		l.mutex.Lock()
		l.held = false
		l.mutex.Unlock()

		entry := l.manager.unref(l.key)
		<-entry.slot
	})
	return nil
}

func (l *LocalLock) IsHeld() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.held
}
