package state

import (
	"context"
	"sync"
)

// Locker serializes the alert engine's check-then-create per
// (system, parameter) key. Unlock must be called with the value returned by
// Lock.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlocker, error)
	Close() error
}

// Unlocker releases a held key lock.
type Unlocker interface {
	Unlock()
}

// keyed is the in-process Locker: one mutex per key, lazily created and
// reference counted so idle keys do not accumulate.
type keyed struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	owner *keyed
	key   string
	refs  int
	mu    sync.Mutex
}

// NewKeyedLocker returns a Locker scoped to this process. Suitable when a
// single node runs ingestion; multi-process deployments should use the
// Redis locker or rely on the store's uniqueness constraint.
func NewKeyedLocker() Locker {
	return &keyed{locks: make(map[string]*keyLock)}
}

func (k *keyed) Lock(_ context.Context, key string) (Unlocker, error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{owner: k, key: key}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return l, nil
}

func (l *keyLock) Unlock() {
	l.mu.Unlock()
	l.owner.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(l.owner.locks, l.key)
	}
	l.owner.mu.Unlock()
}

func (k *keyed) Close() error { return nil }
