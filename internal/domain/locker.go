package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a batch lock is already held by
// another node.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired distributed lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker serializes batch execution for a given name across nodes.
// Lock is non-blocking; if the lock is held elsewhere it must return
// ErrLockNotAcquired.
type Locker interface {
	Lock(ctx context.Context, name string) (Lock, error)
}
