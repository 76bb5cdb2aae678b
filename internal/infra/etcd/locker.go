package etcd

import (
	"context"
	"fmt"
	"time"

	"batch-disburser/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// LockPrefix is the etcd root path for batch locks.
	LockPrefix = "/disburse/locks/"
	// LockSessionTTL is the lock session TTL in seconds; an expired
	// session releases the lock automatically.
	LockSessionTTL = 10
)

type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	name    string
}

// Unlock releases the lock and closes its session.
func (l *etcdLock) Unlock(ctx context.Context) error {
	defer func() {
		if l.session != nil {
			_ = l.session.Close()
		}
	}()

	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.name, err)
	}
	return nil
}

type etcdLocker struct {
	client *clientv3.Client
}

// NewLocker creates a distributed lock provider used to keep two nodes
// from running the same named batch concurrently.
func NewLocker(client *clientv3.Client) domain.Locker {
	return &etcdLocker{client: client}
}

// Lock makes a non-blocking attempt to acquire the named lock.
func (l *etcdLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	// One session per attempt; if it expires the lock is released.
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(LockSessionTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session for lock %s: %w", name, err)
	}

	mutex := concurrency.NewMutex(session, LockPrefix+name)

	tryCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	if err := mutex.TryLock(tryCtx); err != nil {
		_ = session.Close()
		if err == concurrency.ErrLocked || err == context.DeadlineExceeded {
			return nil, domain.ErrLockNotAcquired
		}
		return nil, fmt.Errorf("failed to try acquiring etcd lock %s: %w", name, err)
	}

	return &etcdLock{
		mutex:   mutex,
		session: session,
		name:    name,
	}, nil
}
