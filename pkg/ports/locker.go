package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock obtained from a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes mutations of one session across replicas
// that share a SessionStore.
type DistributedLocker interface {
	// Lock acquires the lock for key (a session ID). It waits until the lock
	// is free or ctx is done. The lock expires after ttl even if never released,
	// so a crashed replica cannot hold a session forever.
	// The returned UnlockFunc MUST be called, and only releases the lock if it
	// is still held by this caller.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
