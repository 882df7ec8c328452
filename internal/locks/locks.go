// Package locks provides a named, TTL'd mutual-exclusion lock backed by
// Redis SET NX PX. It serializes multi-row critical sections across worker
// processes; row-level database locks alone cannot, because two transactions
// can each acquire their own row locks in different orders.
package locks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be obtained within the
// blocking window. Callers must not proceed unlocked; retry after backoff.
var ErrNotAcquired = errors.New("lock acquisition failed")

// releaseScript deletes the lock only if the caller still owns it, so a
// holder whose TTL already expired cannot delete a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

const pollInterval = 100 * time.Millisecond

type Locker struct {
	rc *redis.Client
}

func NewLocker(rc *redis.Client) *Locker {
	return &Locker{rc: rc}
}

// Lease is a held lock. Release it exactly once; the TTL covers the crash
// case where Release is never reached.
type Lease struct {
	rc    *redis.Client
	key   Key
	token string
}

// Acquire obtains the named lock, polling for up to wait. ttl is the
// auto-release window if the holder crashes. Returns ErrNotAcquired when the
// blocking window elapses without winning the lock.
func (l *Locker) Acquire(ctx context.Context, key Key, ttl, wait time.Duration) (*Lease, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.rc.SetNX(ctx, key.String(), token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{rc: l.rc, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release frees the lock if this lease still owns it. Releasing an expired
// or stolen lease is a no-op, never an error.
func (le *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, le.rc, []string{le.key.String()}, le.token).Err()
}
