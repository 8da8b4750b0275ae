package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock stays held past the wait budget.
var ErrLockNotAcquired = errors.New("session lock not acquired")

const (
	lockTTL       = 5 * time.Second
	lockWait      = 2 * time.Second
	lockRetryStep = 25 * time.Millisecond
)

// SessionLocker serializes RSVP mutations per session across processes with a
// plain SET NX PX advisory lock. The lock token guards against releasing a
// lock that expired and was re-acquired by another holder.
type SessionLocker struct {
	rdb *redis.Client
}

func NewSessionLocker(rdb *redis.Client) *SessionLocker {
	return &SessionLocker{rdb: rdb}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Acquire blocks up to the wait budget for the per-session lock and returns a
// release func. Release is safe to call after the TTL has expired.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	key := "lock:session:" + sessionID.String()
	token := uuid.NewString()
	deadline := time.Now().Add(lockWait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryStep):
		}
	}
}
