package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still carries the
// holder's fencing value, so a holder whose lease already lapsed can
// never delete a lock that has since been granted to someone else.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// retryInterval is how often an acquisition attempt is repeated while
// the wait bound has not been exhausted.
const retryInterval = 50 * time.Millisecond

// Redis implements Provider on top of a single Redis instance using
// SET NX PX.  The lease is enforced server-side through the key TTL:
// if the holder crashes, Redis drops the key and the next waiter
// acquires it.
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a Redis-backed lock provider.  The client must be
// non-nil; callers that run without Redis should fall back to Local.
func NewRedis(rdb *redis.Client) *Redis {
	if rdb == nil {
		panic("nil redis client passed to lock.NewRedis")
	}
	return &Redis{rdb: rdb}
}

// WithLock implements Provider.  It polls SET NX until the key is
// acquired or wait elapses, runs fn, and releases the key through the
// compare-and-delete script.  A release attempt after the lease has
// already lapsed is a no-op.
func (r *Redis) WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	value := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := r.rdb.SetNX(ctx, key, value, lease).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	defer func() {
		// Release with a fresh context so a cancelled caller still
		// frees the key instead of leaving it to lapse.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, r.rdb, []string{key}, value).Err()
	}()

	return fn(ctx)
}
