package lock

import (
	"context"
	"sync"
	"time"
)

// Local implements Provider inside a single process.  It exists for
// tests and for single-node deployments where Redis is unavailable;
// the semantics mirror the Redis provider, including forced release
// when the lease lapses.
type Local struct {
	mu   sync.Mutex
	held map[string]*localHold
}

type localHold struct {
	released chan struct{} // closed exactly once when the hold ends
	once     sync.Once
}

func (h *localHold) release() {
	h.once.Do(func() { close(h.released) })
}

// NewLocal returns an in-process lock provider.
func NewLocal() *Local {
	return &Local{held: make(map[string]*localHold)}
}

// WithLock implements Provider.
func (l *Local) WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	hold, err := l.acquire(ctx, key, wait)
	if err != nil {
		return err
	}
	// Forced release when the lease lapses, mirroring the Redis TTL.
	leaseTimer := time.AfterFunc(lease, func() { l.release(key, hold) })
	defer func() {
		leaseTimer.Stop()
		l.release(key, hold)
	}()
	return fn(ctx)
}

func (l *Local) acquire(ctx context.Context, key string, wait time.Duration) (*localHold, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		l.mu.Lock()
		cur, ok := l.held[key]
		if !ok {
			hold := &localHold{released: make(chan struct{})}
			l.held[key] = hold
			l.mu.Unlock()
			return hold, nil
		}
		l.mu.Unlock()

		select {
		case <-cur.released:
			// Holder is gone; race the other waiters for the key.
		case <-deadline.C:
			return nil, ErrNotAcquired
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// release drops the hold if it is still the current one for the key.
// Both the deferred release and the lease timer call this; whichever
// runs second finds the map entry replaced or removed and does nothing.
func (l *Local) release(key string, hold *localHold) {
	l.mu.Lock()
	if l.held[key] == hold {
		delete(l.held, key)
	}
	l.mu.Unlock()
	hold.release()
}
