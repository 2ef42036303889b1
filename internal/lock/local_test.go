package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Two concurrent WithLock calls on the same key must never run their
// bodies at the same time.
func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "seat:1", 2*time.Second, time.Second, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) != 1 {
					t.Error("two lock bodies ran concurrently")
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()
}

// Different keys do not contend.
func TestLocalDistinctKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, "seat:1", time.Second, time.Second, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	done := make(chan error, 1)
	go func() {
		done <- l.WithLock(ctx, "seat:2", 100*time.Millisecond, time.Second, func(ctx context.Context) error {
			return nil
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("lock on free key: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

// A held lock times out waiters with ErrNotAcquired and does not run
// their body.
func TestLocalWaitTimeout(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, "user:7", time.Second, time.Second, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ran := false
	err := l.WithLock(ctx, "user:7", 30*time.Millisecond, time.Second, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if ran {
		t.Fatal("body ran despite acquisition timeout")
	}
}

// A crashed (stalled) holder loses the key once the lease lapses.
func TestLocalLeaseExpiry(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, "concert:3", time.Second, 30*time.Millisecond, func(ctx context.Context) error {
			close(started)
			<-release // stalls well past its lease
			return nil
		})
	}()
	<-started
	defer close(release)

	err := l.WithLock(ctx, "concert:3", 500*time.Millisecond, time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("acquisition after lease expiry: %v", err)
	}
}

// The error of the body propagates and the lock is released on that
// exit path as well.
func TestLocalReleaseOnError(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	boom := errors.New("boom")
	if err := l.WithLock(ctx, "k", time.Second, time.Second, func(ctx context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected body error, got %v", err)
	}
	if err := l.WithLock(ctx, "k", 50*time.Millisecond, time.Second, func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("lock not released after error exit: %v", err)
	}
}
