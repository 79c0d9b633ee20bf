package lock

import (
	"context"
	"testing"
	"time"
)

func TestLocalAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	unlock, err := l.Acquire(ctx, "asset:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	unlock()

	// Re-acquire after release must succeed immediately.
	unlock, err = l.Acquire(ctx, "asset:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	defer unlock()
}

func TestLocalBlocksSecondHolder(t *testing.T) {
	l := NewLocal()

	unlock, err := l.Acquire(context.Background(), "asset:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "asset:1", time.Second); err == nil {
		t.Fatal("second Acquire succeeded while lock held")
	}

	unlock()
}

func TestLocalIndependentKeys(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	u1, err := l.Acquire(ctx, "asset:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire asset:1: %v", err)
	}
	defer u1()

	u2, err := l.Acquire(ctx, "asset:2", time.Second)
	if err != nil {
		t.Fatalf("Acquire asset:2: %v", err)
	}
	defer u2()
}

func TestLocalWaiterWakesOnRelease(t *testing.T) {
	l := NewLocal()

	unlock, err := l.Acquire(context.Background(), "asset:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		u, err := l.Acquire(context.Background(), "asset:1", time.Second)
		if err == nil {
			u()
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter Acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestLocalUnlockIdempotent(t *testing.T) {
	l := NewLocal()

	unlock, err := l.Acquire(context.Background(), "asset:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	unlock()
	unlock() // second call must be a no-op

	if _, err := l.Acquire(context.Background(), "asset:1", time.Second); err != nil {
		t.Fatalf("Acquire after double unlock: %v", err)
	}
}
