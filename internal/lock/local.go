// Package lock provides an in-process keyed lock manager for single-node
// deployments; distributed deployments use the redis lock instead.
package lock

import (
	"context"
	"sync"
	"time"
)

// Local serializes operations per key within one process. Acquire blocks
// until the key is free or the context is done; the ttl is ignored because a
// crashed in-process holder takes the whole process with it.
type Local struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

// NewLocal creates an empty lock manager.
func NewLocal() *Local {
	return &Local{keys: make(map[string]chan struct{})}
}

// Acquire takes the lock for key, waiting if another holder has it. The
// returned unlock must be called exactly once.
func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	for {
		l.mu.Lock()
		ch, held := l.keys[key]
		if !held {
			done := make(chan struct{})
			l.keys[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.keys, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
