package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Lazy loads a value once on first use. Concurrent callers wait on the same
// in-flight load; a failed load is not cached, so the next caller retries.
type Lazy[T any] struct {
	load  func(ctx context.Context) (T, error)
	group singleflight.Group

	mu     sync.RWMutex
	val    T
	loaded bool
}

func NewLazy[T any](load func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{load: load}
}

func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.RLock()
	if l.loaded {
		v := l.val
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("load", func() (any, error) {
		l.mu.RLock()
		if l.loaded {
			v := l.val
			l.mu.RUnlock()
			return v, nil
		}
		l.mu.RUnlock()

		v, err := l.load(ctx)
		if err != nil {
			return v, err
		}
		l.mu.Lock()
		l.val, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Reset drops the cached value.
func (l *Lazy[T]) Reset() {
	l.mu.Lock()
	var zero T
	l.val, l.loaded = zero, false
	l.mu.Unlock()
}
