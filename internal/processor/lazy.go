package processor

import "sync"

// Lazy initializes a shared resource on first use. Concurrent callers block
// while the first one runs init; a failed init is retried on the next Get.
type Lazy[T any] struct {
	mu    sync.Mutex
	init  func() (T, error)
	value T
	ready bool
}

// NewLazy wraps init.
func NewLazy[T any](init func() (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Get returns the resource, initializing it if needed.
func (l *Lazy[T]) Get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.value, nil
	}
	value, err := l.init()
	if err != nil {
		var zero T
		return zero, err
	}
	l.value = value
	l.ready = true
	return value, nil
}
