// Package results holds the test-results rendezvous between the HTTP handler
// that receives a run's output and the caller waiting for it.
package results

import (
	"context"
	"sync"
)

// Payload is the decoded JSON object posted by a test client.
type Payload map[string]any

// Future is a single-assignment container. The first Resolve wins; readers
// block until then and afterwards always observe the same value.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value Payload
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve stores p and wakes all waiters. It reports whether this call
// resolved the future; later calls are no-ops and return false.
func (f *Future) Resolve(p Payload) bool {
	resolved := false
	f.once.Do(func() {
		f.value = p
		close(f.done)
		resolved = true
	})
	return resolved
}

// Wait blocks until the future is resolved or ctx ends.
func (f *Future) Wait(ctx context.Context) (Payload, error) {
	select {
	case <-f.done:
		return f.value, nil
	default:
	}
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether Resolve has been called.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Value returns the resolved payload without blocking.
func (f *Future) Value() (Payload, bool) {
	if !f.Resolved() {
		return nil, false
	}
	return f.value, true
}
