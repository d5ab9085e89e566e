// SPDX-License-Identifier: MIT
package utils

import (
	"sync"
	"time"
)

// Recorder collects values from any goroutine for later inspection.
// The zero value is ready to use.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	notify chan struct{}
}

// Add appends v and wakes any WaitFor caller.
func (r *Recorder[T]) Add(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	ch := r.notify
	r.notify = nil
	r.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Values returns a copy of everything recorded so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Len is the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Reset drops all recorded values.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.values = nil
	r.mu.Unlock()
}

// WaitFor blocks until at least n values are recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder[T]) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		if len(r.values) >= n {
			r.mu.Unlock()
			return true
		}
		if r.notify == nil {
			r.notify = make(chan struct{})
		}
		ch := r.notify
		r.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return r.Len() >= n
		}
	}
}
