// SPDX-License-Identifier: MIT

// Package queue hands fixed-size audio frames from the capture callback to
// the analysis goroutine.
//
// FrameQueue is a single-producer single-consumer ring of preallocated
// slots. Thread-safety:
//   - TryPush: capture context only. Never blocks, allocates or locks.
//   - Pop, TryPop: analysis context only.
//   - ReadAvailable, Stats, Close: any goroutine.
//
// Overflow: the incoming frame is dropped and counted; queued frames are
// never overwritten, so surviving frames keep submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"tuner/pkg/bitint"
)

// DefaultSlots is the default capacity in frames.
const DefaultSlots = 8

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("queue: closed")

// Stats is a point-in-time snapshot of the queue counters.
type Stats struct {
	Pushed  uint64
	Dropped uint64
	Popped  uint64
	Depth   int
}

// FrameQueue is a lock-free SPSC frame ring. See the package comment.
type FrameQueue struct {
	frameSize int
	slots     uint64
	mask      uint64
	buf       []float32 // slots*frameSize samples

	head atomic.Uint64 // next slot to pop; written by the consumer only
	tail atomic.Uint64 // next slot to push; written by the producer only

	// wake holds at most one pending signal; the producer never blocks on it.
	wake      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	pushed  atomic.Uint64
	dropped atomic.Uint64
	popped  atomic.Uint64
}

// New allocates a queue of slots frames of frameSize samples each.
// Both values must be powers of two.
func New(frameSize, slots int) (*FrameQueue, error) {
	if !bitint.IsPowerOfTwo(frameSize) {
		return nil, fmt.Errorf("queue: frame size must be a power of 2, got %d", frameSize)
	}
	if !bitint.IsPowerOfTwo(slots) {
		return nil, fmt.Errorf("queue: slot count must be a power of 2, got %d", slots)
	}
	return &FrameQueue{
		frameSize: frameSize,
		slots:     uint64(slots),
		mask:      uint64(slots - 1),
		buf:       make([]float32, frameSize*slots),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// FrameSize returns the number of samples per frame.
func (q *FrameQueue) FrameSize() int { return q.frameSize }

// Capacity returns the number of frames the queue can hold.
func (q *FrameQueue) Capacity() int { return int(q.slots) }

func (q *FrameQueue) slot(i uint64) []float32 {
	off := int(i&q.mask) * q.frameSize
	return q.buf[off : off+q.frameSize : off+q.frameSize]
}

// TryPush copies frame into the next free slot. Short frames are zero
// filled, long ones truncated. It returns false and counts a drop when the
// queue is full or closed.
func (q *FrameQueue) TryPush(frame []float32) bool {
	if q.closed.Load() {
		q.dropped.Add(1)
		return false
	}

	t := q.tail.Load()
	if t-q.head.Load() >= q.slots {
		q.dropped.Add(1)
		return false
	}

	s := q.slot(t)
	n := copy(s, frame)
	clear(s[n:])

	q.tail.Store(t + 1) // publish after the copy
	q.pushed.Add(1)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// ReadAvailable returns the number of complete frames queued.
func (q *FrameQueue) ReadAvailable() int {
	h := q.head.Load()
	t := q.tail.Load()
	if t <= h {
		return 0
	}
	return int(t - h)
}

// TryPop copies the oldest frame into dst without waiting. It reports false
// when the queue is empty. dst should hold FrameSize samples; extra samples
// are left untouched and a short dst receives a prefix.
func (q *FrameQueue) TryPop(dst []float32) bool {
	h := q.head.Load()
	if q.tail.Load() == h {
		return false
	}
	copy(dst, q.slot(h))
	q.head.Store(h + 1) // release the slot after the copy
	q.popped.Add(1)
	return true
}

// Pop waits for the oldest frame and copies it into dst. It returns ctx.Err()
// when ctx is cancelled first, and ErrClosed once the queue is closed and
// empty. Frames queued before Close are still delivered.
func (q *FrameQueue) Pop(ctx context.Context, dst []float32) error {
	for {
		if q.TryPop(dst) {
			return nil
		}
		if q.closed.Load() {
			// A push may have landed between TryPop and the closed check.
			if q.TryPop(dst) {
				return nil
			}
			return ErrClosed
		}

		select {
		case <-q.wake:
		case <-q.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting frames and wakes a waiting consumer. It is safe to
// call more than once and from any goroutine.
func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

// Closed reports whether Close has been called.
func (q *FrameQueue) Closed() bool { return q.closed.Load() }

// Dropped returns the number of frames rejected by TryPush.
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }

// Stats returns a snapshot of the counters.
func (q *FrameQueue) Stats() Stats {
	return Stats{
		Pushed:  q.pushed.Load(),
		Dropped: q.dropped.Load(),
		Popped:  q.popped.Load(),
		Depth:   q.ReadAvailable(),
	}
}
