// Package queue holds the ordered command lines waiting to be sent to the
// printer, plus the wake signal used by the single consumer.
//
// Critical sections are pure slice operations; no lock is ever held while a
// caller blocks. The wake signal is a one-slot channel, so a signal raised
// while nobody waits is remembered for the next Wait and never lost.
package queue

import (
	"context"
	"sync"
)

// BusyThreshold is the queue length above which the printer is considered
// busy printing: new work is refused and a reconnect reports Active.
const BusyThreshold = 10

// Queue is a mutex-guarded FIFO of raw command lines.
type Queue struct {
	mu    sync.Mutex
	lines []string
	wake  chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// PushBack appends lines to the tail and returns the new length.
func (q *Queue) PushBack(lines ...string) int {
	if len(lines) == 0 {
		return q.Len()
	}
	q.mu.Lock()
	q.lines = append(q.lines, lines...)
	n := len(q.lines)
	q.mu.Unlock()

	q.Wake()
	return n
}

// PushFrontUnless inserts line ahead of everything else unless line is
// already at the head. The check and the insert share one critical section,
// so a concurrent PopFront cannot land between them. depth is the queue
// length before the call. Only the health monitor's poll uses this.
func (q *Queue) PushFrontUnless(line string) (depth int, inserted bool) {
	q.mu.Lock()
	depth = len(q.lines)
	if depth > 0 && q.lines[0] == line {
		q.mu.Unlock()
		return depth, false
	}
	q.lines = append(q.lines, "")
	copy(q.lines[1:], q.lines)
	q.lines[0] = line
	q.mu.Unlock()

	q.Wake()
	return depth, true
}

// PopFront removes and returns the head. ok is false when the queue is empty.
func (q *Queue) PopFront() (line string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.lines) == 0 {
		return "", false
	}
	line = q.lines[0]
	q.lines[0] = ""
	q.lines = q.lines[1:]
	if len(q.lines) == 0 {
		q.lines = nil
	}
	return line, true
}

// Front returns the head without removing it.
func (q *Queue) Front() (line string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.lines) == 0 {
		return "", false
	}
	return q.lines[0], true
}

// Len returns the number of queued lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// Clear drops every queued line.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.lines = nil
	q.mu.Unlock()
}

// Replace clears the queue and appends lines in one critical section, so the
// consumer never observes the intermediate empty state.
func (q *Queue) Replace(lines ...string) int {
	q.mu.Lock()
	q.lines = append([]string(nil), lines...)
	n := len(q.lines)
	q.mu.Unlock()

	q.Wake()
	return n
}

// Snapshot returns a copy of the queued lines.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.lines...)
}

// Wake signals the consumer. Signalling with nobody waiting is a no-op
// beyond arming the next Wait.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until Wake is called or ctx ends. Callers must re-check the
// queue afterwards; a wake carries no payload.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
