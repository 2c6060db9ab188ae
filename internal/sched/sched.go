// Package sched provides the timer scheduling strategies behind the
// script-visible setTimeout/setInterval functions. The bridge defaults to
// Immediate, which gives timers synchronous-immediate semantics; Queue
// defers callbacks to the engine's drain loop instead, preserving delay
// ordering without wall-clock waiting.
package sched

import (
	"sync"
	"time"
)

// Immediate runs every timer callback inline at registration time and
// ignores the requested delay. clearTimeout on an already-fired handle is
// a no-op, which is exactly the contract the script side expects.
type Immediate struct{}

func (Immediate) Schedule(int, time.Duration) bool { return true }
func (Immediate) Cancel(int)                       {}
func (Immediate) Next() (int, bool)                { return 0, false }
func (Immediate) HasPending() bool                 { return false }
func (Immediate) Reset()                           {}

// entry tracks scheduling metadata for one deferred callback. The actual
// callback is stored in globalThis.__timerCallbacks[id] on the JS side;
// Go only tracks ordering.
type entry struct {
	id    int
	delay time.Duration
	seq   int
}

// Queue defers timer callbacks and hands them back to the drain loop in
// (delay, registration) order. It never sleeps: a deferred callback fires
// at the next drain checkpoint, not after a wall-clock delay.
type Queue struct {
	mu      sync.Mutex
	pending []entry
	seq     int
}

// NewQueue creates an empty deferred-timer queue.
func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Schedule(id int, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.pending = append(q.pending, entry{id: id, delay: delay, seq: q.seq})
	return false
}

func (q *Queue) Cancel(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.pending {
		if e.id == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Next pops the entry with the smallest (delay, seq). Linear scan keeps
// the structure trivial; queues hold a handful of timers at most.
func (q *Queue) Next() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return 0, false
	}
	best := 0
	for i := 1; i < len(q.pending); i++ {
		e, b := q.pending[i], q.pending[best]
		if e.delay < b.delay || (e.delay == b.delay && e.seq < b.seq) {
			best = i
		}
	}
	id := q.pending[best].id
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	return id, true
}

func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0
}

func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.seq = 0
}
