// Package queue provides the task queue the intake pipeline and the
// similarity engine coordinate through. The queue has no capacity limit:
// Insert always succeeds and never blocks.
//
// # Outstanding vs. length
//
// A queue tracks two independent counts: Len, the number of items
// currently buffered, and Outstanding, the number of items that have
// been Inserted but not yet fully processed. A worker that Polls an item
// does not shrink Outstanding - only a later call to DecrementOutstanding
// does, once the worker has finished whatever the item represents,
// including any child work it fanned out to other queues. Checking
// Len()==0 is not sufficient to detect a drained pipeline: a worker may
// have polled the last item and not yet enqueued its children elsewhere.
// Outstanding()==0 across every queue in a pipeline is the correct
// termination signal.
//
// # Why polling instead of blocking
//
// Insert/Poll/DecrementOutstanding are all non-blocking. Workers that
// find both queues momentarily empty sleep briefly and retry rather than
// parking on a condition variable - work distribution across a directory
// tree is uneven enough that false-idle windows are short-lived, and the
// polling loop keeps every worker running the same code regardless of
// which queue currently has work.
package queue

import "sync"

// Queue is a generic, mutex-protected multi-producer multi-consumer queue
// with an outstanding-task counter decoupled from its length.
type Queue[T any] struct {
	mu          sync.Mutex
	items       []T
	outstanding int
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Insert enqueues x and increments the outstanding count. Both the
// enqueue and the counter bump happen under the same lock acquisition so
// a concurrent Len/Outstanding observer never sees one move without the
// other.
func (q *Queue[T]) Insert(x T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, x)
	q.outstanding++
}

// Poll dequeues the oldest item. ok is false if the queue is empty; it
// never blocks and never panics on an empty queue.
func (q *Queue[T]) Poll() (x T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return x, false
	}
	x = q.items[0]
	q.items = q.items[1:]
	return x, true
}

// DecrementOutstanding records that a worker has finished processing one
// previously-polled item, including any child items it enqueued
// elsewhere. Callers must call this exactly once per item they polled.
func (q *Queue[T]) DecrementOutstanding() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
}

// Len returns the number of items currently buffered.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Outstanding returns the number of items inserted but not yet fully
// processed.
func (q *Queue[T]) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Drained reports whether every queue in qs has Outstanding()==0.
func Drained[T any](qs ...*Queue[T]) bool {
	for _, q := range qs {
		if q.Outstanding() != 0 {
			return false
		}
	}
	return true
}
