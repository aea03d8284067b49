package util

import (
	"sync"
	"sync/atomic"
)

// qnode is a single element of the linked list backing the queue
type qnode[T any] struct {
	value T
	next  atomic.Pointer[qnode[T]]
}

// Queue is an unbounded multi-producer single-consumer queue.
//
// Producers append to a linked list under a short mutex and never wait for the consumer,
// a single goroutine owned by the queue moves the items to the channel returned by Recv.
// Items pushed by one goroutine are delivered in push order. Items pushed concurrently
// by different goroutines are ordered by which Push completes first.
type Queue[T any] struct {
	head    atomic.Pointer[qnode[T]] // sentinel, only touched by the pump goroutine
	tail    atomic.Pointer[qnode[T]] // guarded by mu
	out     chan T
	closed  atomic.Bool
	pending atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a new queue and starts its delivery goroutine.
// The goroutine exits after Close once all pushed items were received.
func NewQueue[T any]() *Queue[T] {
	sentinel := &qnode[T]{}
	q := &Queue[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.pump()
	return q
}

// Push appends an item to the queue.
// Returns false if the queue is closed.
//
// The closed check and the link happen under the queue mutex, so no item can be
// linked after Close returned and every accepted item is delivered.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) Push(value T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed.Load() {
		return false
	}

	n := &qnode[T]{value: value}
	q.pending.Add(1)
	q.tail.Load().next.Store(n)
	q.tail.Store(n)

	q.cond.Signal()
	return true
}

// pump moves items from the list to the output channel
func (q *Queue[T]) pump() {
	defer close(q.out)

	for {
		head := q.head.Load()
		next := head.next.Load()

		if next == nil {
			q.mu.Lock()
			for q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			done := q.head.Load().next.Load() == nil && q.closed.Load()
			q.mu.Unlock()
			if done {
				return
			}
			continue
		}

		value := next.value
		q.head.Store(next)
		q.out <- value
		q.pending.Add(-1)

		// drop the reference so the value can be collected
		var zero T
		next.value = zero
	}
}

// Recv returns the channel delivering the queued items.
// The channel is closed once the queue is closed and drained.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting new items. Items already pushed are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed.Store(true)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of items pushed but not yet received.
func (q *Queue[T]) Len() int {
	return int(q.pending.Load())
}
