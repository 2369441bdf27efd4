package shuffle

import "sync"

// Queue is the blocking hand-off between fetch workers and the merge
// consumer. Close releases a blocked Dequeue at teardown.
type Queue[T any] struct {
	ch        chan T
	closeOnce sync.Once
}

func NewQueue[T any](size int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, size)}
}

// Enqueue blocks if the queue is full.
func (q *Queue[T]) Enqueue(item T) {
	q.ch <- item
}

// Dequeue blocks if the queue is empty. ok is false once the queue has
// been closed and drained.
func (q *Queue[T]) Dequeue() (T, bool) {
	item, ok := <-q.ch
	return item, ok
}

func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}
