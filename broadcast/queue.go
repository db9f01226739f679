package broadcast

import "sync"

// Queue is an unbounded FIFO with a blocking Pop. Pushes never block, which
// lets a single reader loop fan values out without waiting on consumers.
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
	err   error
}

// NewQueue returns an empty open queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v. It reports false if the queue is already closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return true
}

// Pop blocks until a value is available or the queue is closed and drained,
// in which case it returns the close error.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.err == nil {
		q.cond.Wait()
	}
	if len(q.items) > 0 {
		v := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		return v, nil
	}
	var zero T
	return zero, q.err
}

// Close stops further pushes. Values already queued are still returned by
// Pop before err. The first close wins.
func (q *Queue[T]) Close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	q.err = err
	q.cond.Broadcast()
}

// Abort closes the queue and discards anything still queued.
func (q *Queue[T]) Abort(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	if q.err == nil {
		q.err = err
	}
	q.cond.Broadcast()
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
