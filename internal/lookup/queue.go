package lookup

import (
	"container/list"
	"context"
	"sync"
)

// fifo is a mutex whose waiters acquire it in arrival order
type fifo struct {
	mu      sync.Mutex
	busy    bool
	waiters list.List // of chan struct{}
}

// acquire waits for the turn of the caller or for ctx to be done
func (q *fifo) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	turn := make(chan struct{})
	elem := q.waiters.PushBack(turn)
	q.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		select {
		case <-turn:
			// handed over while giving up; pass it on
			q.mu.Unlock()
			q.release()
		default:
			q.waiters.Remove(elem)
			q.mu.Unlock()
		}
		return ctx.Err()
	}
}

// release hands the turn to the oldest waiter
func (q *fifo) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.waiters.Front()
	if front == nil {
		q.busy = false
		return
	}
	q.waiters.Remove(front)
	close(front.Value.(chan struct{}))
}

// waiting reports the number of queued callers
func (q *fifo) waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}
