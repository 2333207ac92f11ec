package transport

import "sync"

// eventQueue delivers events to a handler in push order from a single
// goroutine. push never blocks, so a handler may call back into the client.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	handler func(Event)
}

func newEventQueue(handler func(Event)) *eventQueue {
	q := &eventQueue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: handler,
	}
	go q.run()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops the queue once everything already pushed has been delivered
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}

func (q *eventQueue) run() {
	for {
		select {
		case <-q.wake:
			q.drain()
		case <-q.done:
			q.drain()
			return
		}
	}
}

func (q *eventQueue) drain() {
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			q.handler(ev)
		}
	}
}
