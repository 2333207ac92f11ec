// Package dispatch keeps the transport event loop free of blocking work.
//
// All transport events are handled in arrival order on a single goroutine
// (Run). Handlers registered with On must return quickly: anything that
// waits on the network or on a lookup result is handed to Go, which runs it
// on its own worker goroutine. Contexts passed to handlers are marked so that
// blocking helpers can detect and refuse a call made from the loop itself.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Handler reacts to one event on the dispatch goroutine
type Handler func(ctx context.Context, ev transport.Event)

type dispatcherKey struct{}

// OnDispatcher reports whether ctx belongs to the dispatch goroutine
func OnDispatcher(ctx context.Context) bool {
	on, _ := ctx.Value(dispatcherKey{}).(bool)
	return on
}

// Dispatcher routes transport events to handlers on one goroutine
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[transport.EventKind]Handler
	events   chan transport.Event
	workers  sync.WaitGroup
	ctx      context.Context
	done     chan struct{}
}

// New creates a dispatcher with an event buffer of bufferSize
func New(bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = constants.EventChannelBufferSize
	}
	return &Dispatcher{
		handlers: make(map[transport.EventKind]Handler),
		events:   make(chan transport.Event, bufferSize),
		ctx:      context.Background(),
		done:     make(chan struct{}),
	}
}

// On registers the handler for kind, replacing any previous one
func (d *Dispatcher) On(kind transport.EventKind, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

// Enqueue is the callback handed to the transport. It must not be called
// from a handler.
func (d *Dispatcher) Enqueue(ev transport.Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

// Run processes events until ctx is done
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	defer close(d.done)

	loopCtx := context.WithValue(ctx, dispatcherKey{}, true)
	logger.Component("dispatcher").Info("event-loop-started")

	for {
		select {
		case <-ctx.Done():
			logger.Component("dispatcher").Info("event-loop-stopped")
			return
		case ev := <-d.events:
			d.dispatch(loopCtx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev transport.Event) {
	d.mu.RLock()
	handler, ok := d.handlers[ev.Kind()]
	d.mu.RUnlock()

	if !ok {
		logger.WithField("kind", ev.Kind().String()).Debug("dispatcher-event-without-handler")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"kind":  ev.Kind().String(),
				"panic": r,
			}).Error("dispatcher-handler-panic-recovered")
		}
	}()

	handler(ctx, ev)
}

// Go runs fn on a new worker goroutine. Errors and panics are logged at the
// worker boundary and never reach the dispatcher.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.mu.RLock()
	parent := d.ctx
	d.mu.RUnlock()

	workerCtx := context.WithValue(parent, dispatcherKey{}, false)

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"worker": name,
					"panic":  r,
				}).Error("worker-panic-recovered")
			}
		}()

		if err := fn(workerCtx); err != nil {
			logger.WithFields(logrus.Fields{
				"worker": name,
				"error":  err,
			}).Error("worker-failed")
		}
	}()
}

// Wait blocks until every worker has returned or timeout elapses
func (d *Dispatcher) Wait(timeout time.Duration) error {
	finished := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("workers still running after %v", timeout)
	}
}
