// Package correlation pairs one outbound request with the event that answers it.
//
// The transport answers a request only through a later event that repeats the
// request key, so a Store holds a single pending slot keyed by that value. One
// producer (the event path) delivers into the slot and one consumer (the
// worker that registered it) waits on it.
package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyPending is returned by Begin while another lookup holds the slot
	ErrAlreadyPending = errors.New("a lookup is already pending")
	// ErrTimedOut is returned by Await when no result arrived in time
	ErrTimedOut = errors.New("lookup timed out")
	// ErrUnknownToken is returned by Await for a token that was already consumed
	ErrUnknownToken = errors.New("unknown correlation token")
)

// Token identifies one registered lookup
type Token[K comparable] struct {
	ID  uuid.UUID
	Key K
}

type pending[K comparable, V any] struct {
	token  Token[K]
	result chan V
}

// Store is a single-slot rendezvous between a waiting worker and the event path
type Store[K comparable, V any] struct {
	mu   sync.Mutex
	slot *pending[K, V]
	// results holds the channel of every token not yet awaited, so a value
	// delivered before Await is called is not lost
	results map[uuid.UUID]chan V
}

// NewStore creates an empty store
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		results: make(map[uuid.UUID]chan V),
	}
}

// Begin registers interest in the result for key
func (s *Store[K, V]) Begin(key K) (Token[K], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot != nil {
		return Token[K]{}, ErrAlreadyPending
	}

	tok := Token[K]{ID: uuid.New(), Key: key}
	ch := make(chan V, 1)
	s.slot = &pending[K, V]{token: tok, result: ch}
	s.results[tok.ID] = ch
	return tok, nil
}

// Deliver hands value to the lookup pending for key. It reports false and
// drops value when nothing is pending for key.
func (s *Store[K, V]) Deliver(key K, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot == nil || s.slot.token.Key != key {
		return false
	}

	// buffered and written once per token, never blocks
	s.slot.result <- value
	s.slot = nil
	return true
}

// Await blocks until the result for tok is delivered, timeout elapses or ctx
// is done. On timeout the slot is cleared and ErrTimedOut is returned.
func (s *Store[K, V]) Await(ctx context.Context, tok Token[K], timeout time.Duration) (V, error) {
	var zero V

	s.mu.Lock()
	ch, ok := s.results[tok.ID]
	s.mu.Unlock()
	if !ok {
		return zero, ErrUnknownToken
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		s.forget(tok)
		return v, nil
	case <-timer.C:
		return s.abandon(tok, ErrTimedOut)
	case <-ctx.Done():
		return s.abandon(tok, ctx.Err())
	}
}

// abandon clears the slot for tok. A delivery that won the race against the
// timer is still handed back.
func (s *Store[K, V]) abandon(tok Token[K], cause error) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.results[tok.ID]
	delete(s.results, tok.ID)

	if s.slot != nil && s.slot.token.ID == tok.ID {
		s.slot = nil
		var zero V
		return zero, cause
	}

	select {
	case v := <-ch:
		return v, nil
	default:
		var zero V
		return zero, cause
	}
}

// Cancel releases the slot held by tok without waiting
func (s *Store[K, V]) Cancel(tok Token[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot != nil && s.slot.token.ID == tok.ID {
		s.slot = nil
	}
	delete(s.results, tok.ID)
}

// Pending reports the key of the lookup currently holding the slot
func (s *Store[K, V]) Pending() (K, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot == nil {
		var zero K
		return zero, false
	}
	return s.slot.token.Key, true
}

func (s *Store[K, V]) forget(tok Token[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, tok.ID)
}
