// Package lookup turns the transport's fire-and-forget user requests into a
// blocking call for worker goroutines.
package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/keepmind9/syncbot/internal/correlation"
	"github.com/keepmind9/syncbot/internal/dispatch"
	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// UnknownUser is returned whenever a user cannot be resolved in time
var UnknownUser = transport.User{
	ID:        constants.UnknownUserID,
	FirstName: constants.UnknownUserFirstName,
	LastName:  constants.UnknownUserLastName,
}

// UserRequester sends the asynchronous "get user" request
type UserRequester interface {
	GetUser(userID int64) error
}

// Config controls lookup timing
type Config struct {
	Timeout      time.Duration // Wait for the answering event
	QueueTimeout time.Duration // Wait for a turn in the queue
}

// Service resolves users one at a time; concurrent callers queue in FIFO order
type Service struct {
	api   UserRequester
	store *correlation.Store[int64, transport.User]
	queue fifo
	cfg   Config
}

// NewService creates a lookup service sending requests through api
func NewService(api UserRequester, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultLookupTimeout
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = constants.DefaultLookupQueueTimeout
	}
	return &Service{
		api:   api,
		store: correlation.NewStore[int64, transport.User](),
		cfg:   cfg,
	}
}

// ResolveUser resolves userID with the configured timeout
func (s *Service) ResolveUser(ctx context.Context, userID int64) transport.User {
	return s.ResolveUserWithTimeout(ctx, userID, s.cfg.Timeout)
}

// ResolveUserWithTimeout requests userID and blocks until the matching user
// event arrives. It returns UnknownUser on timeout or any failure; it never
// blocks longer than the queue timeout plus timeout.
func (s *Service) ResolveUserWithTimeout(ctx context.Context, userID int64, timeout time.Duration) transport.User {
	log := logger.WithField("user_id", userID)

	if dispatch.OnDispatcher(ctx) {
		log.Error("resolve-user-called-on-dispatcher")
		return UnknownUser
	}

	queueCtx, cancel := context.WithTimeout(ctx, s.cfg.QueueTimeout)
	err := s.queue.acquire(queueCtx)
	cancel()
	if err != nil {
		log.WithField("error", err).Warn("resolve-user-queue-wait-abandoned")
		return UnknownUser
	}
	defer s.queue.release()

	tok, err := s.store.Begin(userID)
	if err != nil {
		// only possible when something outside the queue uses the store
		log.WithField("error", err).Warn("resolve-user-slot-busy")
		return UnknownUser
	}

	if err := s.api.GetUser(userID); err != nil {
		s.store.Cancel(tok)
		log.WithField("error", err).Warn("resolve-user-request-failed")
		return UnknownUser
	}

	user, err := s.store.Await(ctx, tok, timeout)
	if err != nil {
		entry := log.WithFields(logrus.Fields{
			"timeout": timeout.String(),
			"error":   err,
		})
		if errors.Is(err, correlation.ErrTimedOut) {
			entry.Debug("resolve-user-timed-out")
		} else {
			entry.Warn("resolve-user-abandoned")
		}
		return UnknownUser
	}

	log.WithField("first_name", user.FirstName).Debug("resolve-user-completed")
	return user
}

// Deliver passes a user event to the waiting lookup, if any
func (s *Service) Deliver(user transport.User) bool {
	delivered := s.store.Deliver(user.ID, user)
	if !delivered {
		logger.WithField("user_id", user.ID).Debug("user-event-without-pending-lookup")
	}
	return delivered
}

// Queued reports how many callers are waiting for their turn
func (s *Service) Queued() int {
	return s.queue.waiting()
}
