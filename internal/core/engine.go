package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/syncbot/internal/auth"
	"github.com/keepmind9/syncbot/internal/dispatch"
	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/lookup"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Engine connects the transport to the authorization machine, the lookup
// service and the message printer
type Engine struct {
	config     *Config
	client     transport.Client
	dispatcher *dispatch.Dispatcher
	machine    *auth.Machine
	lookup     *lookup.Service
	printer    MessagePrinter

	mu        sync.Mutex
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// NewEngine creates a new Engine instance
func NewEngine(config *Config, client transport.Client, source auth.CredentialSource, printer MessagePrinter) *Engine {
	if source == nil {
		source = staticSource{config: config}
	}
	return &Engine{
		config:     config,
		client:     client,
		dispatcher: dispatch.New(constants.EventChannelBufferSize),
		machine:    auth.NewMachine(client, source),
		lookup: lookup.NewService(client, lookup.Config{
			Timeout:      config.LookupTimeout(),
			QueueTimeout: config.LookupQueueTimeout(),
		}),
		printer: printer,
		closed:  make(chan struct{}),
	}
}

// staticSource serves the credentials loaded at startup
type staticSource struct {
	config *Config
}

func (s staticSource) Credentials() (auth.Credentials, error) {
	return s.config.Credentials(), nil
}

// Run starts the transport and processes its events until ctx is done or
// Stop is called
func (e *Engine) Run(ctx context.Context) error {
	logger.WithField("transport", e.config.Transport).Info("starting-syncbot-engine")

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	e.registerHandlers()

	if err := e.client.Start(e.dispatcher.Enqueue); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	e.dispatcher.Run(ctx)
	return nil
}

func (e *Engine) registerHandlers() {
	e.dispatcher.On(transport.KindAuthorizationState, e.handleAuthorizationState)
	e.dispatcher.On(transport.KindConnectionState, e.handleConnectionState)
	e.dispatcher.On(transport.KindError, e.handleError)
	e.dispatcher.On(transport.KindOption, e.handleOption)
	e.dispatcher.On(transport.KindUser, e.handleUser)
	e.dispatcher.On(transport.KindNewMessage, e.handleNewMessage)
	e.dispatcher.On(transport.KindRaw, e.handleRaw)
}

func (e *Engine) handleAuthorizationState(_ context.Context, ev transport.Event) {
	state := ev.(transport.AuthorizationStateEvent).State

	// Failures are logged by the machine
	if err := e.machine.Handle(state); err != nil && !errors.Is(err, auth.ErrUnexpectedTransition) {
		var cfgErr *auth.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.WithField("field", cfgErr.Field).Error("check-configuration-file")
		}
	}

	if e.machine.State() == auth.StateClosed {
		e.closeOnce.Do(func() { close(e.closed) })
	}
}

func (e *Engine) handleConnectionState(_ context.Context, ev transport.Event) {
	state := ev.(transport.ConnectionStateEvent).State
	e.machine.SetConnectionState(state)
	logger.WithField("state", state.String()).Info("connection-state-changed")
}

func (e *Engine) handleError(_ context.Context, ev transport.Event) {
	errEv := ev.(transport.ErrorEvent)
	logger.WithFields(logrus.Fields{
		"code":    errEv.Code,
		"message": errEv.Message,
	}).Warn("protocol-error")
	e.machine.NoteFailure(errEv.Err())
}

func (e *Engine) handleOption(_ context.Context, ev transport.Event) {
	opt := ev.(transport.OptionEvent)
	if opt.Name == "version" {
		logger.WithField("version", opt.Value).Info("transport-version")
		return
	}
	logger.WithFields(logrus.Fields{
		"name":  opt.Name,
		"value": opt.Value,
	}).Debug("transport-option")
}

func (e *Engine) handleUser(_ context.Context, ev transport.Event) {
	user := ev.(transport.UserEvent).User
	e.dispatcher.Go("deliver-user", func(context.Context) error {
		e.lookup.Deliver(user)
		return nil
	})
}

func (e *Engine) handleNewMessage(_ context.Context, ev transport.Event) {
	msg := ev.(transport.NewMessageEvent).Message
	if msg.Text == "" {
		logger.WithField("message_id", msg.ID).Debug("non-text-message-skipped")
		return
	}

	e.dispatcher.Go("print-message", func(ctx context.Context) error {
		sender := e.lookup.ResolveUser(ctx, msg.SenderUserID)
		if err := e.printer.PrintMessage(sender, msg); err != nil {
			return fmt.Errorf("failed to print message %d: %w", msg.ID, err)
		}
		return nil
	})
}

func (e *Engine) handleRaw(_ context.Context, ev transport.Event) {
	if e.config.OutputVerbosity <= constants.RawEventVerbosity {
		return
	}
	logger.WithField("json", ev.(transport.RawEvent).JSON).Info("raw-event")
}

// Stop shuts the transport down, logging out first when logout is set, then
// stops the event loop and joins the workers
func (e *Engine) Stop(logout bool) error {
	logger.WithField("logout", logout).Info("stopping-syncbot-engine")

	var stopErr error
	if logout {
		stopErr = e.client.LogOut()
	} else {
		stopErr = e.client.Close()
	}
	if stopErr != nil {
		logger.WithField("error", stopErr).Warn("failed-to-stop-transport")
	} else {
		select {
		case <-e.closed:
			logger.Info("transport-closed")
		case <-time.After(constants.DefaultShutdownTimeout):
			logger.Warn("transport-close-timed-out")
		}
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if err := e.dispatcher.Wait(constants.DefaultShutdownTimeout); err != nil {
		logger.WithField("error", err).Warn("workers-did-not-finish")
		return err
	}

	logger.Info("engine-stopped")
	return nil
}

// ResolveUser resolves a user from a worker goroutine
func (e *Engine) ResolveUser(ctx context.Context, userID int64) transport.User {
	return e.lookup.ResolveUser(ctx, userID)
}

// Ready reports whether the transport session is authorized
func (e *Engine) Ready() bool {
	return e.machine.Ready()
}

// SessionState returns the authorization state
func (e *Engine) SessionState() auth.SessionState {
	return e.machine.State()
}

// ConnectionState returns the last reported connection state
func (e *Engine) ConnectionState() transport.ConnectionState {
	return e.machine.ConnectionState()
}

// Closed is closed once the transport reports the session closed
func (e *Engine) Closed() <-chan struct{} {
	return e.closed
}
