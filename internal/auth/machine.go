// Package auth drives the authorization handshake with the transport.
//
// The backend announces what it is waiting for through authorization-state
// events; Machine answers each announcement and tracks the resulting
// SessionState:
//
//	Uninitialized         + WaitTdlibParameters -> AwaitingParameters     (send parameters)
//	AwaitingParameters    + WaitEncryptionKey   -> AwaitingEncryptionKey  (send database key)
//	AwaitingEncryptionKey + WaitPhoneNumber     -> AwaitingPhoneOrToken   (send bot token)
//	AwaitingPhoneOrToken  + Ready               -> Ready
//	Ready                 + LoggingOut          -> LoggingOut
//	any                   + Closing             -> Closing
//	Closing               + Closed              -> Closed
//	Closed                + WaitTdlibParameters -> AwaitingParameters     (reconnect)
//
// Repeating the current state is a no-op, except after NoteFailure: a
// rejected step is answered again, with freshly read credentials, when the
// backend repeats its request.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Sender is the outbound half of the handshake
type Sender interface {
	SendParameters(params transport.Parameters) error
	SendEncryptionKey(key string) error
	SendAuthToken(token string) error
}

// Machine owns the session and connection state. All mutation goes through
// Handle, NoteFailure and SetConnectionState.
type Machine struct {
	mu     sync.RWMutex
	state  SessionState
	conn   transport.ConnectionState
	retry  bool
	sender Sender
	source CredentialSource
}

// NewMachine creates a machine in StateUninitialized
func NewMachine(sender Sender, source CredentialSource) *Machine {
	return &Machine{
		state:  StateUninitialized,
		sender: sender,
		source: source,
	}
}

// Handle applies one authorization-state event
func (m *Machine) Handle(event transport.AuthorizationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state
	next, ok := nextState(current, event)
	if !ok {
		logger.WithFields(logrus.Fields{
			"state": current.String(),
			"event": event.String(),
		}).Warn("authorization-event-ignored")
		return fmt.Errorf("%w: %s in state %s", ErrUnexpectedTransition, event, current)
	}

	if next == current && !m.retry {
		logger.WithField("state", current.String()).Debug("authorization-event-duplicate")
		return nil
	}

	if err := m.answer(event); err != nil {
		fields := logrus.Fields{
			"state": current.String(),
			"event": event.String(),
			"error": err,
		}
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.WithFields(fields).Error("authorization-configuration-error")
		} else {
			logger.WithFields(fields).Warn("authorization-request-failed")
		}
		return err
	}

	m.retry = false
	m.state = next

	if next != current {
		logger.WithFields(logrus.Fields{
			"from": current.String(),
			"to":   next.String(),
		}).Info("authorization-state-changed")
	}
	return nil
}

// nextState is the transition table
func nextState(current SessionState, event transport.AuthorizationState) (SessionState, bool) {
	switch event {
	case transport.AuthorizationStateWaitTdlibParameters:
		switch current {
		case StateUninitialized, StateClosed, StateAwaitingParameters:
			return StateAwaitingParameters, true
		}
	case transport.AuthorizationStateWaitEncryptionKey:
		switch current {
		case StateAwaitingParameters, StateAwaitingEncryptionKey:
			return StateAwaitingEncryptionKey, true
		}
	case transport.AuthorizationStateWaitPhoneNumber:
		switch current {
		case StateAwaitingEncryptionKey, StateAwaitingPhoneOrToken:
			return StateAwaitingPhoneOrToken, true
		}
	case transport.AuthorizationStateReady:
		switch current {
		case StateAwaitingPhoneOrToken, StateReady:
			return StateReady, true
		}
	case transport.AuthorizationStateLoggingOut:
		switch current {
		case StateReady, StateLoggingOut:
			return StateLoggingOut, true
		}
	case transport.AuthorizationStateClosing:
		if current != StateClosed {
			return StateClosing, true
		}
	case transport.AuthorizationStateClosed:
		switch current {
		case StateClosing, StateClosed:
			return StateClosed, true
		}
	}
	return current, false
}

// answer sends whatever the backend asked for
func (m *Machine) answer(event transport.AuthorizationState) error {
	switch event {
	case transport.AuthorizationStateWaitTdlibParameters:
		creds, err := m.credentials()
		if err != nil {
			return err
		}
		if creds.APIID <= 0 {
			return &ConfigurationError{Field: "api_id"}
		}
		if creds.APIHash == "" {
			return &ConfigurationError{Field: "api_hash"}
		}
		dbDir := creds.DatabaseDirectory
		if dbDir == "" {
			dbDir = constants.DefaultDatabaseDirectory
		}
		params := transport.Parameters{
			APIID:                  creds.APIID,
			APIHash:                creds.APIHash,
			DatabaseDirectory:      dbDir,
			UseMessageDatabase:     true,
			UseSecretChats:         true,
			SystemLanguageCode:     constants.DefaultSystemLanguageCode,
			DeviceModel:            constants.DefaultDeviceModel,
			SystemVersion:          constants.DefaultSystemVersion,
			ApplicationVersion:     creds.ApplicationVersion,
			EnableStorageOptimizer: true,
		}
		if err := m.sender.SendParameters(params); err != nil {
			return fmt.Errorf("failed to send parameters: %w", err)
		}

	case transport.AuthorizationStateWaitEncryptionKey:
		creds, err := m.credentials()
		if err != nil {
			return err
		}
		if err := m.sender.SendEncryptionKey(creds.EncryptionKey); err != nil {
			return fmt.Errorf("failed to send encryption key: %w", err)
		}

	case transport.AuthorizationStateWaitPhoneNumber:
		creds, err := m.credentials()
		if err != nil {
			return err
		}
		if creds.BotToken == "" {
			return &ConfigurationError{Field: "bot_token"}
		}
		if err := m.sender.SendAuthToken(creds.BotToken); err != nil {
			return fmt.Errorf("failed to send bot token: %w", err)
		}

	case transport.AuthorizationStateReady:
		logger.Info("authorization-ready")
	case transport.AuthorizationStateLoggingOut:
		logger.Info("authorization-logging-out")
	case transport.AuthorizationStateClosing:
		logger.Info("authorization-closing")
	case transport.AuthorizationStateClosed:
		logger.Info("authorization-closed")
	}
	return nil
}

func (m *Machine) credentials() (Credentials, error) {
	if m.source == nil {
		return Credentials{}, &ConfigurationError{Err: errors.New("no credential source")}
	}
	creds, err := m.source.Credentials()
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return Credentials{}, err
		}
		return Credentials{}, &ConfigurationError{Err: err}
	}
	return creds, nil
}

// NoteFailure records that the backend rejected the last answer. The next
// repeat of the current awaiting state is answered again.
func (m *Machine) NoteFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.awaiting() {
		return
	}
	m.retry = true
	logger.WithFields(logrus.Fields{
		"state": m.state.String(),
		"error": err,
	}).Warn("authorization-step-rejected")
}

// State returns the current session state
func (m *Machine) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether the session is authorized
func (m *Machine) Ready() bool {
	return m.State() == StateReady
}

// SetConnectionState records the informational connection state
func (m *Machine) SetConnectionState(state transport.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = state
}

// ConnectionState returns the last reported connection state
func (m *Machine) ConnectionState() transport.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}
