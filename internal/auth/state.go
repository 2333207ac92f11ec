package auth

import (
	"errors"
	"fmt"
)

// SessionState is the authorization state of the bot session
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateAwaitingParameters
	StateAwaitingEncryptionKey
	StateAwaitingPhoneOrToken
	StateReady
	StateLoggingOut
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingParameters:
		return "awaiting_parameters"
	case StateAwaitingEncryptionKey:
		return "awaiting_encryption_key"
	case StateAwaitingPhoneOrToken:
		return "awaiting_phone_or_token"
	case StateReady:
		return "ready"
	case StateLoggingOut:
		return "logging_out"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("session_state(%d)", int(s))
	}
}

// awaiting reports whether the backend is waiting for an answer from us
func (s SessionState) awaiting() bool {
	switch s {
	case StateAwaitingParameters, StateAwaitingEncryptionKey, StateAwaitingPhoneOrToken:
		return true
	}
	return false
}

// ErrUnexpectedTransition is returned for an event the current state does not accept
var ErrUnexpectedTransition = errors.New("unexpected authorization transition")

// ConfigurationError reports credentials that are missing or malformed at the
// moment they have to be sent
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("configuration error: %s is required", e.Field)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Credentials are the secrets and identifiers sent during authorization
type Credentials struct {
	APIID              int64
	APIHash            string
	BotToken           string
	EncryptionKey      string
	DatabaseDirectory  string
	ApplicationVersion string
}

// CredentialSource yields current credentials. It is consulted every time a
// credential is sent, so changes on disk apply on the next handshake.
type CredentialSource interface {
	Credentials() (Credentials, error)
}
