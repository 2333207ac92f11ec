package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotStarted is returned by outbound requests issued before Start
var ErrNotStarted = errors.New("transport not started")

// AuthorizationState is the authorization lifecycle step announced by the backend
type AuthorizationState int

const (
	AuthorizationStateWaitTdlibParameters AuthorizationState = iota + 1
	AuthorizationStateWaitEncryptionKey
	AuthorizationStateWaitPhoneNumber
	AuthorizationStateReady
	AuthorizationStateLoggingOut
	AuthorizationStateClosing
	AuthorizationStateClosed
)

func (s AuthorizationState) String() string {
	switch s {
	case AuthorizationStateWaitTdlibParameters:
		return "wait_tdlib_parameters"
	case AuthorizationStateWaitEncryptionKey:
		return "wait_encryption_key"
	case AuthorizationStateWaitPhoneNumber:
		return "wait_phone_number"
	case AuthorizationStateReady:
		return "ready"
	case AuthorizationStateLoggingOut:
		return "logging_out"
	case AuthorizationStateClosing:
		return "closing"
	case AuthorizationStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("authorization_state(%d)", int(s))
	}
}

// ConnectionState is the network connectivity reported by the transport
type ConnectionState int

const (
	ConnectionStateWaitingForNetwork ConnectionState = iota + 1
	ConnectionStateConnecting
	ConnectionStateUpdating
	ConnectionStateReady
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateWaitingForNetwork:
		return "waiting_for_network"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateUpdating:
		return "updating"
	case ConnectionStateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// User is a resolved user profile
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName joins first and last name
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Message is an inbound chat message
type Message struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chat_id"`
	SenderUserID int64     `json:"sender_user_id"`
	Text         string    `json:"text,omitempty"`
	Date         time.Time `json:"date"`
}

// Parameters are the client parameters sent while authorizing
type Parameters struct {
	APIID                  int64
	APIHash                string
	DatabaseDirectory      string
	UseMessageDatabase     bool
	UseSecretChats         bool
	SystemLanguageCode     string
	DeviceModel            string
	SystemVersion          string
	ApplicationVersion     string
	EnableStorageOptimizer bool
}

// ProtocolError is an error reported by the backend
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// EventKind identifies the type of an Event
type EventKind int

const (
	KindAuthorizationState EventKind = iota + 1
	KindConnectionState
	KindError
	KindOption
	KindUser
	KindNewMessage
	KindRaw
)

func (k EventKind) String() string {
	switch k {
	case KindAuthorizationState:
		return "update_authorization_state"
	case KindConnectionState:
		return "update_connection_state"
	case KindError:
		return "error"
	case KindOption:
		return "update_option"
	case KindUser:
		return "user"
	case KindNewMessage:
		return "update_new_message"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Event is a notification delivered by a transport
type Event interface {
	Kind() EventKind
}

// AuthorizationStateEvent announces a new authorization state
type AuthorizationStateEvent struct {
	State AuthorizationState
}

// ConnectionStateEvent announces a new connection state
type ConnectionStateEvent struct {
	State ConnectionState
}

// ErrorEvent carries a backend error
type ErrorEvent struct {
	Code    int
	Message string
}

// OptionEvent carries a named option value such as "version"
type OptionEvent struct {
	Name  string
	Value string
}

// UserEvent carries user info, usually in answer to GetUser
type UserEvent struct {
	User User
}

// NewMessageEvent carries an inbound message
type NewMessageEvent struct {
	Message Message
}

// RawEvent carries the raw JSON of an update
type RawEvent struct {
	JSON string
}

func (AuthorizationStateEvent) Kind() EventKind { return KindAuthorizationState }
func (ConnectionStateEvent) Kind() EventKind    { return KindConnectionState }
func (ErrorEvent) Kind() EventKind              { return KindError }
func (OptionEvent) Kind() EventKind             { return KindOption }
func (UserEvent) Kind() EventKind               { return KindUser }
func (NewMessageEvent) Kind() EventKind         { return KindNewMessage }
func (RawEvent) Kind() EventKind                { return KindRaw }

// Err converts the event into a ProtocolError
func (e ErrorEvent) Err() error {
	return &ProtocolError{Code: e.Code, Message: e.Message}
}
