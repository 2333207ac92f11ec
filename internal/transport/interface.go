// Package transport provides the chat transports syncbot runs on.
//
// A transport behaves like an asynchronous client library: every inbound
// notification is delivered as an Event through the handler passed to Start,
// and every outbound action is a fire-and-forget request whose outcome only
// shows up as a later Event. There are no request identifiers; a GetUser
// request is answered by a UserEvent carrying the same user ID.
//
// # Supported Platforms
//
//   - Telegram: Bot API long polling
//   - Discord: gateway WebSocket connection
//
// # Lifecycle
//
// Both transports walk the same authorization lifecycle so that the state
// machine in package auth can drive either of them:
//
//	Start                  -> AuthorizationStateWaitTdlibParameters
//	SendParameters         -> AuthorizationStateWaitEncryptionKey
//	SendEncryptionKey      -> AuthorizationStateWaitPhoneNumber
//	SendAuthToken (ok)     -> AuthorizationStateReady
//	SendAuthToken (denied) -> ErrorEvent, then WaitPhoneNumber again
//	LogOut                 -> LoggingOut, Closing, Closed
//	Close                  -> Closing, Closed
//
// # Thread Safety
//
// The handler may be invoked from several goroutines. Callers that need
// ordered, single-threaded delivery put a queue in front of it (see package
// dispatch).
package transport

// Client is the outbound side of a transport
type Client interface {
	// Start connects the event handler and emits the first lifecycle event
	Start(handler func(Event)) error

	// SendParameters answers AuthorizationStateWaitTdlibParameters
	SendParameters(params Parameters) error

	// SendEncryptionKey answers AuthorizationStateWaitEncryptionKey; key may be empty
	SendEncryptionKey(key string) error

	// SendAuthToken answers AuthorizationStateWaitPhoneNumber with a bot token
	SendAuthToken(token string) error

	// GetUser requests a UserEvent for userID
	GetUser(userID int64) error

	// LogOut terminates the bot session on the backend and closes the client
	LogOut() error

	// Close closes the client without logging out
	Close() error
}
