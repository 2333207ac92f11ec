package constants

import "time"

// Lookup timing
const (
	// DefaultLookupTimeout is how long a worker waits for a user-info event
	DefaultLookupTimeout = 2 * time.Second
	// DefaultLookupQueueTimeout bounds the wait for a turn in the lookup queue
	DefaultLookupQueueTimeout = 30 * time.Second
)

// Unknown user sentinel
const (
	// UnknownUserID is the identifier of the placeholder user returned on lookup failure
	UnknownUserID int64 = -1
	// UnknownUserFirstName is the first name of the placeholder user
	UnknownUserFirstName = "Unknown"
	// UnknownUserLastName is the last name of the placeholder user
	UnknownUserLastName = "User"
)

// Transport timing
const (
	// DefaultAuthRetryDelay is the delay before a rejected authorization step is re-requested
	DefaultAuthRetryDelay = 5 * time.Second
	// DefaultPollTimeout is the timeout for long polling operations
	DefaultPollTimeout = 60 * time.Second
	// DefaultShutdownTimeout bounds how long Stop waits for running workers
	DefaultShutdownTimeout = 5 * time.Second
)

// Buffer sizes
const (
	// EventChannelBufferSize is the buffer size of the dispatcher event channel
	EventChannelBufferSize = 256
)

// Output verbosity
const (
	// RawEventVerbosity is the output_verbosity above which raw transport JSON is logged
	RawEventVerbosity = 4
)

// Protocol error codes used when the transport library gives no code
const (
	// ErrorCodeUnauthorized marks a rejected credential
	ErrorCodeUnauthorized = 401
	// ErrorCodeInternal marks a local or unclassified failure
	ErrorCodeInternal = 500
)

// Token masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply partial masking
	MinSecretLengthForMasking = 10
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Parameters sent with every authorization
const (
	// DefaultDatabaseDirectory is where the transport keeps its local state
	DefaultDatabaseDirectory = "tdlib"
	// DefaultSystemLanguageCode is reported to the backend on login
	DefaultSystemLanguageCode = "en"
	// DefaultDeviceModel is reported to the backend on login
	DefaultDeviceModel = "Server"
	// DefaultSystemVersion is reported to the backend on login
	DefaultSystemVersion = "Unknown"
)
