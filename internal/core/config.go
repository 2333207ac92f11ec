// Package core wires syncbot together: configuration, the transport client,
// the authorization state machine, the lookup service and the dispatcher.
//
// # Configuration
//
// Configuration is loaded from a YAML file. JSON is valid YAML, so a plain
// configuration.json works as well:
//
//	{"api_id": 12345, "api_hash": "0123456789abcdef", "output_verbosity": 1,
//	 "bot_token": "${BOT_TOKEN}"}
//
// Main sections:
//
//   - api_id, api_hash: application credentials sent with the parameters
//   - bot_token: bot token sent when the backend asks for authentication
//   - output_verbosity: above 4 raw transport JSON is logged
//   - transport: telegram (default) or discord
//   - lookup: user lookup timeouts
//   - logging: log configuration
//
// Credentials are read from disk again every time the handshake needs them
// (see FileSource), so rotating them only takes a reconnect.
package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/keepmind9/syncbot/internal/auth"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTransport      = "telegram"
	DefaultLogLevel       = "info"
	DefaultLogMaxSize     = 100 // MB
	DefaultLogMaxBackups  = 5
	DefaultLogMaxAge      = 30 // days
	DefaultLookupTimeout  = "2s"
	DefaultQueueTimeout   = "30s"
	DefaultPollTimeout    = "60s"
	DefaultAuthRetryDelay = "5s"
)

// Supported transports
const (
	TransportTelegram = "telegram"
	TransportDiscord  = "discord"
)

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and checks structural settings. Credentials
// are checked when they are sent, not here.
func validateConfig(config *Config) error {
	if config.Transport == "" {
		config.Transport = DefaultTransport
	}
	config.Transport = strings.ToLower(config.Transport)
	if config.Transport != TransportTelegram && config.Transport != TransportDiscord {
		return fmt.Errorf("unsupported transport %q (expected %s or %s)",
			config.Transport, TransportTelegram, TransportDiscord)
	}

	if config.OutputVerbosity < 0 {
		return fmt.Errorf("output_verbosity must not be negative (got %d)", config.OutputVerbosity)
	}

	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}
	if config.Logging.EnableStdout == nil {
		enabled := true
		config.Logging.EnableStdout = &enabled
	}

	// Set default timeouts
	if config.Lookup.Timeout == "" {
		config.Lookup.Timeout = DefaultLookupTimeout
	}
	if config.Lookup.QueueTimeout == "" {
		config.Lookup.QueueTimeout = DefaultQueueTimeout
	}
	if config.Telegram.PollTimeout == "" {
		config.Telegram.PollTimeout = DefaultPollTimeout
	}
	if config.Auth.RetryDelay == "" {
		config.Auth.RetryDelay = DefaultAuthRetryDelay
	}

	timeout, err := time.ParseDuration(config.Lookup.Timeout)
	if err != nil {
		return fmt.Errorf("invalid lookup.timeout: %w", err)
	}
	if timeout < 10*time.Millisecond || timeout > time.Minute {
		return fmt.Errorf("lookup.timeout must be between 10ms and 1m (got %v)", timeout)
	}

	queueTimeout, err := time.ParseDuration(config.Lookup.QueueTimeout)
	if err != nil {
		return fmt.Errorf("invalid lookup.queue_timeout: %w", err)
	}
	if queueTimeout < timeout {
		return fmt.Errorf("lookup.queue_timeout must not be shorter than lookup.timeout")
	}

	pollTimeout, err := time.ParseDuration(config.Telegram.PollTimeout)
	if err != nil {
		return fmt.Errorf("invalid telegram.poll_timeout: %w", err)
	}
	if pollTimeout < time.Second || pollTimeout > 10*time.Minute {
		return fmt.Errorf("telegram.poll_timeout must be between 1s and 10m (got %v)", pollTimeout)
	}

	retryDelay, err := time.ParseDuration(config.Auth.RetryDelay)
	if err != nil {
		return fmt.Errorf("invalid auth.retry_delay: %w", err)
	}
	if retryDelay <= 0 {
		return fmt.Errorf("auth.retry_delay must be positive")
	}

	return nil
}

// LookupTimeout returns the parsed lookup timeout
func (c *Config) LookupTimeout() time.Duration {
	return parseDurationOr(c.Lookup.Timeout, 2*time.Second)
}

// LookupQueueTimeout returns the parsed lookup queue timeout
func (c *Config) LookupQueueTimeout() time.Duration {
	return parseDurationOr(c.Lookup.QueueTimeout, 30*time.Second)
}

// PollTimeout returns the parsed Telegram long poll timeout
func (c *Config) PollTimeout() time.Duration {
	return parseDurationOr(c.Telegram.PollTimeout, 60*time.Second)
}

// AuthRetryDelay returns the parsed authorization retry delay
func (c *Config) AuthRetryDelay() time.Duration {
	return parseDurationOr(c.Auth.RetryDelay, 5*time.Second)
}

// StdoutEnabled reports whether logs are also written to stdout
func (c *Config) StdoutEnabled() bool {
	return c.Logging.EnableStdout == nil || *c.Logging.EnableStdout
}

// Credentials extracts the handshake credentials
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		APIID:             c.APIID,
		APIHash:           c.APIHash,
		BotToken:          c.BotToken,
		EncryptionKey:     c.DatabaseEncryptionKey,
		DatabaseDirectory: c.DatabaseDirectory,
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// FileSource reads credentials from the configuration file on every call
type FileSource struct {
	Path               string
	ApplicationVersion string
}

// Credentials implements auth.CredentialSource
func (f FileSource) Credentials() (auth.Credentials, error) {
	config, err := LoadConfig(f.Path)
	if err != nil {
		return auth.Credentials{}, &auth.ConfigurationError{Err: err}
	}
	creds := config.Credentials()
	creds.ApplicationVersion = f.ApplicationVersion
	return creds, nil
}
