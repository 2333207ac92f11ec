package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keepmind9/syncbot/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_ValidConfig_ReturnsConfigStruct(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123456:test-token")

	path := writeConfig(t, `
api_id: 12345
api_hash: "0123456789abcdef"
output_verbosity: 5
bot_token: "${TEST_BOT_TOKEN}"
transport: Telegram
lookup:
  timeout: 500ms
telegram:
  endpoint: "http://localhost:8081/bot%s/%s"
logging:
  level: debug
  enable_stdout: false
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(12345), config.APIID)
	assert.Equal(t, "0123456789abcdef", config.APIHash)
	assert.Equal(t, 5, config.OutputVerbosity)
	assert.Equal(t, "123456:test-token", config.BotToken)
	assert.Equal(t, TransportTelegram, config.Transport)
	assert.Equal(t, 500*time.Millisecond, config.LookupTimeout())
	assert.Equal(t, 30*time.Second, config.LookupQueueTimeout())
	assert.Equal(t, "http://localhost:8081/bot%s/%s", config.Telegram.Endpoint)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.False(t, config.StdoutEnabled())
}

func TestLoadConfig_JSONConfig(t *testing.T) {
	path := writeConfig(t, `{"api_id": 777, "api_hash": "abc", "output_verbosity": 1, "bot_token": "tok"}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(777), config.APIID)
	assert.Equal(t, "abc", config.APIHash)
	assert.Equal(t, 1, config.OutputVerbosity)
	assert.Equal(t, "tok", config.BotToken)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "api_id: 1\n")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultTransport, config.Transport)
	assert.Equal(t, DefaultLogLevel, config.Logging.Level)
	assert.Equal(t, DefaultLogMaxSize, config.Logging.MaxSize)
	assert.Equal(t, DefaultLogMaxBackups, config.Logging.MaxBackups)
	assert.Equal(t, DefaultLogMaxAge, config.Logging.MaxAge)
	assert.True(t, config.StdoutEnabled())
	assert.Equal(t, 2*time.Second, config.LookupTimeout())
	assert.Equal(t, 30*time.Second, config.LookupQueueTimeout())
	assert.Equal(t, 60*time.Second, config.PollTimeout())
	assert.Equal(t, 5*time.Second, config.AuthRetryDelay())
}

func TestLoadConfig_MissingCredentialsAreNotFatal(t *testing.T) {
	path := writeConfig(t, "output_verbosity: 1\n")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Zero(t, config.APIID)
	assert.Empty(t, config.BotToken)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown transport", "transport: slack\n", "unsupported transport"},
		{"negative verbosity", "output_verbosity: -1\n", "output_verbosity"},
		{"bad lookup timeout", "lookup:\n  timeout: soon\n", "lookup.timeout"},
		{"lookup timeout too long", "lookup:\n  timeout: 5m\n", "lookup.timeout"},
		{"queue shorter than lookup", "lookup:\n  timeout: 10s\n  queue_timeout: 1s\n", "queue_timeout"},
		{"bad poll timeout", "telegram:\n  poll_timeout: 10ms\n", "poll_timeout"},
		{"bad retry delay", "auth:\n  retry_delay: never\n", "retry_delay"},
		{"invalid yaml", "api_id: [1\n", "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestExpandEnv_MissingVariable(t *testing.T) {
	os.Unsetenv("SYNCBOT_TEST_UNSET_VAR")

	_, err := expandEnv("bot_token: ${SYNCBOT_TEST_UNSET_VAR}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNCBOT_TEST_UNSET_VAR")
}

func TestExpandEnv_ReplacesVariables(t *testing.T) {
	t.Setenv("SYNCBOT_TEST_HASH", "feedface")

	out, err := expandEnv("api_hash: ${SYNCBOT_TEST_HASH}")
	require.NoError(t, err)
	assert.Equal(t, "api_hash: feedface", out)
}

func TestConfig_Credentials(t *testing.T) {
	config := &Config{
		APIID:                 42,
		APIHash:               "hash",
		BotToken:              "token",
		DatabaseDirectory:     "/var/lib/syncbot",
		DatabaseEncryptionKey: "secret",
	}

	creds := config.Credentials()
	assert.Equal(t, auth.Credentials{
		APIID:             42,
		APIHash:           "hash",
		BotToken:          "token",
		EncryptionKey:     "secret",
		DatabaseDirectory: "/var/lib/syncbot",
	}, creds)
}

func TestFileSource_RereadsRotatedToken(t *testing.T) {
	path := writeConfig(t, "api_id: 1\napi_hash: h\nbot_token: first\n")
	source := FileSource{Path: path, ApplicationVersion: "1.2.3"}

	creds, err := source.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "first", creds.BotToken)
	assert.Equal(t, "1.2.3", creds.ApplicationVersion)

	require.NoError(t, os.WriteFile(path, []byte("api_id: 1\napi_hash: h\nbot_token: second\n"), 0600))

	creds, err = source.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "second", creds.BotToken)
}

func TestFileSource_UnreadableFileIsConfigurationError(t *testing.T) {
	source := FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}

	_, err := source.Credentials()
	require.Error(t, err)

	var cfgErr *auth.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
