package core

// Config represents the complete syncbot configuration structure
type Config struct {
	APIID                 int64          `yaml:"api_id"`
	APIHash               string         `yaml:"api_hash"`
	OutputVerbosity       int            `yaml:"output_verbosity"`
	Transport             string         `yaml:"transport"`               // telegram or discord
	BotToken              string         `yaml:"bot_token"`               // Re-read on every login attempt
	DatabaseDirectory     string         `yaml:"database_directory"`      // Transport local state
	DatabaseEncryptionKey string         `yaml:"database_encryption_key"` // May be empty
	Lookup                LookupConfig   `yaml:"lookup"`
	Telegram              TelegramConfig `yaml:"telegram"`
	Auth                  AuthConfig     `yaml:"auth"`
	Logging               LoggingConfig  `yaml:"logging"`
}

// LookupConfig represents user lookup timing
type LookupConfig struct {
	Timeout      string `yaml:"timeout"`       // Wait for the user-info event (default: 2s)
	QueueTimeout string `yaml:"queue_timeout"` // Wait for a turn when lookups queue up (default: 30s)
}

// TelegramConfig represents Telegram transport settings
type TelegramConfig struct {
	Endpoint    string `yaml:"endpoint"`     // Bot API endpoint format (default: api.telegram.org)
	PollTimeout string `yaml:"poll_timeout"` // Long poll timeout (default: 60s)
}

// AuthConfig represents authorization retry settings
type AuthConfig struct {
	RetryDelay string `yaml:"retry_delay"` // Delay before a rejected step is requested again (default: 5s)
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs
	EnableStdout *bool  `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
