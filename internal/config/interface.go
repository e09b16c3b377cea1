package config

import "context"

// Watcher enables live configuration updates
type Watcher interface {
	// Watch starts watching the loaded configuration file. The callback is
	// called with the re-read, validated configuration after every change
	// until ctx is cancelled.
	Watch(ctx context.Context, callback func(*Config)) error
}

// Option defines a configuration option that can be passed to NewLoader
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath  string
	envPrefix   string
	searchPaths []string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "QUALITYCTL"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithSearchPaths replaces the directories searched for qualityctl.toml
func WithSearchPaths(paths ...string) Option {
	return func(o *options) error {
		o.searchPaths = paths
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// ValidationError represents a configuration validation error
type ValidationError interface {
	error
	// Field returns the name of the invalid field
	Field() string
	// Value returns the invalid value
	Value() interface{}
	// Reason returns why the value is invalid
	Reason() string
}

// Status represents the current state of the configuration
type Status struct {
	// Valid indicates whether the current configuration is valid
	Valid bool
	// ValidationErrors contains any validation errors if Valid is false
	ValidationErrors []ValidationError
}
