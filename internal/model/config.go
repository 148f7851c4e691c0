package model

import (
	"time"

	"github.com/apex/log"
)

const (
	// DefaultStopTimeout is how long we wait for the daemon to exit after
	// asking it to before terminating it.
	DefaultStopTimeout = 15 * time.Second

	// DefaultManagementTimeout bounds how long we try to reach the
	// management interface of a freshly launched daemon.
	DefaultManagementTimeout = 30 * time.Second

	// DefaultScriptTimeout bounds connect and disconnect scripts.
	DefaultScriptTimeout = 30 * time.Second

	// DefaultMuteInterval is how long an already displayed echo message
	// stays muted.
	DefaultMuteInterval = 24 * time.Hour
)

// Config contains the settings shared by all the connections.
type Config struct {
	// logger will be used to log events.
	logger Logger

	// stopTimeout is the watchdog armed when stopping a daemon.
	stopTimeout time.Duration

	// managementTimeout bounds connecting to the management interface.
	managementTimeout time.Duration

	// scriptTimeout bounds connect and disconnect scripts.
	scriptTimeout time.Duration

	// muteInterval mutes repeated echo messages.
	muteInterval time.Duration

	// silent suppresses the connected notice.
	silent bool
}

// NewConfig returns a Config with defaults overridden by options.
func NewConfig(options ...Option) *Config {
	cfg := &Config{
		logger:            log.Log,
		stopTimeout:       DefaultStopTimeout,
		managementTimeout: DefaultManagementTimeout,
		scriptTimeout:     DefaultScriptTimeout,
		muteInterval:      DefaultMuteInterval,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// Option is an option you can pass to [NewConfig].
type Option func(config *Config)

// WithLogger configures the passed [Logger].
func WithLogger(logger Logger) Option {
	return func(config *Config) {
		config.logger = logger
	}
}

// WithStopTimeout configures the stop watchdog. Non positive values are ignored.
func WithStopTimeout(d time.Duration) Option {
	return func(config *Config) {
		if d > 0 {
			config.stopTimeout = d
		}
	}
}

// WithManagementTimeout configures how long we try to reach the management
// interface. Non positive values are ignored.
func WithManagementTimeout(d time.Duration) Option {
	return func(config *Config) {
		if d > 0 {
			config.managementTimeout = d
		}
	}
}

// WithScriptTimeout configures the script timeout. Non positive values are ignored.
func WithScriptTimeout(d time.Duration) Option {
	return func(config *Config) {
		if d > 0 {
			config.scriptTimeout = d
		}
	}
}

// WithMuteInterval configures the echo message mute interval. Negative
// values are ignored, zero disables muting.
func WithMuteInterval(d time.Duration) Option {
	return func(config *Config) {
		if d >= 0 {
			config.muteInterval = d
		}
	}
}

// WithSilent suppresses the notice shown when a connection comes up.
func WithSilent(silent bool) Option {
	return func(config *Config) {
		config.silent = silent
	}
}

// Logger returns the configured logger.
func (c *Config) Logger() Logger {
	return c.logger
}

// StopTimeout returns the stop watchdog timeout.
func (c *Config) StopTimeout() time.Duration {
	return c.stopTimeout
}

// ManagementTimeout returns the management connect timeout.
func (c *Config) ManagementTimeout() time.Duration {
	return c.managementTimeout
}

// ScriptTimeout returns the script timeout.
func (c *Config) ScriptTimeout() time.Duration {
	return c.scriptTimeout
}

// MuteInterval returns the echo message mute interval.
func (c *Config) MuteInterval() time.Duration {
	return c.muteInterval
}

// Silent returns whether the connected notice is suppressed.
func (c *Config) Silent() bool {
	return c.silent
}
