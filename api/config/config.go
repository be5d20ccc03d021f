package config

import (
	"log/slog"
	"time"
)

// The default timeouts of the transitional power states.
const (
	DefaultBleStartTimeout   = 4 * time.Second
	DefaultBredrStartTimeout = 4 * time.Second
	DefaultBredrStopTimeout  = 4 * time.Second
	DefaultBleStopTimeout    = 1 * time.Second
)

// DefaultEventBufferSize is the default capacity of the event bus.
const DefaultEventBufferSize = 10

// Configuration describes a general configuration.
type Configuration struct {
	// BleStartTimeout bounds the TurningBleOn state.
	BleStartTimeout time.Duration `koanf:"ble-start-timeout"`

	// BredrStartTimeout bounds the TurningOn state.
	BredrStartTimeout time.Duration `koanf:"bredr-start-timeout"`

	// BredrStopTimeout bounds the TurningOff state.
	BredrStopTimeout time.Duration `koanf:"bredr-stop-timeout"`

	// BleStopTimeout bounds the TurningBleOff state.
	BleStopTimeout time.Duration `koanf:"ble-stop-timeout"`

	// EventBufferSize holds the capacity of the event bus.
	EventBufferSize int `koanf:"event-buffer-size"`

	// StrictInvariants turns programming-invariant violations
	// into panics instead of logged errors.
	StrictInvariants bool `koanf:"strict-invariants"`

	// Logger receives the logs of every subsystem.
	// If nil, slog.Default() is used.
	Logger *slog.Logger `koanf:"-"`
}

// New returns a new configuration with the default timeouts.
func New() Configuration {
	return Configuration{
		BleStartTimeout:   DefaultBleStartTimeout,
		BredrStartTimeout: DefaultBredrStartTimeout,
		BredrStopTimeout:  DefaultBredrStopTimeout,
		BleStopTimeout:    DefaultBleStopTimeout,
		EventBufferSize:   DefaultEventBufferSize,
	}
}

// SubsystemLogger returns a logger that tags each record with the subsystem name.
func (c Configuration) SubsystemLogger(subsystem string) *slog.Logger {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With(slog.String("subsystem", subsystem))
}

// WithDefaults replaces unset values with their defaults.
func (c Configuration) WithDefaults() Configuration {
	d := New()

	if c.BleStartTimeout <= 0 {
		c.BleStartTimeout = d.BleStartTimeout
	}
	if c.BredrStartTimeout <= 0 {
		c.BredrStartTimeout = d.BredrStartTimeout
	}
	if c.BredrStopTimeout <= 0 {
		c.BredrStopTimeout = d.BredrStopTimeout
	}
	if c.BleStopTimeout <= 0 {
		c.BleStopTimeout = d.BleStopTimeout
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = d.EventBufferSize
	}

	return c
}
