// Package platform provides the radio, profile lifecycle and profile
// controllers an adapter service drives on the running platform.
package platform

import (
	"runtime"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/service"
)

type BluetoothStack string

const (
	BluezStack    BluetoothStack = "BlueZ (DBus)"
	LoopbackStack BluetoothStack = "Loopback"
)

// PlatformInfo describes platform-specific information.
type PlatformInfo struct {
	OS    string         `json:"os,omitempty"`
	Stack BluetoothStack `json:"bluetooth_stack,omitempty"`
}

// NewPlatformInfo returns a new PlatformInfo.
func NewPlatformInfo(stack BluetoothStack) PlatformInfo {
	return PlatformInfo{
		OS:    runtime.GOOS + " (" + runtime.GOARCH + ")",
		Stack: stack,
	}
}

// String converts a BluetoothStack to a string.
func (b BluetoothStack) String() string {
	return string(b)
}

// Options describes how the platform session is set up.
type Options struct {
	// Adapter is the name of the adapter to power, for example "hci0".
	Adapter string `koanf:"adapter"`

	// Loopback selects the loopback radio even if a platform radio exists.
	Loopback bool `koanf:"loopback"`

	// Delay is how long loopback controllers take to report completion.
	Delay time.Duration `koanf:"loopback-delay"`
}

// DefaultAdapter is the adapter used when none is configured.
const DefaultAdapter = "hci0"

// Session holds the platform collaborators of an adapter service.
type Session struct {
	Radio     bt.RadioController
	Lifecycle bt.ProfileLifecycleController
	Profiles  *Profiles
	Info      PlatformInfo

	// RadioErr is set when the platform radio could not be opened,
	// and the session fell back to the loopback radio.
	RadioErr error

	closer func() error
}

// NewSession returns the collaborators for the running platform. Completion
// events of the radio and the profile lifecycle are sent to publisher.
// If the platform radio cannot be opened, the session uses the loopback
// radio and records the error in RadioErr.
func NewSession(publisher eventbus.EventPublisher, opts Options, cfg config.Configuration) (*Session, error) {
	if opts.Adapter == "" {
		opts.Adapter = DefaultAdapter
	}

	s := &Session{
		Lifecycle: NewLoopbackLifecycle(publisher, opts.Delay),
		Profiles:  NewProfiles(),
	}

	if opts.Loopback {
		s.Radio = NewLoopbackRadio(publisher, opts.Delay)
		s.Info = NewPlatformInfo(LoopbackStack)

		return s, nil
	}

	radio, stack, closer, err := platformRadio(publisher, opts, cfg)
	if err != nil {
		cfg.SubsystemLogger("platform").Warn("platform radio unavailable, using the loopback radio",
			"adapter", opts.Adapter,
			"error", err,
		)

		s.Radio = NewLoopbackRadio(publisher, opts.Delay)
		s.Info = NewPlatformInfo(LoopbackStack)
		s.RadioErr = err

		return s, nil
	}

	s.Radio = radio
	s.Info = NewPlatformInfo(stack)
	s.closer = closer

	return s, nil
}

// Collaborators returns the controllers of the session for an adapter service.
func (s *Session) Collaborators() service.Collaborators {
	return service.Collaborators{
		Radio:     s.Radio,
		Lifecycle: s.Lifecycle,
		Profiles:  s.Profiles,
	}
}

// Close releases the platform resources held by the session.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer()
}
