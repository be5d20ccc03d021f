package bluetooth

import "github.com/bluetuith-org/adapterd/api/errorkinds"

// ConnState describes the connection state of a profile to a device.
// The same values describe the adapter-wide connection state.
type ConnState uint8

// The different connection states.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

var connStateNames = map[ConnState]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateDisconnecting: "disconnecting",
}

// Valid reports whether c is one of the four connection states.
func (c ConnState) Valid() bool {
	return c <= StateDisconnecting
}

// String returns the name of the connection state.
func (c ConnState) String() string {
	if name, ok := connStateNames[c]; ok {
		return name
	}

	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (c ConnState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ConnState) UnmarshalText(data []byte) error {
	for state, name := range connStateNames {
		if name == string(data) {
			*c = state
			return nil
		}
	}

	return errorkinds.ErrInvalidConnState
}

// IsNormalTransition reports whether prev -> next is one of the transitions
// a well-behaved profile produces for a single device.
func IsNormalTransition(prev, next ConnState) bool {
	switch prev {
	case StateDisconnected:
		return next == StateConnecting

	case StateConnecting:
		return next == StateDisconnected || next == StateConnected

	case StateConnected:
		return next == StateDisconnecting

	case StateDisconnecting:
		return next == StateDisconnected || next == StateConnected
	}

	return false
}

// AdapterPowerState describes the power lifecycle state of the adapter.
type AdapterPowerState uint8

// The different adapter power states.
const (
	PowerOff AdapterPowerState = iota
	PowerTurningBleOn
	PowerBleOn
	PowerTurningOn
	PowerOn
	PowerTurningOff
	PowerTurningBleOff
)

var powerStateNames = map[AdapterPowerState]string{
	PowerOff:           "off",
	PowerTurningBleOn:  "turning-ble-on",
	PowerBleOn:         "ble-on",
	PowerTurningOn:     "turning-on",
	PowerOn:            "on",
	PowerTurningOff:    "turning-off",
	PowerTurningBleOff: "turning-ble-off",
}

// String returns the name of the power state.
func (a AdapterPowerState) String() string {
	if name, ok := powerStateNames[a]; ok {
		return name
	}

	return "invalid"
}

// IsTransitional reports whether a is only entered en route between two stable states.
func (a AdapterPowerState) IsTransitional() bool {
	switch a {
	case PowerTurningBleOn, PowerTurningOn, PowerTurningOff, PowerTurningBleOff:
		return true
	}

	return false
}

// MarshalText implements encoding.TextMarshaler.
func (a AdapterPowerState) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AdapterPowerState) UnmarshalText(data []byte) error {
	for state, name := range powerStateNames {
		if name == string(data) {
			*a = state
			return nil
		}
	}

	return errorkinds.ErrInvalidEvent
}
