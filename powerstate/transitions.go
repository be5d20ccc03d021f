package powerstate

import bt "github.com/bluetuith-org/adapterd/api/bluetooth"

// Message is an input of the power state machine.
type Message uint8

// The different messages.
const (
	MsgNone Message = iota
	MsgBleTurnOn
	MsgBleTurnOff
	MsgUserTurnOn
	MsgUserTurnOff
	MsgBleStarted
	MsgBleStopped
	MsgBredrStarted
	MsgBredrStopped
	MsgBleStartTimeout
	MsgBredrStartTimeout
	MsgBredrStopTimeout
	MsgBleStopTimeout
)

var messageNames = map[Message]string{
	MsgNone:              "none",
	MsgBleTurnOn:         "ble-turn-on",
	MsgBleTurnOff:        "ble-turn-off",
	MsgUserTurnOn:        "user-turn-on",
	MsgUserTurnOff:       "user-turn-off",
	MsgBleStarted:        "ble-started",
	MsgBleStopped:        "ble-stopped",
	MsgBredrStarted:      "bredr-started",
	MsgBredrStopped:      "bredr-stopped",
	MsgBleStartTimeout:   "ble-start-timeout",
	MsgBredrStartTimeout: "bredr-start-timeout",
	MsgBredrStopTimeout:  "bredr-stop-timeout",
	MsgBleStopTimeout:    "ble-stop-timeout",
}

// String returns the name of the message.
func (m Message) String() string {
	if name, ok := messageNames[m]; ok {
		return name
	}

	return "invalid"
}

// IsTimeout reports whether m is a delayed self-message.
func (m Message) IsTimeout() bool {
	switch m {
	case MsgBleStartTimeout, MsgBredrStartTimeout, MsgBredrStopTimeout, MsgBleStopTimeout:
		return true
	}

	return false
}

// EffectKind describes a side effect of a transition.
type EffectKind uint8

// The different effect kinds, in the order they are produced.
const (
	// EffectLogTimeout reports that a transitional state timed out.
	EffectLogTimeout EffectKind = iota + 1

	// EffectCancelTimeout cancels the timeout of the state being left.
	EffectCancelTimeout

	// EffectNotify notifies the observer of the state entry.
	EffectNotify

	// EffectStartTimeout schedules Effect.Timeout.
	EffectStartTimeout

	EffectBringUpBle
	EffectBringDownBle
	EffectStartProfileServices
	EffectStopProfileServices
)

var effectNames = map[EffectKind]string{
	EffectLogTimeout:           "log-timeout",
	EffectCancelTimeout:        "cancel-timeout",
	EffectNotify:               "notify",
	EffectStartTimeout:         "start-timeout",
	EffectBringUpBle:           "bring-up-ble",
	EffectBringDownBle:         "bring-down-ble",
	EffectStartProfileServices: "start-profile-services",
	EffectStopProfileServices:  "stop-profile-services",
}

// String returns the name of the effect kind.
func (k EffectKind) String() string {
	return effectNames[k]
}

// Effect is a side effect the caller of Transition has to execute.
type Effect struct {
	Kind EffectKind

	// Timeout is set for EffectStartTimeout and EffectLogTimeout.
	Timeout Message

	// Prev and Next are set for EffectNotify.
	Prev, Next bt.AdapterPowerState
}

// transitions is the complete transition table.
// Any (state, message) pair missing from it is ignored.
var transitions = map[bt.AdapterPowerState]map[Message]bt.AdapterPowerState{
	bt.PowerOff: {
		MsgBleTurnOn: bt.PowerTurningBleOn,
	},
	bt.PowerTurningBleOn: {
		MsgBleStarted:      bt.PowerBleOn,
		MsgBleStartTimeout: bt.PowerTurningBleOff,
	},
	bt.PowerBleOn: {
		MsgUserTurnOn: bt.PowerTurningOn,
		MsgBleTurnOff: bt.PowerTurningBleOff,
	},
	bt.PowerTurningOn: {
		MsgBredrStarted:      bt.PowerOn,
		MsgBredrStartTimeout: bt.PowerTurningOff,
	},
	bt.PowerOn: {
		MsgUserTurnOff: bt.PowerTurningOff,
	},
	bt.PowerTurningOff: {
		MsgBredrStopped:     bt.PowerBleOn,
		MsgBredrStopTimeout: bt.PowerTurningBleOff,
	},
	bt.PowerTurningBleOff: {
		MsgBleStopped:     bt.PowerOff,
		MsgBleStopTimeout: bt.PowerOff,
	},
}

// entryActions holds the timeout and the collaborator call
// performed on entering each transitional state.
var entryActions = map[bt.AdapterPowerState]struct {
	timeout Message
	action  EffectKind
}{
	bt.PowerTurningBleOn:  {MsgBleStartTimeout, EffectBringUpBle},
	bt.PowerTurningOn:     {MsgBredrStartTimeout, EffectStartProfileServices},
	bt.PowerTurningOff:    {MsgBredrStopTimeout, EffectStopProfileServices},
	bt.PowerTurningBleOff: {MsgBleStopTimeout, EffectBringDownBle},
}

// Transition computes the next state for msg received in state, and the
// effects to execute, in order. If the pair is not handled, it returns
// state unchanged, no effects and false.
func Transition(state bt.AdapterPowerState, msg Message) (bt.AdapterPowerState, []Effect, bool) {
	next, ok := transitions[state][msg]
	if !ok {
		return state, nil, false
	}

	effects := make([]Effect, 0, 5)

	if msg.IsTimeout() {
		effects = append(effects, Effect{Kind: EffectLogTimeout, Timeout: msg})
	}

	if _, guarded := entryActions[state]; guarded {
		effects = append(effects, Effect{Kind: EffectCancelTimeout})
	}

	effects = append(effects, Effect{Kind: EffectNotify, Prev: state, Next: next})

	if entry, ok := entryActions[next]; ok {
		effects = append(effects,
			Effect{Kind: EffectStartTimeout, Timeout: entry.timeout},
			Effect{Kind: entry.action},
		)
	}

	return next, effects, true
}

// MessageFor maps a bus event to a machine message.
// It returns MsgNone for events the machine does not consume.
func MessageFor(ev any) Message {
	switch ev.(type) {
	case bt.BleTurnOn:
		return MsgBleTurnOn

	case bt.BleTurnOff:
		return MsgBleTurnOff

	case bt.AdapterUserTurnOn:
		return MsgUserTurnOn

	case bt.AdapterUserTurnOff:
		return MsgUserTurnOff

	case bt.BleStarted:
		return MsgBleStarted

	case bt.BleStopped:
		return MsgBleStopped

	case bt.BredrStarted:
		return MsgBredrStarted

	case bt.BredrStopped:
		return MsgBredrStopped
	}

	return MsgNone
}
