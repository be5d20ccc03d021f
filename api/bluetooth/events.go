package bluetooth

import "github.com/bluetuith-org/adapterd/api/eventbus"

// EventID represents a unique event ID.
// Each event ID is a separate topic on the event bus.
type EventID byte

// The different types of event IDs.
const (
	EventNone EventID = iota // The zero value for this type.
	EventProfileConnectionState
	EventProfileActiveDevice
	EventHearingAidActiveDevice
	EventWiredAudio
	EventAdapterRequest
	EventRadio
	EventAdapterPowerState
	EventAdapterConnectionState
)

// eventNames holds names of different events.
var eventNames = map[EventID]string{
	EventNone:                   "",
	EventProfileConnectionState: "profile_connection_state_event",
	EventProfileActiveDevice:    "profile_active_device_event",
	EventHearingAidActiveDevice: "hearing_aid_active_device_event",
	EventWiredAudio:             "wired_audio_event",
	EventAdapterRequest:         "adapter_request_event",
	EventRadio:                  "radio_event",
	EventAdapterPowerState:      "adapter_power_state_event",
	EventAdapterConnectionState: "adapter_connection_state_event",
}

// String returns the name of the event ID.
func (e EventID) String() string {
	return eventNames[e]
}

// Value returns the event ID.
func (e EventID) Value() uint {
	return uint(e)
}

// Event is implemented by every event payload.
// The set of implementations is closed to this package.
type Event interface {
	// EventID returns the bus topic the event is published on.
	EventID() EventID

	event()
}

// Publish publishes ev on its own topic.
func Publish(p eventbus.EventPublisher, ev Event) {
	if p == nil || ev == nil {
		return
	}

	p.Publish(ev.EventID(), ev)
}

// ProfileConnectionStateChanged is published by a profile subsystem
// when its connection to a device changes state.
type ProfileConnectionStateChanged struct {
	Profile   ProfileID `json:"profile"`
	Device    DeviceID  `json:"device"`
	PrevState ConnState `json:"prev_state"`
	NewState  ConnState `json:"new_state"`
}

// ProfileActiveDeviceChanged is published by a profile subsystem when its
// active device changes. Device is NoDevice when no device is active.
type ProfileActiveDeviceChanged struct {
	Profile ProfileID `json:"profile"`
	Device  DeviceID  `json:"device"`
}

// HearingAidActiveDeviceChanged is published by the hearing aid subsystem
// when its active device changes. Device is NoDevice when no device is active.
type HearingAidActiveDeviceChanged struct {
	Device DeviceID `json:"device"`
}

// WiredAudioDeviceConnected is published when a wired audio route appears.
type WiredAudioDeviceConnected struct{}

// AdapterUserTurnOn requests a full (BR/EDR) power up from BleOn.
type AdapterUserTurnOn struct{}

// AdapterUserTurnOff requests a BR/EDR power down from On.
type AdapterUserTurnOff struct{}

// BleTurnOn requests a BLE-only power up from Off.
type BleTurnOn struct{}

// BleTurnOff requests a power down from BleOn.
type BleTurnOff struct{}

// BleStarted is published by the radio controller once BLE is up.
type BleStarted struct{}

// BleStopped is published by the radio controller once BLE is down.
type BleStopped struct{}

// BredrStarted is published by the profile lifecycle controller once all
// profile services have started.
type BredrStarted struct{}

// BredrStopped is published by the profile lifecycle controller once all
// profile services have stopped.
type BredrStopped struct{}

// AdapterPowerStateChanged is published on every power state entry.
type AdapterPowerStateChanged struct {
	PrevState AdapterPowerState `json:"prev_state"`
	NewState  AdapterPowerState `json:"new_state"`
}

// AdapterConnectionStateChanged is published when the adapter-wide
// connection state changes. Device is the device whose event caused it.
type AdapterConnectionStateChanged struct {
	Device    DeviceID  `json:"device"`
	PrevState ConnState `json:"prev_state"`
	NewState  ConnState `json:"new_state"`
}

func (ProfileConnectionStateChanged) EventID() EventID { return EventProfileConnectionState }
func (ProfileActiveDeviceChanged) EventID() EventID    { return EventProfileActiveDevice }
func (HearingAidActiveDeviceChanged) EventID() EventID { return EventHearingAidActiveDevice }
func (WiredAudioDeviceConnected) EventID() EventID     { return EventWiredAudio }
func (AdapterUserTurnOn) EventID() EventID             { return EventAdapterRequest }
func (AdapterUserTurnOff) EventID() EventID            { return EventAdapterRequest }
func (BleTurnOn) EventID() EventID                     { return EventAdapterRequest }
func (BleTurnOff) EventID() EventID                    { return EventAdapterRequest }
func (BleStarted) EventID() EventID                    { return EventRadio }
func (BleStopped) EventID() EventID                    { return EventRadio }
func (BredrStarted) EventID() EventID                  { return EventRadio }
func (BredrStopped) EventID() EventID                  { return EventRadio }
func (AdapterPowerStateChanged) EventID() EventID      { return EventAdapterPowerState }
func (AdapterConnectionStateChanged) EventID() EventID { return EventAdapterConnectionState }

func (ProfileConnectionStateChanged) event() {}
func (ProfileActiveDeviceChanged) event()    {}
func (HearingAidActiveDeviceChanged) event() {}
func (WiredAudioDeviceConnected) event()     {}
func (AdapterUserTurnOn) event()             {}
func (AdapterUserTurnOff) event()            {}
func (BleTurnOn) event()                     {}
func (BleTurnOff) event()                    {}
func (BleStarted) event()                    {}
func (BleStopped) event()                    {}
func (BredrStarted) event()                  {}
func (BredrStopped) event()                  {}
func (AdapterPowerStateChanged) event()      {}
func (AdapterConnectionStateChanged) event() {}
