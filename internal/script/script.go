// Package script decodes and plays event scripts: streams of JSON records
// that either publish an event on the bus or invoke an adapter command.
//
// A record looks like:
//
//	{"event": "profile_connection_state_changed", "delay_ms": 10,
//	 "data": {"profile": "a2dp", "device": "AA:BB:CC:DD:EE:01",
//	          "prev_state": "connecting", "new_state": "connected"}}
package script

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/serde"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/ugorji/go/codec"
)

// Record is a single entry of a script.
type Record struct {
	Event   string    `json:"event"`
	Data    codec.Raw `json:"data,omitempty"`
	DelayMs int64     `json:"delay_ms,omitempty"`
}

// Command is an adapter command invoked by a script.
type Command string

// The different script commands.
const (
	CommandNone               Command = ""
	CommandEnable             Command = "enable"
	CommandDisable            Command = "disable"
	CommandEnableBle          Command = "enable_ble"
	CommandDisableBle         Command = "disable_ble"
	CommandSelectActiveDevice Command = "select_active_device"
	CommandSync               Command = "sync"
)

// Selection holds the arguments of CommandSelectActiveDevice.
type Selection struct {
	Profile bt.ProfileID `json:"profile"`
	Device  bt.DeviceID  `json:"device"`
}

// Step is a decoded record. Exactly one of Event and Command is set.
type Step struct {
	Delay     time.Duration
	Event     bt.Event
	Command   Command
	Selection Selection
}

// Target receives the commands of a script.
type Target interface {
	Enable()
	Disable()
	EnableBle()
	DisableBle()
	SelectActiveDevice(ctx context.Context, profile bt.ProfileID, device bt.DeviceID) error
	Sync(ctx context.Context) error
}

type eventDecoder func(data codec.Raw) (bt.Event, error)

var eventDecoders = map[string]eventDecoder{
	"profile_connection_state_changed":  decodeEvent[bt.ProfileConnectionStateChanged],
	"profile_active_device_changed":     decodeEvent[bt.ProfileActiveDeviceChanged],
	"hearing_aid_active_device_changed": decodeEvent[bt.HearingAidActiveDeviceChanged],
	"wired_audio_device_connected":      decodeEvent[bt.WiredAudioDeviceConnected],
	"adapter_user_turn_on":              decodeEvent[bt.AdapterUserTurnOn],
	"adapter_user_turn_off":             decodeEvent[bt.AdapterUserTurnOff],
	"ble_turn_on":                       decodeEvent[bt.BleTurnOn],
	"ble_turn_off":                      decodeEvent[bt.BleTurnOff],
	"ble_started":                       decodeEvent[bt.BleStarted],
	"ble_stopped":                       decodeEvent[bt.BleStopped],
	"bredr_started":                     decodeEvent[bt.BredrStarted],
	"bredr_stopped":                     decodeEvent[bt.BredrStopped],
}

var commands = map[Command]struct{}{
	CommandEnable:             {},
	CommandDisable:            {},
	CommandEnableBle:          {},
	CommandDisableBle:         {},
	CommandSelectActiveDevice: {},
	CommandSync:               {},
}

// Decode reads every record from r.
func Decode(r io.Reader) ([]Step, error) {
	var steps []Step

	decoder := serde.NewStreamDecoder(r)
	for n := 1; ; n++ {
		var record Record

		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			return steps, nil
		}
		if err != nil {
			return nil, fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "script-decode", "record", strconv.Itoa(n)),
				ftag.With(ftag.InvalidArgument),
				fmsg.With("Malformed script record"),
			)
		}

		step, err := record.Step()
		if err != nil {
			return nil, fault.Wrap(err,
				fctx.With(context.Background(),
					"error_at", "script-decode-step",
					"record", strconv.Itoa(n),
					"event", record.Event,
				),
				ftag.With(ftag.InvalidArgument),
				fmsg.With("Invalid script record"),
			)
		}

		steps = append(steps, step)
	}
}

// Step converts the record into a step.
func (r Record) Step() (Step, error) {
	step := Step{Delay: time.Duration(r.DelayMs) * time.Millisecond}
	if r.DelayMs < 0 {
		return step, errorkinds.ErrInvalidEvent
	}

	if decode, ok := eventDecoders[r.Event]; ok {
		ev, err := decode(r.Data)
		if err != nil {
			return step, err
		}

		step.Event = ev
		return step, nil
	}

	command := Command(r.Event)
	if _, ok := commands[command]; !ok {
		return step, errorkinds.ErrInvalidEvent
	}

	step.Command = command
	if command != CommandSelectActiveDevice {
		return step, nil
	}

	if err := decodeData(r.Data, &step.Selection); err != nil {
		return step, err
	}
	if !step.Selection.Profile.IsAudio() {
		return step, errorkinds.ErrInvalidProfile
	}

	return step, nil
}

// Play runs the steps in order. Events are published on publisher, and
// commands are invoked on target. A failed selection is reported through
// onError and does not stop the script.
func Play(ctx context.Context, steps []Step, publisher eventbus.EventPublisher, target Target, onError func(Step, error)) error {
	for _, step := range steps {
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if step.Event != nil {
			bt.Publish(publisher, step.Event)
			continue
		}

		switch step.Command {
		case CommandEnable:
			target.Enable()

		case CommandDisable:
			target.Disable()

		case CommandEnableBle:
			target.EnableBle()

		case CommandDisableBle:
			target.DisableBle()

		case CommandSelectActiveDevice:
			err := target.SelectActiveDevice(ctx, step.Selection.Profile, step.Selection.Device)
			if err != nil && onError != nil {
				onError(step, err)
			}

		case CommandSync:
			if err := target.Sync(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func decodeEvent[T bt.Event](data codec.Raw) (bt.Event, error) {
	var ev T
	if err := decodeData(data, &ev); err != nil {
		return nil, err
	}

	if c, ok := any(ev).(bt.ProfileConnectionStateChanged); ok && !c.Profile.Valid() {
		return nil, errorkinds.ErrInvalidProfile
	}

	return ev, nil
}

func decodeData[T any](data codec.Raw, v *T) error {
	if len(data) == 0 {
		return nil
	}

	return serde.UnmarshalJson(data, v)
}
