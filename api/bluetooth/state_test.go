package bluetooth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnState_Text(t *testing.T) {
	for _, s := range []ConnState{StateDisconnected, StateConnecting, StateConnected, StateDisconnecting} {
		require.True(t, s.Valid())

		text, err := s.MarshalText()
		require.NoError(t, err)

		var back ConnState
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	assert.False(t, ConnState(9).Valid())
	assert.Equal(t, "invalid", ConnState(9).String())

	var c ConnState
	assert.Error(t, c.UnmarshalText([]byte("linked")))
}

func TestIsNormalTransition(t *testing.T) {
	normal := [][2]ConnState{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnecting, StateDisconnected},
		{StateConnected, StateDisconnecting},
		{StateDisconnecting, StateDisconnected},
		{StateDisconnecting, StateConnected},
	}

	for _, pair := range normal {
		assert.True(t, IsNormalTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	assert.False(t, IsNormalTransition(StateDisconnected, StateConnected))
	assert.False(t, IsNormalTransition(StateConnected, StateDisconnected))
	assert.False(t, IsNormalTransition(StateConnected, StateConnected))
}

func TestAdapterPowerState(t *testing.T) {
	transitional := map[AdapterPowerState]bool{
		PowerTurningBleOn:  true,
		PowerTurningOn:     true,
		PowerTurningOff:    true,
		PowerTurningBleOff: true,
	}

	for s := PowerOff; s <= PowerTurningBleOff; s++ {
		assert.Equal(t, transitional[s], s.IsTransitional(), s.String())

		text, err := s.MarshalText()
		require.NoError(t, err)

		var back AdapterPowerState
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
}

func TestEventTopics(t *testing.T) {
	events := map[Event]EventID{
		ProfileConnectionStateChanged{}: EventProfileConnectionState,
		ProfileActiveDeviceChanged{}:    EventProfileActiveDevice,
		HearingAidActiveDeviceChanged{}: EventHearingAidActiveDevice,
		WiredAudioDeviceConnected{}:     EventWiredAudio,
		AdapterUserTurnOn{}:             EventAdapterRequest,
		BleTurnOff{}:                    EventAdapterRequest,
		BleStarted{}:                    EventRadio,
		BredrStopped{}:                  EventRadio,
		AdapterPowerStateChanged{}:      EventAdapterPowerState,
		AdapterConnectionStateChanged{}: EventAdapterConnectionState,
	}

	for ev, id := range events {
		assert.Equal(t, id, ev.EventID())
		assert.NotEmpty(t, id.String())
	}
}
