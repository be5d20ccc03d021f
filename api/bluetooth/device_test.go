package bluetooth

import (
	"testing"

	"github.com/bluetuith-org/adapterd/api/errorkinds"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceID(t *testing.T) {
	d, err := ParseDeviceID("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)

	assert.False(t, d.IsNil())
	assert.Equal(t, "AA:BB:CC:DD:EE:01", d.String())
	assert.Equal(t, byte(0x01), d[0])
	assert.Equal(t, byte(0xAA), d[5])
}

func TestParseDeviceID_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"AA:BB:CC:DD:EE",
		"AA:BB:CC:DD:EE:0G",
		"AA-BB-CC-DD-EE-01",
		"AA:BB:CC:DD:EE:011",
	} {
		_, err := ParseDeviceID(s)
		assert.ErrorIs(t, err, errorkinds.ErrInvalidAddress, s)
	}
}

func TestDeviceID_NoDevice(t *testing.T) {
	assert.True(t, NoDevice.IsNil())
	assert.Equal(t, "none", NoDevice.String())

	text, err := NoDevice.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text)

	d := MustParseDeviceID("AA:BB:CC:DD:EE:01")
	require.NoError(t, d.UnmarshalText(nil))
	assert.True(t, d.IsNil())
}

func TestDeviceID_Text(t *testing.T) {
	d := MustParseDeviceID("AA:BB:CC:DD:EE:01")

	text, err := d.MarshalText()
	require.NoError(t, err)

	var back DeviceID
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d, back)
}

func TestMustParseDeviceID_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustParseDeviceID("not an address")
	})
}
