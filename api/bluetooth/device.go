package bluetooth

import (
	"bytes"

	"github.com/bluetuith-org/adapterd/api/errorkinds"
)

// DeviceID identifies a remote device by its Bluetooth address.
// The zero value (00:00:00:00:00:00) means "no device".
type DeviceID [NumAddressBytes]byte

const (
	// MaxAddressStringLength is the maximum length of a Bluetooth address string (with ':').
	MaxAddressStringLength = 17

	// NumAddressBytes is the total number of bytes in a DeviceID.
	NumAddressBytes = 6
)

// NoDevice is the empty device identifier.
var NoDevice DeviceID

// ParseDeviceID parses an address in the 11:22:33:AA:BB:CC format.
func ParseDeviceID(s string) (DeviceID, error) {
	return parseAddress([]byte(s))
}

// MustParseDeviceID is like ParseDeviceID, but panics on malformed input.
func MustParseDeviceID(s string) DeviceID {
	d, err := ParseDeviceID(s)
	if err != nil {
		panic(err)
	}

	return d
}

// IsNil reports whether d is the empty device identifier.
func (d DeviceID) IsNil() bool {
	return d == NoDevice
}

// String returns the address in the 11:22:33:AA:BB:CC format,
// or "none" for the empty identifier.
func (d DeviceID) String() string {
	if d.IsNil() {
		return "none"
	}

	return d.buffer().String()
}

// MarshalText implements encoding.TextMarshaler.
func (d DeviceID) MarshalText() ([]byte, error) {
	if d.IsNil() {
		return []byte{}, nil
	}

	return d.buffer().Bytes(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// An empty string decodes to NoDevice.
func (d *DeviceID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = NoDevice
		return nil
	}

	id, err := parseAddress(data)
	if err != nil {
		return err
	}

	*d = id

	return nil
}

func (d DeviceID) buffer() *bytes.Buffer {
	const hex = "0123456789ABCDEF"

	s := bytes.NewBuffer(make([]byte, 0, MaxAddressStringLength))
	for i := NumAddressBytes - 1; i >= 0; i-- {
		if i != NumAddressBytes-1 {
			s.WriteByte(':')
		}

		s.WriteByte(hex[d[i]>>4])
		s.WriteByte(hex[d[i]&0x0f])
	}

	return s
}

// parseAddress stores the most significant octet last, so that the
// textual form reads the bytes in reverse.
func parseAddress(data []byte) (DeviceID, error) {
	var id DeviceID

	if len(data) != MaxAddressStringLength {
		return id, errorkinds.ErrInvalidAddress
	}

	for octet := 0; octet < NumAddressBytes; octet++ {
		pos := octet * 3
		if octet > 0 && data[pos-1] != ':' {
			return id, errorkinds.ErrInvalidAddress
		}

		hi, ok := nibble(data[pos])
		if !ok {
			return id, errorkinds.ErrInvalidAddress
		}

		lo, ok := nibble(data[pos+1])
		if !ok {
			return id, errorkinds.ErrInvalidAddress
		}

		id[NumAddressBytes-1-octet] = hi<<4 | lo
	}

	return id, nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 0xA, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 0xA, true
	}

	return 0, false
}
