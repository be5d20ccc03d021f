package bluetooth

import (
	"strings"

	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/google/uuid"
)

// ProfileID identifies a Bluetooth profile.
type ProfileID uint8

// The different profile identifiers.
const (
	ProfileNone ProfileID = iota // The zero value for this type.
	ProfileHeadset
	ProfileA2DP
	ProfileHIDHost
	ProfilePAN
	ProfilePBAP
	ProfileMAP
	ProfileSAP
	ProfileA2DPSink
	ProfileAVRCPController
	ProfileHeadsetClient
	ProfilePBAPClient
	ProfileMAPClient
	ProfileHearingAid
)

// ProfileHFP is an alias for the headset (hands-free audio gateway) profile.
const ProfileHFP = ProfileHeadset

type profileInfo struct {
	name string
	uuid uuid.UUID
}

// profiles maps each profile to its name and the service class UUID
// advertised by the local side of that profile.
var profiles = map[ProfileID]profileInfo{
	ProfileHeadset:         {"hfp", uuid.MustParse("0000111f-0000-1000-8000-00805f9b34fb")},
	ProfileA2DP:            {"a2dp", uuid.MustParse("0000110a-0000-1000-8000-00805f9b34fb")},
	ProfileHIDHost:         {"hid-host", uuid.MustParse("00001124-0000-1000-8000-00805f9b34fb")},
	ProfilePAN:             {"pan", uuid.MustParse("00001116-0000-1000-8000-00805f9b34fb")},
	ProfilePBAP:            {"pbap", uuid.MustParse("0000112f-0000-1000-8000-00805f9b34fb")},
	ProfileMAP:             {"map", uuid.MustParse("00001132-0000-1000-8000-00805f9b34fb")},
	ProfileSAP:             {"sap", uuid.MustParse("0000112d-0000-1000-8000-00805f9b34fb")},
	ProfileA2DPSink:        {"a2dp-sink", uuid.MustParse("0000110b-0000-1000-8000-00805f9b34fb")},
	ProfileAVRCPController: {"avrcp-controller", uuid.MustParse("0000110f-0000-1000-8000-00805f9b34fb")},
	ProfileHeadsetClient:   {"hfp-client", uuid.MustParse("0000111e-0000-1000-8000-00805f9b34fb")},
	ProfilePBAPClient:      {"pbap-client", uuid.MustParse("0000112e-0000-1000-8000-00805f9b34fb")},
	ProfileMAPClient:       {"map-client", uuid.MustParse("00001133-0000-1000-8000-00805f9b34fb")},
	ProfileHearingAid:      {"hearing-aid", uuid.MustParse("0000fdf0-0000-1000-8000-00805f9b34fb")},
}

// Profiles returns all known profiles, in identifier order.
func Profiles() []ProfileID {
	ids := make([]ProfileID, 0, len(profiles))
	for p := ProfileHeadset; p <= ProfileHearingAid; p++ {
		ids = append(ids, p)
	}

	return ids
}

// ParseProfile parses a profile from its name (for example "a2dp")
// or its service class UUID.
func ParseProfile(s string) (ProfileID, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if u, err := uuid.Parse(s); err == nil {
		return ProfileFromUUID(u)
	}

	for id, info := range profiles {
		if info.name == s {
			return id, nil
		}
	}

	return ProfileNone, errorkinds.ErrInvalidProfile
}

// ProfileFromUUID returns the profile advertised with the provided service class UUID.
func ProfileFromUUID(u uuid.UUID) (ProfileID, error) {
	for id, info := range profiles {
		if info.uuid == u {
			return id, nil
		}
	}

	return ProfileNone, errorkinds.ErrInvalidProfile
}

// Valid reports whether p is a known profile.
func (p ProfileID) Valid() bool {
	_, ok := profiles[p]
	return ok
}

// IsAudio reports whether p takes part in active device arbitration.
func (p ProfileID) IsAudio() bool {
	return p == ProfileA2DP || p == ProfileHeadset || p == ProfileHearingAid
}

// UUID returns the service class UUID of the profile.
func (p ProfileID) UUID() uuid.UUID {
	return profiles[p].uuid
}

// String returns the name of the profile.
func (p ProfileID) String() string {
	if info, ok := profiles[p]; ok {
		return info.name
	}

	return "none"
}

// MarshalText implements encoding.TextMarshaler.
func (p ProfileID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProfileID) UnmarshalText(data []byte) error {
	id, err := ParseProfile(string(data))
	if err != nil {
		return err
	}

	*p = id

	return nil
}
