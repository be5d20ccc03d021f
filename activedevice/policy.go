package activedevice

import (
	"log/slog"
	"slices"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
)

// ActiveDevices holds the active device of each audio profile.
// A NoDevice entry means the profile has no active device.
type ActiveDevices struct {
	A2DP       bt.DeviceID `json:"a2dp"`
	HFP        bt.DeviceID `json:"hfp"`
	HearingAid bt.DeviceID `json:"hearing_aid"`
}

// Get returns the active device of profile.
func (a ActiveDevices) Get(profile bt.ProfileID) bt.DeviceID {
	switch profile {
	case bt.ProfileA2DP:
		return a.A2DP

	case bt.ProfileHeadset:
		return a.HFP

	case bt.ProfileHearingAid:
		return a.HearingAid
	}

	return bt.NoDevice
}

// Exclusive reports whether the hearing aid and the classic audio
// profiles are not active at the same time.
func (a ActiveDevices) Exclusive() bool {
	return a.HearingAid.IsNil() || (a.A2DP.IsNil() && a.HFP.IsNil())
}

func (a *ActiveDevices) set(profile bt.ProfileID, device bt.DeviceID) {
	switch profile {
	case bt.ProfileA2DP:
		a.A2DP = device

	case bt.ProfileHeadset:
		a.HFP = device

	case bt.ProfileHearingAid:
		a.HearingAid = device
	}
}

// policy is the arbitration state and its rules.
// It is not safe for concurrent use.
type policy struct {
	active    ActiveDevices
	connected map[bt.ProfileID][]bt.DeviceID

	profiles bt.ProfileController
	logger   *slog.Logger
}

func newPolicy(profiles bt.ProfileController, logger *slog.Logger) *policy {
	return &policy{
		connected: make(map[bt.ProfileID][]bt.DeviceID),
		profiles:  profiles,
		logger:    logger,
	}
}

// onDeviceConnected records device as connected on profile, and makes it
// active unless a hearing aid is active. A newly connected hearing aid is
// always made active, and deactivates the classic audio profiles.
func (p *policy) onDeviceConnected(profile bt.ProfileID, device bt.DeviceID) {
	if slices.Contains(p.connected[profile], device) {
		return
	}

	p.connected[profile] = slices.Insert(p.connected[profile], 0, device)

	if profile == bt.ProfileHearingAid {
		if p.setActive(bt.ProfileHearingAid, device) {
			p.clearActive(bt.ProfileA2DP)
			p.clearActive(bt.ProfileHeadset)
		}

		return
	}

	if p.active.HearingAid.IsNil() {
		p.setActive(profile, device)
	}
}

// onDeviceDisconnected forgets device on profile. If it was active, the
// profile is left without an active device.
func (p *policy) onDeviceDisconnected(profile bt.ProfileID, device bt.DeviceID) {
	p.connected[profile] = slices.DeleteFunc(p.connected[profile], func(d bt.DeviceID) bool {
		return d == device
	})

	if p.active.Get(profile) == device {
		p.active.set(profile, bt.NoDevice)
	}
}

// onActiveDeviceChanged records an active device reported by the
// profile itself.
func (p *policy) onActiveDeviceChanged(profile bt.ProfileID, device bt.DeviceID) {
	if profile == bt.ProfileHearingAid {
		p.onHearingAidActiveDeviceChanged(device)
		return
	}

	if !device.IsNil() && device != p.active.Get(profile) {
		p.clearActive(bt.ProfileHearingAid)
	}

	p.active.set(profile, device)
}

// onHearingAidActiveDeviceChanged records the active hearing aid.
func (p *policy) onHearingAidActiveDeviceChanged(device bt.DeviceID) {
	p.active.HearingAid = device

	if !device.IsNil() {
		p.clearActive(bt.ProfileA2DP)
		p.clearActive(bt.ProfileHeadset)
	}
}

// onWiredAudioDeviceConnected deactivates every audio profile.
func (p *policy) onWiredAudioDeviceConnected() {
	p.clearActive(bt.ProfileA2DP)
	p.clearActive(bt.ProfileHeadset)
	p.clearActive(bt.ProfileHearingAid)
}

// reset forgets all connected and active devices.
func (p *policy) reset() {
	p.active = ActiveDevices{}
	clear(p.connected)
}

// selectDevice makes a connected device active on request of the user.
func (p *policy) selectDevice(profile bt.ProfileID, device bt.DeviceID) error {
	if !slices.Contains(p.connected[profile], device) {
		return errorkinds.ErrDeviceNotConnected
	}

	if !p.setActive(profile, device) {
		return errorkinds.ErrActiveDeviceRejected
	}

	if profile == bt.ProfileHearingAid {
		p.clearActive(bt.ProfileA2DP)
		p.clearActive(bt.ProfileHeadset)
	} else {
		p.clearActive(bt.ProfileHearingAid)
	}

	return nil
}

// setActive asks the profile to activate device, and records it on success.
func (p *policy) setActive(profile bt.ProfileID, device bt.DeviceID) bool {
	if !p.profiles.SetActiveDevice(profile, device) {
		p.logger.Error("active device not set",
			"profile", profile.String(),
			"device", device.String(),
			"error", errorkinds.ErrActiveDeviceRejected,
		)

		return false
	}

	p.active.set(profile, device)

	return true
}

// clearActive asks the profile to drop its active device. The local entry
// is cleared even if the profile refuses, so that the hearing aid and
// classic audio entries never overlap.
func (p *policy) clearActive(profile bt.ProfileID) {
	if !p.profiles.SetActiveDevice(profile, bt.NoDevice) {
		p.logger.Warn("active device not cleared",
			"profile", profile.String(),
			"error", errorkinds.ErrActiveDeviceRejected,
		)
	}

	p.active.set(profile, bt.NoDevice)
}

// fallback returns the most recently connected device of profile.
func (p *policy) fallback(profile bt.ProfileID) (bt.DeviceID, bool) {
	if devices := p.connected[profile]; len(devices) > 0 {
		return devices[0], true
	}

	return bt.NoDevice, false
}

// snapshot returns a deep copy of the arbitration state.
func (p *policy) snapshot() *policy {
	s := &policy{
		active:    p.active,
		connected: make(map[bt.ProfileID][]bt.DeviceID, len(p.connected)),
	}

	for profile, devices := range p.connected {
		s.connected[profile] = slices.Clone(devices)
	}

	return s
}
