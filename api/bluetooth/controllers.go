package bluetooth

// RadioController powers the BLE part of the radio up and down.
// Completion is reported asynchronously with BleStarted and BleStopped events.
type RadioController interface {
	// BringUpBle starts powering up BLE.
	BringUpBle() error

	// BringDownBle starts powering down BLE.
	BringDownBle() error
}

// ProfileLifecycleController starts and stops the profile services.
// Completion is reported asynchronously with BredrStarted and BredrStopped events.
type ProfileLifecycleController interface {
	// StartProfileServices starts all profile services.
	StartProfileServices() error

	// StopProfileServices stops all profile services.
	StopProfileServices() error
}

// ProfileController changes the active device of an audio profile.
type ProfileController interface {
	// SetActiveDevice makes device the active device of profile.
	// NoDevice clears the active device. It reports whether the
	// profile accepted the change.
	SetActiveDevice(profile ProfileID, device DeviceID) bool
}

// AdapterStateObserver is notified on every power state entry.
type AdapterStateObserver interface {
	OnAdapterStateChanged(prev, next AdapterPowerState)
}

// AdapterStateObserverFunc adapts a function to an AdapterStateObserver.
type AdapterStateObserverFunc func(prev, next AdapterPowerState)

// OnAdapterStateChanged calls f(prev, next).
func (f AdapterStateObserverFunc) OnAdapterStateChanged(prev, next AdapterPowerState) {
	f(prev, next)
}

// DefaultProfileController accepts every active device change.
type DefaultProfileController struct{}

// SetActiveDevice accepts all active device changes.
func (DefaultProfileController) SetActiveDevice(ProfileID, DeviceID) bool {
	return true
}
