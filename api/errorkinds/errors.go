package errorkinds

import "errors"

// The different general error types.
var (
	ErrMethodCall     = errors.New("cannot call method")
	ErrMethodTimeout  = errors.New("timeout on method response")
	ErrNotSupported   = errors.New("this functionality is not supported")
	ErrWorkerStopped  = errors.New("worker is not accepting events")
	ErrServiceStarted = errors.New("service is already started")
	ErrServiceStopped = errors.New("service is not running")

	ErrInvalidAddress = errors.New("invalid Bluetooth address")
	ErrInvalidProfile = errors.New("invalid Bluetooth profile")
	ErrInvalidEvent   = errors.New("invalid event")

	ErrAdapterNotFound = errors.New("adapter not found")
	ErrRadioCall       = errors.New("radio controller call failed")
	ErrLifecycleCall   = errors.New("profile lifecycle call failed")

	ErrActiveDeviceRejected = errors.New("profile rejected the active device")
	ErrDeviceNotConnected   = errors.New("device is not connected on this profile")
)

// Programming-invariant violations.
var (
	ErrCounterUnderflow  = errors.New("profile connection counter underflow")
	ErrUnhandledMessage  = errors.New("message is not handled in the current state")
	ErrInvalidConnState  = errors.New("invalid connection state")
	ErrInvalidTransition = errors.New("unexpected connection state transition")
	ErrMutualExclusion   = errors.New("hearing aid and classic audio devices are both active")
)
