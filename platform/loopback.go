package platform

import (
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/eventbus"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// loopback reports completion of a request on the bus, after a delay.
type loopback struct {
	publisher eventbus.EventPublisher
	delay     time.Duration

	failure atomic.Error
	silent  atomic.Bool
}

func (l *loopback) init(publisher eventbus.EventPublisher, delay time.Duration) {
	if publisher == nil {
		publisher = eventbus.NilHandler()
	}

	l.publisher = publisher
	l.delay = delay
}

// SetFailure makes every following request fail with err.
// A nil error restores normal operation.
func (l *loopback) SetFailure(err error) {
	l.failure.Store(err)
}

// SetSilent makes the following requests succeed without ever
// reporting completion.
func (l *loopback) SetSilent(silent bool) {
	l.silent.Store(silent)
}

func (l *loopback) complete(ev bt.Event) error {
	if err := l.failure.Load(); err != nil {
		return err
	}

	if l.silent.Load() {
		return nil
	}

	if l.delay <= 0 {
		bt.Publish(l.publisher, ev)
		return nil
	}

	time.AfterFunc(l.delay, func() {
		bt.Publish(l.publisher, ev)
	})

	return nil
}

// LoopbackRadio is a radio without hardware.
type LoopbackRadio struct {
	loopback
}

// NewLoopbackRadio returns a radio that reports BleStarted and BleStopped
// to publisher after delay.
func NewLoopbackRadio(publisher eventbus.EventPublisher, delay time.Duration) *LoopbackRadio {
	r := &LoopbackRadio{}
	r.init(publisher, delay)

	return r
}

// BringUpBle reports BleStarted.
func (r *LoopbackRadio) BringUpBle() error {
	return r.complete(bt.BleStarted{})
}

// BringDownBle reports BleStopped.
func (r *LoopbackRadio) BringDownBle() error {
	return r.complete(bt.BleStopped{})
}

// LoopbackLifecycle is a profile lifecycle without profile services.
type LoopbackLifecycle struct {
	loopback
}

// NewLoopbackLifecycle returns a lifecycle that reports BredrStarted and
// BredrStopped to publisher after delay.
func NewLoopbackLifecycle(publisher eventbus.EventPublisher, delay time.Duration) *LoopbackLifecycle {
	l := &LoopbackLifecycle{}
	l.init(publisher, delay)

	return l
}

// StartProfileServices reports BredrStarted.
func (l *LoopbackLifecycle) StartProfileServices() error {
	return l.complete(bt.BredrStarted{})
}

// StopProfileServices reports BredrStopped.
func (l *LoopbackLifecycle) StopProfileServices() error {
	return l.complete(bt.BredrStopped{})
}

// Profiles records the active device of each profile.
type Profiles struct {
	active   *xsync.MapOf[bt.ProfileID, bt.DeviceID]
	rejected *xsync.MapOf[bt.ProfileID, struct{}]
	calls    *xsync.Counter
}

// NewProfiles returns a profile controller that accepts every change.
func NewProfiles() *Profiles {
	return &Profiles{
		active:   xsync.NewMapOf[bt.ProfileID, bt.DeviceID](),
		rejected: xsync.NewMapOf[bt.ProfileID, struct{}](),
		calls:    xsync.NewCounter(),
	}
}

// SetActiveDevice records device as the active device of profile,
// unless the profile rejects changes.
func (p *Profiles) SetActiveDevice(profile bt.ProfileID, device bt.DeviceID) bool {
	p.calls.Inc()

	if _, ok := p.rejected.Load(profile); ok {
		return false
	}

	if device.IsNil() {
		p.active.Delete(profile)
	} else {
		p.active.Store(profile, device)
	}

	return true
}

// Reject makes profile refuse, or accept again, active device changes.
func (p *Profiles) Reject(profile bt.ProfileID, reject bool) {
	if reject {
		p.rejected.Store(profile, struct{}{})
		return
	}

	p.rejected.Delete(profile)
}

// ActiveDevice returns the device last accepted as active on profile.
func (p *Profiles) ActiveDevice(profile bt.ProfileID) bt.DeviceID {
	device, _ := p.active.Load(profile)
	return device
}

// Calls returns the number of active device changes requested so far.
func (p *Profiles) Calls() int64 {
	return p.calls.Value()
}
