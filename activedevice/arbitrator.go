// Package activedevice selects, for each audio profile, which connected
// device receives audio.
//
// The hearing aid profile and the classic audio profiles (A2DP and HFP) are
// mutually exclusive: whenever a hearing aid is active, neither A2DP nor HFP
// has an active device. When an active device disconnects, no replacement is
// chosen automatically.
package activedevice

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/invariant"
	"github.com/bluetuith-org/adapterd/internal/worker"
)

// selectRequest is an explicit user selection of an active device.
type selectRequest struct {
	profile bt.ProfileID
	device  bt.DeviceID
	reply   chan error
}

// Arbitrator applies the active device policy on its own worker.
type Arbitrator struct {
	cfg    config.Configuration
	logger *slog.Logger

	worker *worker.Worker[any]
	sub    eventbus.SubscriberID

	// Owned by the worker.
	policy *policy

	mu   sync.Mutex
	view *policy
}

// New returns a new arbitrator that changes active devices through profiles.
func New(cfg config.Configuration, profiles bt.ProfileController) *Arbitrator {
	cfg = cfg.WithDefaults()

	if profiles == nil {
		profiles = bt.DefaultProfileController{}
	}

	a := &Arbitrator{
		cfg:    cfg,
		logger: cfg.SubsystemLogger("activedevice"),
	}
	a.policy = newPolicy(profiles, a.logger)
	a.view = a.policy.snapshot()
	a.worker = worker.New("activedevice", a.logger, a.process)

	return a
}

// Start starts the arbitrator's worker, and consumes profile, audio route
// and adapter power events from the subscriber, if one is provided.
func (a *Arbitrator) Start(ctx context.Context, subscriber eventbus.EventSubscriber) {
	a.worker.Start(ctx)

	if subscriber == nil {
		return
	}

	a.sub = subscriber.Subscribe(
		bt.EventProfileConnectionState,
		bt.EventProfileActiveDevice,
		bt.EventHearingAidActiveDevice,
		bt.EventWiredAudio,
		bt.EventAdapterPowerState,
	)
	go func() {
		for data := range a.sub.C {
			if ev, ok := data.(bt.Event); ok {
				a.Handle(ev)
			}
		}
	}()
}

// Stop stops accepting events, drains or discards the pending ones
// and releases the profile controller.
func (a *Arbitrator) Stop(mode worker.StopMode) {
	a.sub.Unsubscribe()
	a.worker.Stop(mode)
	a.policy.profiles = bt.DefaultProfileController{}
}

// Handle posts an event to the arbitrator.
func (a *Arbitrator) Handle(ev bt.Event) bool {
	return a.worker.Post(ev)
}

// OnProfileDeviceConnected posts a device connection on profile.
func (a *Arbitrator) OnProfileDeviceConnected(profile bt.ProfileID, device bt.DeviceID) bool {
	return a.Handle(bt.ProfileConnectionStateChanged{
		Profile:   profile,
		Device:    device,
		PrevState: bt.StateConnecting,
		NewState:  bt.StateConnected,
	})
}

// OnProfileDeviceDisconnected posts a device disconnection on profile.
func (a *Arbitrator) OnProfileDeviceDisconnected(profile bt.ProfileID, device bt.DeviceID) bool {
	return a.Handle(bt.ProfileConnectionStateChanged{
		Profile:   profile,
		Device:    device,
		PrevState: bt.StateConnected,
		NewState:  bt.StateDisconnected,
	})
}

// OnProfileActiveDeviceChanged posts an active device change reported by profile.
func (a *Arbitrator) OnProfileActiveDeviceChanged(profile bt.ProfileID, device bt.DeviceID) bool {
	return a.Handle(bt.ProfileActiveDeviceChanged{Profile: profile, Device: device})
}

// OnHearingAidActiveDeviceChanged posts an active hearing aid change.
func (a *Arbitrator) OnHearingAidActiveDeviceChanged(device bt.DeviceID) bool {
	return a.Handle(bt.HearingAidActiveDeviceChanged{Device: device})
}

// OnWiredAudioDeviceConnected posts the appearance of a wired audio route.
func (a *Arbitrator) OnWiredAudioDeviceConnected() bool {
	return a.Handle(bt.WiredAudioDeviceConnected{})
}

// SelectActiveDevice makes a connected device active on profile, as an
// explicit user choice, and waits for the outcome.
func (a *Arbitrator) SelectActiveDevice(ctx context.Context, profile bt.ProfileID, device bt.DeviceID) error {
	if !profile.IsAudio() {
		return errorkinds.ErrInvalidProfile
	}

	req := selectRequest{profile: profile, device: device, reply: make(chan error, 1)}
	if !a.worker.Post(req) {
		return errorkinds.ErrWorkerStopped
	}

	select {
	case err := <-req.reply:
		return err

	case <-a.worker.Done():
		return errorkinds.ErrWorkerStopped

	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveDevices returns the active device of every audio profile.
func (a *Arbitrator) ActiveDevices() ActiveDevices {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.view.active
}

// ActiveDevice returns the active device of profile.
func (a *Arbitrator) ActiveDevice(profile bt.ProfileID) bt.DeviceID {
	return a.ActiveDevices().Get(profile)
}

// ConnectedDevices returns the devices connected on profile, most recent first.
func (a *Arbitrator) ConnectedDevices(profile bt.ProfileID) []bt.DeviceID {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.view.connected[profile])
}

// FallbackDevice returns the most recently connected device of profile,
// as a candidate for an explicit selection.
func (a *Arbitrator) FallbackDevice(profile bt.ProfileID) (bt.DeviceID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.view.fallback(profile)
}

// Sync waits until every event posted before the call has been processed.
func (a *Arbitrator) Sync(ctx context.Context) error {
	return a.worker.Sync(ctx)
}

// Stats returns the worker counters.
func (a *Arbitrator) Stats() worker.Stats {
	return a.worker.Stats()
}

func (a *Arbitrator) process(msg any) {
	switch m := msg.(type) {
	case bt.ProfileConnectionStateChanged:
		if !m.Profile.IsAudio() {
			return
		}

		switch {
		case m.NewState == bt.StateConnected:
			a.policy.onDeviceConnected(m.Profile, m.Device)

		case m.PrevState == bt.StateConnected:
			a.policy.onDeviceDisconnected(m.Profile, m.Device)

		default:
			return
		}

	case bt.ProfileActiveDeviceChanged:
		if !m.Profile.IsAudio() {
			a.logger.Warn("active device change ignored", "profile", m.Profile.String())
			return
		}

		a.policy.onActiveDeviceChanged(m.Profile, m.Device)

	case bt.HearingAidActiveDeviceChanged:
		a.policy.onHearingAidActiveDeviceChanged(m.Device)

	case bt.WiredAudioDeviceConnected:
		a.policy.onWiredAudioDeviceConnected()

	case bt.AdapterPowerStateChanged:
		if m.NewState != bt.PowerOn {
			return
		}

		a.policy.reset()

	case selectRequest:
		err := a.policy.selectDevice(m.profile, m.device)
		if err != nil {
			a.logger.Error("active device selection failed",
				"profile", m.profile.String(),
				"device", m.device.String(),
				"error", err,
			)
		}

		m.reply <- err

	default:
		a.logger.Warn("message ignored", "message", msg)
		return
	}

	if !a.policy.active.Exclusive() {
		invariant.Violation(a.cfg.StrictInvariants, a.logger,
			errorkinds.ErrMutualExclusion, "activedevice-exclusive",
			"a2dp", a.policy.active.A2DP.String(),
			"hfp", a.policy.active.HFP.String(),
			"hearing_aid", a.policy.active.HearingAid.String(),
		)
	}

	a.logger.Debug("active devices",
		"a2dp", a.policy.active.A2DP.String(),
		"hfp", a.policy.active.HFP.String(),
		"hearing_aid", a.policy.active.HearingAid.String(),
	)

	a.mu.Lock()
	a.view = a.policy.snapshot()
	a.mu.Unlock()
}
