// Package service assembles the event bus, the power state machine, the
// connection aggregator and the active device arbitrator into an adapter
// service.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bluetuith-org/adapterd/activedevice"
	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/connstate"
	"github.com/bluetuith-org/adapterd/internal/worker"
	"github.com/bluetuith-org/adapterd/powerstate"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Collaborators holds the external controllers the service drives.
type Collaborators struct {
	Radio     bt.RadioController
	Lifecycle bt.ProfileLifecycleController
	Profiles  bt.ProfileController
}

// Status is a point-in-time view of the adapter.
type Status struct {
	Power         bt.AdapterPowerState       `json:"power"`
	Connection    bt.ConnState               `json:"connection"`
	ActiveDevices activedevice.ActiveDevices `json:"active_devices"`
}

// Service is an adapter service.
type Service struct {
	cfg    config.Configuration
	logger *slog.Logger

	bus     *eventbus.Bus
	ownsBus bool

	power       *powerstate.Machine
	connections *connstate.Aggregator
	active      *activedevice.Arbitrator

	// Enable and disable intents, applied when the machine
	// reaches a state where the next step can be requested.
	wantOn  atomic.Bool
	wantBle atomic.Bool
	wantOff atomic.Bool

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// New returns a new adapter service. If bus is nil, the service creates
// and owns one.
func New(cfg config.Configuration, bus *eventbus.Bus, c Collaborators) *Service {
	cfg = cfg.WithDefaults()

	s := &Service{
		cfg:    cfg,
		logger: cfg.SubsystemLogger("service"),
		bus:    bus,
	}

	if s.bus == nil {
		s.bus = eventbus.New(cfg.EventBufferSize)
		s.ownsBus = true
	}

	s.power = powerstate.New(cfg, c.Radio, c.Lifecycle, bt.AdapterStateObserverFunc(s.onAdapterStateChanged))
	s.connections = connstate.New(cfg, s.bus)
	s.active = activedevice.New(cfg, c.Profiles)

	return s
}

// Start starts all components.
func (s *Service) Start(ctx context.Context) error {
	if s.started.Swap(true) {
		return fault.Wrap(errorkinds.ErrServiceStarted,
			fctx.With(context.Background(), "error_at", "service-start"),
			ftag.With(ftag.AlreadyExists),
			fmsg.With("Service is already started"),
		)
	}

	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.connections.Start(ctx, s.bus)
	s.active.Start(ctx, s.bus)
	s.power.Start(ctx, s.bus)

	s.logger.Info("service started")

	return nil
}

// Stop stops all components, handling or dropping pending events
// according to mode, and shuts down the bus if the service owns it.
func (s *Service) Stop(mode worker.StopMode) error {
	if !s.started.Load() || s.stopped.Swap(true) {
		return fault.Wrap(errorkinds.ErrServiceStopped,
			fctx.With(context.Background(), "error_at", "service-stop"),
			ftag.With(ftag.NotFound),
			fmsg.With("Service is not running"),
		)
	}

	var g errgroup.Group
	g.Go(func() error { s.power.Stop(mode); return nil })
	g.Go(func() error { s.connections.Stop(mode); return nil })
	g.Go(func() error { s.active.Stop(mode); return nil })
	err := g.Wait()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.ownsBus {
		s.bus.Shutdown()
	}

	s.logger.Info("service stopped")

	return err
}

// Enable powers the adapter fully on: BLE first, then BR/EDR.
func (s *Service) Enable() {
	s.wantOff.Store(false)
	s.wantOn.Store(true)

	switch s.power.State() {
	case bt.PowerOff:
		s.publish(bt.BleTurnOn{})

	case bt.PowerBleOn:
		s.publish(bt.AdapterUserTurnOn{})
	}
}

// EnableBle powers BLE on, without BR/EDR.
func (s *Service) EnableBle() {
	s.wantBle.Store(true)

	if s.power.State() == bt.PowerOff {
		s.publish(bt.BleTurnOn{})
	}
}

// Disable powers BR/EDR off, and BLE as well unless it was enabled on its own.
func (s *Service) Disable() {
	s.wantOn.Store(false)
	s.wantOff.Store(true)

	switch s.power.State() {
	case bt.PowerOn:
		s.publish(bt.AdapterUserTurnOff{})

	case bt.PowerBleOn:
		if !s.wantBle.Load() {
			s.publish(bt.BleTurnOff{})
		}
	}
}

// DisableBle withdraws a BLE-only request. BLE is powered off if
// BR/EDR is not enabled.
func (s *Service) DisableBle() {
	s.wantBle.Store(false)

	if s.power.State() == bt.PowerBleOn && !s.wantOn.Load() {
		s.publish(bt.BleTurnOff{})
	}
}

// SelectActiveDevice makes a connected device the active device of an
// audio profile, as an explicit user choice.
func (s *Service) SelectActiveDevice(ctx context.Context, profile bt.ProfileID, device bt.DeviceID) error {
	return s.active.SelectActiveDevice(ctx, profile, device)
}

// Bus returns the event bus of the service.
func (s *Service) Bus() *eventbus.Bus {
	return s.bus
}

// Power returns the power state machine.
func (s *Service) Power() *powerstate.Machine {
	return s.power
}

// Connections returns the connection aggregator.
func (s *Service) Connections() *connstate.Aggregator {
	return s.connections
}

// ActiveDevices returns the active device arbitrator.
func (s *Service) ActiveDevices() *activedevice.Arbitrator {
	return s.active
}

// Status returns the current state of every component.
func (s *Service) Status() Status {
	return Status{
		Power:         s.power.State(),
		Connection:    s.connections.ConnectionState(),
		ActiveDevices: s.active.ActiveDevices(),
	}
}

// Sync waits until every component has processed the events posted to it
// before the call. Events still in flight on the bus are not covered.
func (s *Service) Sync(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.power.Sync(ctx) })
	g.Go(func() error { return s.connections.Sync(ctx) })
	g.Go(func() error { return s.active.Sync(ctx) })

	return g.Wait()
}

// onAdapterStateChanged runs on the power state machine worker.
func (s *Service) onAdapterStateChanged(prev, next bt.AdapterPowerState) {
	s.logger.Info("adapter power state changed", "prev", prev.String(), "next", next.String())
	s.publish(bt.AdapterPowerStateChanged{PrevState: prev, NewState: next})

	switch next {
	case bt.PowerBleOn:
		switch {
		case s.wantOn.Load():
			s.publish(bt.AdapterUserTurnOn{})

		case s.wantOff.Load() && !s.wantBle.Load():
			s.publish(bt.BleTurnOff{})
		}

	case bt.PowerOn:
		s.wantOn.Store(false)
		if s.wantOff.Load() {
			s.publish(bt.AdapterUserTurnOff{})
		}

	case bt.PowerOff:
		s.wantOff.Store(false)
	}
}

func (s *Service) publish(ev bt.Event) {
	bt.Publish(s.bus, ev)
}
