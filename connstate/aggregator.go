// Package connstate aggregates per-profile connection events into a single
// adapter-wide connection state.
package connstate

import (
	"context"
	"log/slog"
	"sync"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/invariant"
	"github.com/bluetuith-org/adapterd/internal/worker"
)

// Aggregator consumes profile connection events on its own worker, and
// publishes AdapterConnectionStateChanged when the derived state changes.
type Aggregator struct {
	cfg    config.Configuration
	logger *slog.Logger

	publisher eventbus.EventPublisher
	worker    *worker.Worker[bt.Event]
	sub       eventbus.SubscriberID

	// Owned by the worker.
	tracker *tracker

	mu   sync.Mutex
	view *tracker
}

// New returns a new aggregator that publishes state changes to publisher.
func New(cfg config.Configuration, publisher eventbus.EventPublisher) *Aggregator {
	cfg = cfg.WithDefaults()

	if publisher == nil {
		publisher = eventbus.NilHandler()
	}

	a := &Aggregator{
		cfg:       cfg,
		logger:    cfg.SubsystemLogger("connstate"),
		publisher: publisher,
		tracker:   newTracker(),
		view:      newTracker(),
	}
	a.worker = worker.New("connstate", a.logger, a.process)

	return a
}

// Start starts the aggregator's worker, and consumes profile connection and
// adapter power events from the subscriber, if one is provided.
func (a *Aggregator) Start(ctx context.Context, subscriber eventbus.EventSubscriber) {
	a.worker.Start(ctx)

	if subscriber == nil {
		return
	}

	a.sub = subscriber.Subscribe(bt.EventProfileConnectionState, bt.EventAdapterPowerState)
	go func() {
		for data := range a.sub.C {
			if ev, ok := data.(bt.Event); ok {
				a.Handle(ev)
			}
		}
	}()
}

// Stop stops accepting events, drains or discards the pending ones
// and releases the publisher.
func (a *Aggregator) Stop(mode worker.StopMode) {
	a.sub.Unsubscribe()
	a.worker.Stop(mode)
	a.publisher = eventbus.NilHandler()
}

// OnProfileConnectionChanged posts a connection state change of a profile to a device.
func (a *Aggregator) OnProfileConnectionChanged(profile bt.ProfileID, device bt.DeviceID, prev, next bt.ConnState) bool {
	return a.Handle(bt.ProfileConnectionStateChanged{
		Profile:   profile,
		Device:    device,
		PrevState: prev,
		NewState:  next,
	})
}

// Handle posts an event to the aggregator.
func (a *Aggregator) Handle(ev bt.Event) bool {
	return a.worker.Post(ev)
}

// ConnectionState returns the adapter-wide connection state.
func (a *Aggregator) ConnectionState() bt.ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.view.state
}

// Counters returns the connection counters of profile.
func (a *Aggregator) Counters(profile bt.ProfileID) Counters {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.view.counters[profile]; ok {
		return *c
	}

	return Counters{}
}

// ProfileConnectionState returns the aggregate connection state of profile
// across all of its devices.
func (a *Aggregator) ProfileConnectionState(profile bt.ProfileID) bt.ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.view.profileState(profile)
}

// Sync waits until every event posted before the call has been processed.
func (a *Aggregator) Sync(ctx context.Context) error {
	return a.worker.Sync(ctx)
}

// Stats returns the worker counters.
func (a *Aggregator) Stats() worker.Stats {
	return a.worker.Stats()
}

func (a *Aggregator) process(ev bt.Event) {
	switch e := ev.(type) {
	case bt.ProfileConnectionStateChanged:
		a.onConnectionChanged(e)

	case bt.AdapterPowerStateChanged:
		if e.NewState == bt.PowerOn {
			a.logger.Debug("counters reset", "prev", e.PrevState.String())
			a.tracker = newTracker()
		}

	default:
		a.logger.Warn("event ignored", "event", ev.EventID().String())
		return
	}

	a.mu.Lock()
	a.view = a.tracker.snapshot()
	a.mu.Unlock()
}

func (a *Aggregator) onConnectionChanged(e bt.ProfileConnectionStateChanged) {
	attrs := []any{
		"profile", e.Profile.String(),
		"device", e.Device.String(),
		"prev", e.PrevState.String(),
		"next", e.NewState.String(),
	}

	switch {
	case !e.PrevState.Valid() || !e.NewState.Valid():
		a.logger.Error("event dropped", append(attrs, "error", errorkinds.ErrInvalidConnState)...)
		return

	case !bt.IsNormalTransition(e.PrevState, e.NewState):
		a.logger.Warn("unexpected transition", append(attrs, "error", errorkinds.ErrInvalidTransition)...)
	}

	out := a.tracker.apply(e.Profile, e.PrevState, e.NewState)
	if out.underflow {
		invariant.Violation(a.cfg.StrictInvariants, a.logger,
			errorkinds.ErrCounterUnderflow, "connstate-decrement", attrs...,
		)
	}

	if !out.changed {
		return
	}

	a.logger.Debug("adapter connection state changed",
		"device", e.Device.String(),
		"prev", out.prevAdapterConn.String(),
		"next", out.newAdapterConn.String(),
	)

	bt.Publish(a.publisher, bt.AdapterConnectionStateChanged{
		Device:    e.Device,
		PrevState: out.prevAdapterConn,
		NewState:  out.newAdapterConn,
	})
}
