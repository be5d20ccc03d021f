// Package powerstate implements the adapter power state machine.
//
// The machine moves between Off, BleOn and On through timeout-guarded
// transitional states. It drives the radio and profile lifecycle
// collaborators on state entry, and reports every entry to an observer.
package powerstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/worker"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Machine is the adapter power state machine.
type Machine struct {
	cfg    config.Configuration
	logger *slog.Logger

	radio     bt.RadioController
	lifecycle bt.ProfileLifecycleController
	observer  bt.AdapterStateObserver

	worker *worker.Worker[Message]
	sub    eventbus.SubscriberID

	// Owned by the worker.
	state         bt.AdapterPowerState
	cancelTimeout worker.CancelFunc

	mu      sync.Mutex
	current bt.AdapterPowerState
}

// New returns a new power state machine in the Off state.
func New(
	cfg config.Configuration,
	radio bt.RadioController,
	lifecycle bt.ProfileLifecycleController,
	observer bt.AdapterStateObserver,
) *Machine {
	cfg = cfg.WithDefaults()

	m := &Machine{
		cfg:       cfg,
		logger:    cfg.SubsystemLogger("powerstate"),
		radio:     radio,
		lifecycle: lifecycle,
		observer:  observer,
		state:     bt.PowerOff,
		current:   bt.PowerOff,
	}
	m.worker = worker.New("powerstate", m.logger, m.process)

	return m
}

// Start starts the machine's worker, and consumes adapter request and
// radio events from the subscriber, if one is provided.
func (m *Machine) Start(ctx context.Context, subscriber eventbus.EventSubscriber) {
	m.worker.Start(ctx)

	if subscriber == nil {
		return
	}

	m.sub = subscriber.Subscribe(bt.EventAdapterRequest, bt.EventRadio)
	go func() {
		for data := range m.sub.C {
			m.Handle(data)
		}
	}()
}

// Stop stops accepting messages, drains or discards the pending ones
// and releases the collaborators.
func (m *Machine) Stop(mode worker.StopMode) {
	m.sub.Unsubscribe()
	m.worker.Stop(mode)

	if m.cancelTimeout != nil {
		m.cancelTimeout()
		m.cancelTimeout = nil
	}

	m.radio = nil
	m.lifecycle = nil
	m.observer = nil
}

// Handle posts the message corresponding to a bus event.
// It returns false if the event is not consumed by the machine.
func (m *Machine) Handle(ev any) bool {
	msg := MessageFor(ev)
	if msg == MsgNone {
		m.logger.Warn("event ignored", "event", ev)
		return false
	}

	return m.Send(msg)
}

// Send posts msg to the machine.
func (m *Machine) Send(msg Message) bool {
	return m.worker.Post(msg)
}

// State returns the current power state.
func (m *Machine) State() bt.AdapterPowerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// Sync waits until every message sent before the call has been processed.
func (m *Machine) Sync(ctx context.Context) error {
	return m.worker.Sync(ctx)
}

// Stats returns the worker counters.
func (m *Machine) Stats() worker.Stats {
	return m.worker.Stats()
}

func (m *Machine) process(msg Message) {
	next, effects, handled := Transition(m.state, msg)
	if !handled {
		m.logger.Warn("message ignored",
			"state", m.state.String(),
			"message", msg.String(),
			"error", errorkinds.ErrUnhandledMessage,
		)

		return
	}

	m.state = next

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	for _, effect := range effects {
		m.execute(effect)
	}
}

func (m *Machine) execute(effect Effect) {
	switch effect.Kind {
	case EffectLogTimeout:
		m.logger.Error("transition timed out",
			"timeout", effect.Timeout.String(),
			"error", errorkinds.ErrMethodTimeout,
		)

	case EffectCancelTimeout:
		if m.cancelTimeout != nil {
			m.cancelTimeout()
			m.cancelTimeout = nil
		}

	case EffectNotify:
		m.logger.Debug("state changed", "prev", effect.Prev.String(), "next", effect.Next.String())
		if m.observer != nil {
			m.observer.OnAdapterStateChanged(effect.Prev, effect.Next)
		}

	case EffectStartTimeout:
		m.cancelTimeout = m.worker.PostDelayed(effect.Timeout, m.timeout(effect.Timeout))

	case EffectBringUpBle:
		m.call("radio-bring-up-ble", errorkinds.ErrRadioCall, func() error {
			if m.radio == nil {
				return errorkinds.ErrNotSupported
			}

			return m.radio.BringUpBle()
		})

	case EffectBringDownBle:
		m.call("radio-bring-down-ble", errorkinds.ErrRadioCall, func() error {
			if m.radio == nil {
				return errorkinds.ErrNotSupported
			}

			return m.radio.BringDownBle()
		})

	case EffectStartProfileServices:
		m.call("lifecycle-start-services", errorkinds.ErrLifecycleCall, func() error {
			if m.lifecycle == nil {
				return errorkinds.ErrNotSupported
			}

			return m.lifecycle.StartProfileServices()
		})

	case EffectStopProfileServices:
		m.call("lifecycle-stop-services", errorkinds.ErrLifecycleCall, func() error {
			if m.lifecycle == nil {
				return errorkinds.ErrNotSupported
			}

			return m.lifecycle.StopProfileServices()
		})
	}
}

// call runs a collaborator call. A failure is only logged: the
// state timeout drives the machine out of the transitional state.
func (m *Machine) call(at string, kind error, fn func() error) {
	err := fn()
	if err == nil {
		return
	}

	err = fault.Wrap(err,
		fctx.With(context.Background(), "error_at", at),
		ftag.With(ftag.Internal),
		fmsg.With(kind.Error()),
	)
	m.logger.Error("collaborator call failed", "error_at", at, "error", err)
}

func (m *Machine) timeout(msg Message) time.Duration {
	switch msg {
	case MsgBleStartTimeout:
		return m.cfg.BleStartTimeout

	case MsgBredrStartTimeout:
		return m.cfg.BredrStartTimeout

	case MsgBredrStopTimeout:
		return m.cfg.BredrStopTimeout
	}

	return m.cfg.BleStopTimeout
}
