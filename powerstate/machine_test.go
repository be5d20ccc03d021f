package powerstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/logtest"
	"github.com/bluetuith-org/adapterd/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type transition struct {
	prev, next bt.AdapterPowerState
}

type observer struct {
	mu          sync.Mutex
	transitions []transition
}

func (o *observer) OnAdapterStateChanged(prev, next bt.AdapterPowerState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.transitions = append(o.transitions, transition{prev, next})
}

func (o *observer) all() []transition {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]transition(nil), o.transitions...)
}

// collaborators completes requests by sending the completion message
// back to the machine, unless silenced.
type collaborators struct {
	m *Machine

	silent  atomic.Bool
	failure atomic.Error

	bleUp, bleDown, start, stop atomic.Int32
}

func (c *collaborators) complete(msg Message) error {
	if err := c.failure.Load(); err != nil {
		return err
	}

	if !c.silent.Load() {
		c.m.Send(msg)
	}

	return nil
}

func (c *collaborators) BringUpBle() error {
	c.bleUp.Inc()
	return c.complete(MsgBleStarted)
}

func (c *collaborators) BringDownBle() error {
	c.bleDown.Inc()
	return c.complete(MsgBleStopped)
}

func (c *collaborators) StartProfileServices() error {
	c.start.Inc()
	return c.complete(MsgBredrStarted)
}

func (c *collaborators) StopProfileServices() error {
	c.stop.Inc()
	return c.complete(MsgBredrStopped)
}

type fixture struct {
	m   *Machine
	obs *observer
	c   *collaborators
	log *logtest.Recorder
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	rec, logger := logtest.New()

	cfg := config.New()
	cfg.Logger = logger
	if timeout > 0 {
		cfg.BleStartTimeout = timeout
		cfg.BredrStartTimeout = timeout
		cfg.BredrStopTimeout = timeout
		cfg.BleStopTimeout = timeout
	}

	f := &fixture{obs: &observer{}, c: &collaborators{}, log: rec}
	f.m = New(cfg, f.c, f.c, f.obs)
	f.c.m = f.m

	f.m.Start(context.Background(), nil)
	t.Cleanup(func() { f.m.Stop(worker.Discard) })

	return f
}

func (f *fixture) sync(t *testing.T) {
	t.Helper()

	// Completion messages are posted from inside the handler,
	// so a single barrier may land before them.
	for range 3 {
		require.NoError(t, f.m.Sync(context.Background()))
	}
}

func TestMachine_PowerOn(t *testing.T) {
	f := newFixture(t, 0)

	f.m.Send(MsgBleTurnOn)
	f.sync(t)
	assert.Equal(t, bt.PowerBleOn, f.m.State())

	f.m.Send(MsgUserTurnOn)
	f.sync(t)
	assert.Equal(t, bt.PowerOn, f.m.State())

	assert.Equal(t, []transition{
		{bt.PowerOff, bt.PowerTurningBleOn},
		{bt.PowerTurningBleOn, bt.PowerBleOn},
		{bt.PowerBleOn, bt.PowerTurningOn},
		{bt.PowerTurningOn, bt.PowerOn},
	}, f.obs.all())

	assert.Equal(t, int32(1), f.c.bleUp.Load())
	assert.Equal(t, int32(1), f.c.start.Load())
	assert.Zero(t, f.log.CountLevel(slog.LevelWarn))
	assert.Zero(t, f.log.CountLevel(slog.LevelError))
}

func TestMachine_PowerOff(t *testing.T) {
	f := newFixture(t, 0)

	f.m.Send(MsgBleTurnOn)
	f.sync(t)
	f.m.Send(MsgUserTurnOn)
	f.sync(t)
	require.Equal(t, bt.PowerOn, f.m.State())

	f.m.Send(MsgUserTurnOff)
	f.sync(t)
	assert.Equal(t, bt.PowerBleOn, f.m.State())

	f.m.Send(MsgBleTurnOff)
	f.sync(t)
	assert.Equal(t, bt.PowerOff, f.m.State())

	assert.Equal(t, int32(1), f.c.stop.Load())
	assert.Equal(t, int32(1), f.c.bleDown.Load())
	assert.Len(t, f.obs.all(), 8)
}

func TestMachine_BleStartTimeout(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.c.silent.Store(true)

	f.m.Send(MsgBleTurnOn)

	require.Eventually(t, func() bool {
		return f.m.State() == bt.PowerOff
	}, time.Second, time.Millisecond)
	f.sync(t)

	assert.Equal(t, []transition{
		{bt.PowerOff, bt.PowerTurningBleOn},
		{bt.PowerTurningBleOn, bt.PowerTurningBleOff},
		{bt.PowerTurningBleOff, bt.PowerOff},
	}, f.obs.all())

	assert.Equal(t, 2, f.log.Count(slog.LevelError, "transition timed out"))
	assert.Equal(t, int32(1), f.c.bleDown.Load())
}

func TestMachine_BredrStartTimeout(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)

	f.m.Send(MsgBleTurnOn)
	f.sync(t)
	require.Equal(t, bt.PowerBleOn, f.m.State())

	f.c.silent.Store(true)
	f.m.Send(MsgUserTurnOn)

	require.Eventually(t, func() bool {
		return f.m.State() == bt.PowerOff
	}, time.Second, time.Millisecond)
	f.sync(t)

	var states []bt.AdapterPowerState
	for _, tr := range f.obs.all() {
		states = append(states, tr.next)
	}

	assert.Equal(t, []bt.AdapterPowerState{
		bt.PowerTurningBleOn,
		bt.PowerBleOn,
		bt.PowerTurningOn,
		bt.PowerTurningOff,
		bt.PowerTurningBleOff,
		bt.PowerOff,
	}, states)
}

func TestMachine_LateTimeoutIsIgnored(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)

	f.m.Send(MsgBleTurnOn)
	f.sync(t)
	require.Equal(t, bt.PowerBleOn, f.m.State())

	time.Sleep(30 * time.Millisecond)
	f.sync(t)

	assert.Equal(t, bt.PowerBleOn, f.m.State())
	assert.Len(t, f.obs.all(), 2)
	assert.Zero(t, f.log.CountLevel(slog.LevelWarn))
	assert.Zero(t, f.log.Count(slog.LevelError, "transition timed out"))
}

func TestMachine_UnhandledMessage(t *testing.T) {
	f := newFixture(t, 0)

	f.m.Send(MsgUserTurnOn)
	f.sync(t)

	assert.Equal(t, bt.PowerOff, f.m.State())
	assert.Empty(t, f.obs.all())
	assert.Equal(t, 1, f.log.Count(slog.LevelWarn, "message ignored"))
}

func TestMachine_EveryUnlistedMessageIsIgnored(t *testing.T) {
	// Each path drives a fresh machine into its state. A step of
	// MsgNone silences the collaborators for the following steps.
	paths := map[bt.AdapterPowerState][]Message{
		bt.PowerOff:           nil,
		bt.PowerTurningBleOn:  {MsgNone, MsgBleTurnOn},
		bt.PowerBleOn:         {MsgBleTurnOn},
		bt.PowerTurningOn:     {MsgBleTurnOn, MsgNone, MsgUserTurnOn},
		bt.PowerOn:            {MsgBleTurnOn, MsgUserTurnOn},
		bt.PowerTurningOff:    {MsgBleTurnOn, MsgUserTurnOn, MsgNone, MsgUserTurnOff},
		bt.PowerTurningBleOff: {MsgBleTurnOn, MsgNone, MsgBleTurnOff},
	}
	require.Len(t, paths, len(allStates))

	for _, state := range allStates {
		t.Run(state.String(), func(t *testing.T) {
			f := newFixture(t, 10*time.Second)

			for _, msg := range paths[state] {
				if msg == MsgNone {
					f.c.silent.Store(true)
					continue
				}

				f.m.Send(msg)
				f.sync(t)
			}
			require.Equal(t, state, f.m.State())

			transitions := len(f.obs.all())
			for _, msg := range allMessages {
				if _, _, handled := Transition(state, msg); handled {
					continue
				}

				before := f.log.Count(slog.LevelWarn, "message ignored")

				f.m.Send(msg)
				f.sync(t)

				assert.Equal(t, before+1, f.log.Count(slog.LevelWarn, "message ignored"), "%s in %s", msg, state)
				assert.Equal(t, state, f.m.State(), "%s in %s", msg, state)
				assert.Len(t, f.obs.all(), transitions, "%s in %s", msg, state)
			}
		})
	}
}

func TestMachine_CollaboratorFailure(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.c.failure.Store(errors.New("hci0 unavailable"))

	f.m.Send(MsgBleTurnOn)
	f.sync(t)

	assert.Equal(t, bt.PowerTurningBleOn, f.m.State())
	assert.Equal(t, 1, f.log.Count(slog.LevelError, "collaborator call failed"))

	require.Eventually(t, func() bool {
		return f.m.State() == bt.PowerOff
	}, time.Second, time.Millisecond)
}

func TestMachine_Handle(t *testing.T) {
	f := newFixture(t, 0)

	assert.True(t, f.m.Handle(bt.BleTurnOn{}))
	assert.False(t, f.m.Handle(bt.WiredAudioDeviceConnected{}))

	f.sync(t)
	assert.Equal(t, bt.PowerBleOn, f.m.State())
}

func TestMachine_Bus(t *testing.T) {
	rec, logger := logtest.New()

	cfg := config.New()
	cfg.Logger = logger

	bus := eventbus.New(4)
	defer bus.Shutdown()

	obs := &observer{}
	c := &busCollaborators{bus: bus}
	m := New(cfg, c, c, obs)
	m.Start(context.Background(), bus)
	defer m.Stop(worker.Discard)

	bt.Publish(bus, bt.BleTurnOn{})
	require.Eventually(t, func() bool {
		return m.State() == bt.PowerBleOn
	}, time.Second, time.Millisecond)

	bt.Publish(bus, bt.AdapterUserTurnOn{})
	require.Eventually(t, func() bool {
		return m.State() == bt.PowerOn
	}, time.Second, time.Millisecond)
	require.NoError(t, m.Sync(context.Background()))

	assert.Len(t, obs.all(), 4)
	assert.Zero(t, rec.CountLevel(slog.LevelWarn))
}

// busCollaborators reports completion on the bus.
type busCollaborators struct {
	bus *eventbus.Bus
}

func (c *busCollaborators) BringUpBle() error {
	bt.Publish(c.bus, bt.BleStarted{})
	return nil
}

func (c *busCollaborators) BringDownBle() error {
	bt.Publish(c.bus, bt.BleStopped{})
	return nil
}

func (c *busCollaborators) StartProfileServices() error {
	bt.Publish(c.bus, bt.BredrStarted{})
	return nil
}

func (c *busCollaborators) StopProfileServices() error {
	bt.Publish(c.bus, bt.BredrStopped{})
	return nil
}
