package activedevice

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/logtest"
	"github.com/bluetuith-org/adapterd/internal/worker"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncController is a controller safe for use from the arbitrator's worker.
type syncController struct {
	reject *xsync.MapOf[bt.ProfileID, bool]
	calls  *xsync.Counter
}

func newSyncController() *syncController {
	return &syncController{
		reject: xsync.NewMapOf[bt.ProfileID, bool](),
		calls:  xsync.NewCounter(),
	}
}

func (c *syncController) SetActiveDevice(profile bt.ProfileID, _ bt.DeviceID) bool {
	c.calls.Inc()

	rejected, _ := c.reject.Load(profile)
	return !rejected
}

func newArbitrator(t *testing.T, c bt.ProfileController) (*Arbitrator, *logtest.Recorder) {
	t.Helper()

	rec, logger := logtest.New()

	cfg := config.New()
	cfg.Logger = logger

	a := New(cfg, c)
	a.Start(context.Background(), nil)
	t.Cleanup(func() { a.Stop(worker.Discard) })

	return a, rec
}

func TestArbitrator_HearingAidTakesOver(t *testing.T) {
	a, _ := newArbitrator(t, newSyncController())

	a.OnProfileDeviceConnected(bt.ProfileA2DP, device1)
	require.NoError(t, a.Sync(context.Background()))
	require.Equal(t, device1, a.ActiveDevice(bt.ProfileA2DP))

	a.OnHearingAidActiveDeviceChanged(device2)
	require.NoError(t, a.Sync(context.Background()))

	assert.Equal(t, ActiveDevices{HearingAid: device2}, a.ActiveDevices())
}

func TestArbitrator_WiredAudioClearsWithoutReselection(t *testing.T) {
	a, _ := newArbitrator(t, newSyncController())

	a.OnProfileDeviceConnected(bt.ProfileA2DP, device1)
	a.OnWiredAudioDeviceConnected()
	require.NoError(t, a.Sync(context.Background()))

	assert.Equal(t, ActiveDevices{}, a.ActiveDevices())
	assert.Equal(t, []bt.DeviceID{device1}, a.ConnectedDevices(bt.ProfileA2DP))

	fallback, ok := a.FallbackDevice(bt.ProfileA2DP)
	assert.True(t, ok)
	assert.Equal(t, device1, fallback)
}

func TestArbitrator_ExclusiveForAnyOrdering(t *testing.T) {
	devices := []bt.DeviceID{device1, device2, device3}
	audio := []bt.ProfileID{bt.ProfileA2DP, bt.ProfileHFP, bt.ProfileHearingAid}

	for seed := range uint64(20) {
		r := rand.New(rand.NewPCG(seed, seed))

		c := newSyncController()
		a, rec := newArbitrator(t, c)

		for range 200 {
			profile := audio[r.IntN(len(audio))]
			device := devices[r.IntN(len(devices))]

			switch r.IntN(7) {
			case 0, 1:
				a.OnProfileDeviceConnected(profile, device)

			case 2:
				a.OnProfileDeviceDisconnected(profile, device)

			case 3:
				if r.IntN(4) == 0 {
					device = bt.NoDevice
				}
				a.OnProfileActiveDeviceChanged(profile, device)

			case 4:
				a.OnHearingAidActiveDeviceChanged(device)

			case 5:
				a.OnWiredAudioDeviceConnected()

			case 6:
				c.reject.Store(profile, r.IntN(2) == 0)
			}
		}

		require.NoError(t, a.Sync(context.Background()))

		assert.True(t, a.ActiveDevices().Exclusive(), "seed %d", seed)
		assert.Zero(t, rec.Count(slog.LevelError, "invariant violation"), "seed %d", seed)
	}
}

func TestArbitrator_RejectedActivation(t *testing.T) {
	c := newSyncController()
	c.reject.Store(bt.ProfileA2DP, true)

	a, rec := newArbitrator(t, c)

	a.OnProfileDeviceConnected(bt.ProfileA2DP, device1)
	require.NoError(t, a.Sync(context.Background()))

	assert.Equal(t, ActiveDevices{}, a.ActiveDevices())
	assert.Equal(t, []bt.DeviceID{device1}, a.ConnectedDevices(bt.ProfileA2DP))
	assert.Equal(t, 1, rec.Count(slog.LevelError, "active device not set"))
}

func TestArbitrator_SelectActiveDevice(t *testing.T) {
	c := newSyncController()
	a, _ := newArbitrator(t, c)
	ctx := context.Background()

	assert.ErrorIs(t, a.SelectActiveDevice(ctx, bt.ProfileMAP, device1), errorkinds.ErrInvalidProfile)
	assert.ErrorIs(t, a.SelectActiveDevice(ctx, bt.ProfileA2DP, device1), errorkinds.ErrDeviceNotConnected)

	a.OnProfileDeviceConnected(bt.ProfileHearingAid, device2)
	a.OnProfileDeviceConnected(bt.ProfileA2DP, device1)

	require.NoError(t, a.SelectActiveDevice(ctx, bt.ProfileA2DP, device1))
	assert.Equal(t, ActiveDevices{A2DP: device1}, a.ActiveDevices())

	c.reject.Store(bt.ProfileHearingAid, true)
	assert.ErrorIs(t, a.SelectActiveDevice(ctx, bt.ProfileHearingAid, device2), errorkinds.ErrActiveDeviceRejected)
	assert.Equal(t, ActiveDevices{A2DP: device1}, a.ActiveDevices())
}

func TestArbitrator_SelectAfterStop(t *testing.T) {
	a, _ := newArbitrator(t, nil)
	a.Stop(worker.Drain)

	err := a.SelectActiveDevice(context.Background(), bt.ProfileA2DP, device1)
	assert.ErrorIs(t, err, errorkinds.ErrWorkerStopped)
}

func TestArbitrator_ResetOnPowerOn(t *testing.T) {
	a, _ := newArbitrator(t, nil)

	a.OnProfileDeviceConnected(bt.ProfileHFP, device1)
	a.Handle(bt.AdapterPowerStateChanged{PrevState: bt.PowerTurningOn, NewState: bt.PowerOn})
	require.NoError(t, a.Sync(context.Background()))

	assert.Equal(t, ActiveDevices{}, a.ActiveDevices())
	assert.Empty(t, a.ConnectedDevices(bt.ProfileHFP))
}

func TestArbitrator_IgnoresOtherProfiles(t *testing.T) {
	c := newSyncController()
	a, _ := newArbitrator(t, c)

	a.OnProfileDeviceConnected(bt.ProfileMAP, device1)
	a.OnProfileActiveDeviceChanged(bt.ProfilePAN, device1)
	require.NoError(t, a.Sync(context.Background()))

	assert.Zero(t, c.calls.Value())
	assert.Empty(t, a.ConnectedDevices(bt.ProfileMAP))
}

func TestArbitrator_Bus(t *testing.T) {
	cfg := config.New()
	cfg.Logger = slog.New(slog.DiscardHandler)

	bus := eventbus.New(4)
	defer bus.Shutdown()

	a := New(cfg, nil)
	a.Start(context.Background(), bus)
	defer a.Stop(worker.Discard)

	bt.Publish(bus, bt.ProfileConnectionStateChanged{
		Profile:   bt.ProfileA2DP,
		Device:    device1,
		PrevState: bt.StateConnecting,
		NewState:  bt.StateConnected,
	})
	bt.Publish(bus, bt.HearingAidActiveDeviceChanged{Device: device2})

	require.Eventually(t, func() bool {
		return a.ActiveDevices() == ActiveDevices{HearingAid: device2}
	}, time.Second, time.Millisecond)
}
