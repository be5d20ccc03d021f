//go:build linux

package platform

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/internal/logtest"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adapter answers power calls only when told to.
type adapter struct {
	calls chan *dbus.Call
}

func newAdapter() *adapter {
	return &adapter{calls: make(chan *dbus.Call, 4)}
}

func (a *adapter) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	return &dbus.Call{Method: method, Args: args, Body: []interface{}{dbus.MakeVariant(true)}}
}

func (a *adapter) GoWithContext(ctx context.Context, method string, _ dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	call := &dbus.Call{Method: method, Args: args, Done: ch}
	a.calls <- call

	go func() {
		<-ctx.Done()
		a.reply(call, ctx.Err())
	}()

	return call
}

func (a *adapter) reply(call *dbus.Call, err error) {
	call.Err = err

	select {
	case call.Done <- call:
	default:
	}
}

func (a *adapter) next(t *testing.T) *dbus.Call {
	t.Helper()

	select {
	case call := <-a.calls:
		return call
	case <-time.After(time.Second):
		require.FailNow(t, "no power call")
	}

	return nil
}

func newTestRadio(timeout time.Duration) (*BluezRadio, *adapter, *publisher, *logtest.Recorder) {
	rec, logger := logtest.New()

	cfg := config.New()
	cfg.Logger = logger
	cfg.BleStartTimeout = timeout
	cfg.BleStopTimeout = timeout

	a := newAdapter()
	p := &publisher{}

	return newBluezRadio(a, p, "hci0", cfg), a, p, rec
}

func TestBluezRadio_PublishesOnReply(t *testing.T) {
	r, a, p, _ := newTestRadio(10 * time.Second)

	require.NoError(t, r.BringUpBle())
	call := a.next(t)
	assert.Equal(t, dbusSetPropertiesIface, call.Method)
	assert.Equal(t, []interface{}{bluezAdapterIface, "Powered", dbus.MakeVariant(true)}, call.Args)
	assert.Empty(t, p.all())

	a.reply(call, nil)
	require.Eventually(t, func() bool {
		return len(p.all()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, bt.BleStarted{}, p.all()[0])

	require.NoError(t, r.BringDownBle())
	a.reply(a.next(t), nil)
	require.Eventually(t, func() bool {
		return len(p.all()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, bt.BleStopped{}, p.all()[1])
}

func TestBluezRadio_FailedReply(t *testing.T) {
	r, a, p, rec := newTestRadio(10 * time.Second)

	require.NoError(t, r.BringUpBle())
	a.reply(a.next(t), errors.New("org.bluez.Error.Busy"))

	require.Eventually(t, func() bool {
		return rec.Count(slog.LevelError, "adapter power call failed") == 1
	}, time.Second, time.Millisecond)
	assert.Empty(t, p.all())
}

func TestBluezRadio_CallDeadline(t *testing.T) {
	r, a, p, rec := newTestRadio(40 * time.Millisecond)

	start := time.Now()
	require.NoError(t, r.BringDownBle())
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	call := a.next(t)
	require.Eventually(t, func() bool {
		return rec.Count(slog.LevelError, "adapter power call failed") == 1
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, call.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 40*time.Millisecond+500*time.Millisecond)
	assert.Empty(t, p.all())
}

func TestCallTimeout(t *testing.T) {
	assert.Equal(t, 3*time.Second, callTimeout(4*time.Second))
	assert.Less(t, callTimeout(config.DefaultBleStopTimeout), config.DefaultBleStopTimeout)
}
