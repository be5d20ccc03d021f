//go:build linux

package platform

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/errorkinds"
	"github.com/bluetuith-org/adapterd/api/eventbus"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
)

// The DBus specific bus and property names.
const (
	dbusGetPropertiesIface = "org.freedesktop.DBus.Properties.Get"
	dbusSetPropertiesIface = "org.freedesktop.DBus.Properties.Set"

	bluezBusName      = "org.bluez"
	bluezAdapterIface = "org.bluez.Adapter1"
	bluezPathPrefix   = "/org/bluez/"
)

// adapterObject is the part of a DBus object the radio calls methods on.
type adapterObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call
}

// BluezRadio powers a BlueZ adapter through its Powered property.
// Power calls never wait for BlueZ to reply: completion is published
// on the bus once the reply arrives.
type BluezRadio struct {
	systemBus *dbus.Conn
	object    adapterObject
	adapter   string

	startTimeout time.Duration
	stopTimeout  time.Duration

	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func platformRadio(publisher eventbus.EventPublisher, opts Options, cfg config.Configuration) (bt.RadioController, BluetoothStack, func() error, error) {
	radio, err := NewBluezRadio(publisher, opts.Adapter, cfg)
	if err != nil {
		return nil, BluezStack, nil, err
	}

	return radio, BluezStack, radio.Close, nil
}

// NewBluezRadio connects to the system bus and checks that the adapter exists.
// Every power call is bounded by a deadline shorter than the matching
// timeout of cfg.
func NewBluezRadio(publisher eventbus.EventPublisher, adapter string, cfg config.Configuration) (*BluezRadio, error) {
	systemBus, err := dbus.SystemBus()
	if err != nil {
		return nil, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "start-systembus"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot initialize system DBus"),
		)
	}

	b := newBluezRadio(
		systemBus.Object(bluezBusName, dbus.ObjectPath(bluezPathPrefix+adapter)),
		publisher, adapter, cfg,
	)
	b.systemBus = systemBus

	if _, err := b.powered(); err != nil {
		systemBus.Close()

		return nil, fault.Wrap(errorkinds.ErrAdapterNotFound,
			fctx.With(context.Background(),
				"error_at", "radio-check-adapter",
				"adapter", adapter,
			),
			ftag.With(ftag.NotFound),
			fmsg.With("Adapter does not exist"),
		)
	}

	return b, nil
}

func newBluezRadio(object adapterObject, publisher eventbus.EventPublisher, adapter string, cfg config.Configuration) *BluezRadio {
	if publisher == nil {
		publisher = eventbus.NilHandler()
	}

	cfg = cfg.WithDefaults()

	return &BluezRadio{
		object:       object,
		adapter:      adapter,
		startTimeout: callTimeout(cfg.BleStartTimeout),
		stopTimeout:  callTimeout(cfg.BleStopTimeout),
		publisher:    publisher,
		logger:       cfg.SubsystemLogger("platform"),
	}
}

// BringUpBle powers the adapter on, and publishes BleStarted once BlueZ
// has accepted the request.
func (b *BluezRadio) BringUpBle() error {
	b.setPowered(true, b.startTimeout, bt.BleStarted{})

	return nil
}

// BringDownBle powers the adapter off, and publishes BleStopped once BlueZ
// has accepted the request.
func (b *BluezRadio) BringDownBle() error {
	b.setPowered(false, b.stopTimeout, bt.BleStopped{})

	return nil
}

// Close closes the system bus connection.
func (b *BluezRadio) Close() error {
	if b.systemBus == nil {
		return nil
	}

	return b.systemBus.Close()
}

func (b *BluezRadio) powered() (bool, error) {
	var powered dbus.Variant

	ctx, cancel := context.WithTimeout(context.Background(), b.startTimeout)
	defer cancel()

	if err := b.object.CallWithContext(ctx,
		dbusGetPropertiesIface, 0, bluezAdapterIface, "Powered",
	).Store(&powered); err != nil {
		return false, err
	}

	v, ok := powered.Value().(bool)
	if !ok {
		return false, errorkinds.ErrMethodCall
	}

	return v, nil
}

// setPowered sends the Powered property to BlueZ, and publishes done when
// the reply arrives. A failed or late reply publishes nothing, and the
// power state times out.
func (b *BluezRadio) setPowered(enable bool, timeout time.Duration, done bt.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	call := b.object.GoWithContext(ctx,
		dbusSetPropertiesIface, 0, make(chan *dbus.Call, 1),
		bluezAdapterIface, "Powered", dbus.MakeVariant(enable),
	)

	go func() {
		defer cancel()

		reply := <-call.Done
		if reply.Err != nil {
			err := fault.Wrap(reply.Err,
				fctx.With(ctx,
					"error_at", "radio-setpowered",
					"adapter", b.adapter,
					"powered", strconv.FormatBool(enable),
				),
				ftag.With(ftag.Internal),
				fmsg.With("An error occurred on setting the adapter power"),
			)
			b.logger.Error("adapter power call failed", "error", err)

			return
		}

		bt.Publish(b.publisher, done)
	}()
}

// callTimeout returns a call deadline that expires before the state timeout.
func callTimeout(stateTimeout time.Duration) time.Duration {
	return stateTimeout - stateTimeout/4
}
