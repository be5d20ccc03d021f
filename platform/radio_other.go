//go:build !linux

package platform

import (
	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/api/eventbus"
)

func platformRadio(publisher eventbus.EventPublisher, opts Options, _ config.Configuration) (bt.RadioController, BluetoothStack, func() error, error) {
	return NewLoopbackRadio(publisher, opts.Delay), LoopbackStack, nil, nil
}
