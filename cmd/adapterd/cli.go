package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/eventbus"
	"github.com/bluetuith-org/adapterd/internal/script"
	"github.com/bluetuith-org/adapterd/internal/worker"
	"github.com/bluetuith-org/adapterd/platform"
	"github.com/bluetuith-org/adapterd/service"

	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// These values are set at compile-time.
var (
	Version  = ""
	Revision = ""
)

// Run runs the commandline application.
func Run(args []string) error {
	return newApp().Run(args)
}

// outputRecord is a single line of the event output.
type outputRecord struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// newApp returns a new commandline application.
func newApp() *cli.App {
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Fprintf(cCtx.App.Writer, "%s (%s)\n", Version, Revision)
	}

	return &cli.App{
		Name:                   "adapterd",
		Usage:                  "Bluetooth adapter state daemon.",
		Version:                Version + " (" + Revision + ")",
		Description:            "Tracks the power, connection and active audio device state of a Bluetooth adapter.",
		Copyright:              "(c) bluetuith-org.",
		Compiled:               time.Now(),
		EnableBashCompletion:   true,
		UseShortOptionHandling: true,
		Suggest:                true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"C"},
				EnvVars: []string{"ADAPTERD_CONFIG"},
				Usage:   "Specify an HJSON configuration file.",
			},
			&cli.StringFlag{
				Name:    "adapter",
				Aliases: []string{"a"},
				EnvVars: []string{"ADAPTERD_ADAPTER"},
				Usage:   "Specify an adapter to use. (For example, hci0)",
			},
			&cli.BoolFlag{
				Name:    "loopback",
				Aliases: []string{"L"},
				EnvVars: []string{"ADAPTERD_LOOPBACK"},
				Usage:   "Use a loopback radio instead of the platform adapter.",
			},
			&cli.DurationFlag{
				Name:  "loopback-delay",
				Usage: "Specify how long the loopback radio takes to power up or down.",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				EnvVars: []string{"ADAPTERD_LOG_LEVEL"},
				Usage:   "Specify the log level. (debug, info, warn or error)",
			},
			&cli.BoolFlag{
				Name:    "enable",
				Aliases: []string{"e"},
				Usage:   "Power the adapter on after startup.",
			},
			&cli.StringFlag{
				Name:    "replay",
				Aliases: []string{"r"},
				Usage:   "Replay an event script against a loopback adapter, and print the resulting events.",
			},
			&cli.BoolFlag{
				Name:  "strict-invariants",
				Usage: "Abort on internal consistency errors instead of logging them.",
			},
			&cli.DurationFlag{
				Name:  "ble-start-timeout",
				Usage: "Specify how long BLE may take to power up.",
			},
			&cli.DurationFlag{
				Name:  "bredr-start-timeout",
				Usage: "Specify how long the profile services may take to start.",
			},
			&cli.DurationFlag{
				Name:  "bredr-stop-timeout",
				Usage: "Specify how long the profile services may take to stop.",
			},
			&cli.DurationFlag{
				Name:  "ble-stop-timeout",
				Usage: "Specify how long BLE may take to power down.",
			},
			&cli.IntFlag{
				Name:  "event-buffer-size",
				Usage: "Specify the capacity of the event bus.",
			},
		},
		Action: func(cliCtx *cli.Context) error {
			// required for koanf to merge all global flags under the root namespace.
			cliCtx.Command.Name = "global"

			values, err := loadValues(koanf.New("."), cliCtx)
			if err != nil {
				return err
			}

			if values.Replay != "" {
				return replay(cliCtx.Context, values, cliCtx.App.Writer)
			}

			return run(cliCtx.Context, values, cliCtx.App.Writer)
		},
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}

			printError(err)
		},
	}
}

// run serves the adapter until the process is interrupted.
func run(ctx context.Context, values Values, w io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(values.EventBufferSize)
	defer bus.Shutdown()

	session, err := platform.NewSession(bus, values.Options, values.Configuration)
	if err != nil {
		return err
	}
	defer session.Close()

	switch {
	case session.RadioErr != nil:
		printWarn(fmt.Sprintf("no platform radio is available (%s), using the loopback radio", session.RadioErr))

	case session.Info.Stack == platform.LoopbackStack && !values.Loopback:
		printWarn("no platform radio is available, using the loopback radio")
	}

	values.Logger.Info("platform",
		"os", session.Info.OS,
		"stack", session.Info.Stack.String(),
	)

	sub := subscribeOutput(bus)

	svc := service.New(values.Configuration, bus, session.Collaborators())
	if err := svc.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return printEvents(ctx, sub, w)
	})

	if values.Enable {
		svc.Enable()
	}

	<-ctx.Done()

	if err := svc.Stop(worker.Drain); err != nil {
		return err
	}

	return g.Wait()
}

// replay plays an event script against a loopback adapter, prints every
// resulting event and the final adapter status.
func replay(ctx context.Context, values Values, w io.Writer) error {
	fd, err := os.Open(values.Replay)
	if err != nil {
		return err
	}
	defer fd.Close()

	steps, err := script.Decode(fd)
	if err != nil {
		return err
	}

	values.Loopback = true

	bus := eventbus.New(values.EventBufferSize)
	defer bus.Shutdown()

	session, err := platform.NewSession(bus, values.Options, values.Configuration)
	if err != nil {
		return err
	}

	sub := subscribeOutput(bus)

	svc := service.New(values.Configuration, bus, session.Collaborators())
	if err := svc.Start(ctx); err != nil {
		return err
	}

	printCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return printEvents(printCtx, sub, w)
	})

	err = script.Play(ctx, steps, bus, svc, func(step script.Step, err error) {
		printWarn(fmt.Sprintf("%s %s: %s", step.Command, step.Selection.Device, err))
	})
	if err == nil {
		err = svc.Sync(ctx)
	}

	status := svc.Status()
	if stopErr := svc.Stop(worker.Drain); err == nil {
		err = stopErr
	}

	cancel()
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	if err != nil {
		return err
	}

	return printJSON(w, outputRecord{Event: "status", Data: status})
}

// subscribeOutput subscribes to the events printed by the daemon.
func subscribeOutput(bus eventbus.EventSubscriber) eventbus.SubscriberID {
	return bus.Subscribe(bt.EventAdapterPowerState, bt.EventAdapterConnectionState)
}

// printEvents prints the events received on sub. Once ctx is done, it
// unsubscribes and prints the events still pending before returning.
func printEvents(ctx context.Context, sub eventbus.SubscriberID, w io.Writer) error {
	var printErr error

	done := ctx.Done()
	for {
		select {
		case <-done:
			sub.Unsubscribe()
			done = nil

		case data, ok := <-sub.C:
			if !ok {
				return printErr
			}

			ev, ok := data.(bt.Event)
			if !ok || printErr != nil {
				continue
			}

			printErr = printJSON(w, outputRecord{Event: ev.EventID().String(), Data: ev})
		}
	}
}
