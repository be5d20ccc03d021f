package main

import (
	"log/slog"
	"os"

	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/platform"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/cliflagv2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
)

// Values describes the configuration of the daemon.
type Values struct {
	config.Configuration `koanf:",squash"`
	platform.Options     `koanf:",squash"`

	ConfigFile string `koanf:"config"`
	LogLevel   string `koanf:"log-level"`
	Enable     bool   `koanf:"enable"`
	Replay     string `koanf:"replay"`
}

// loadValues loads the configuration from the configuration file, if any,
// and the command-line flags. Flags override the file.
func loadValues(k *koanf.Koanf, cliCtx *cli.Context) (Values, error) {
	values := Values{Configuration: config.New()}

	if path := cliCtx.String("config"); path != "" {
		if err := k.Load(file.Provider(path), hjson.Parser()); err != nil {
			return values, err
		}
	}

	if err := k.Load(cliflagv2.Provider(cliCtx, "."), nil); err != nil {
		return values, err
	}

	if err := k.UnmarshalWithConf("", &values, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return values, err
	}

	logger, err := newLogger(values.LogLevel)
	if err != nil {
		return values, err
	}

	values.Logger = logger
	values.Configuration = values.Configuration.WithDefaults()

	return values, nil
}

// newLogger returns a text logger on stderr at the provided level.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level

	if level != "" {
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}
