package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bluetuith-org/adapterd/activedevice"
	bt "github.com/bluetuith-org/adapterd/api/bluetooth"
	"github.com/bluetuith-org/adapterd/api/config"
	"github.com/bluetuith-org/adapterd/internal/serde"
	"github.com/bluetuith-org/adapterd/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayScript = `
{"event": "enable"}
{"event": "profile_connection_state_changed", "delay_ms": 100, "data": {"profile": "a2dp", "device": "AA:BB:CC:DD:EE:01", "prev_state": "connecting", "new_state": "connected"}}
{"event": "select_active_device", "delay_ms": 100, "data": {"profile": "a2dp", "device": "AA:BB:CC:DD:EE:01"}}
`

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, []byte(replayScript), 0o600))

	values := Values{Configuration: config.New(), Replay: path}
	values.Logger = slog.New(slog.DiscardHandler)

	var out bytes.Buffer
	require.NoError(t, replay(context.Background(), values, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)

	var power, connection int
	for _, line := range lines[:len(lines)-1] {
		switch {
		case strings.Contains(line, bt.EventAdapterPowerState.String()):
			power++

		case strings.Contains(line, bt.EventAdapterConnectionState.String()):
			connection++
		}
	}
	assert.Equal(t, 4, power)
	assert.Equal(t, 1, connection)

	var status struct {
		Event string         `json:"event"`
		Data  service.Status `json:"data"`
	}
	require.NoError(t, serde.UnmarshalJson([]byte(lines[len(lines)-1]), &status))

	device := bt.MustParseDeviceID("AA:BB:CC:DD:EE:01")
	assert.Equal(t, "status", status.Event)
	assert.Equal(t, service.Status{
		Power:         bt.PowerOn,
		Connection:    bt.StateConnected,
		ActiveDevices: activedevice.ActiveDevices{A2DP: device},
	}, status.Data)
}

func TestReplay_InvalidScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"event": "explode"}`), 0o600))

	values := Values{Configuration: config.New(), Replay: path}
	values.Logger = slog.New(slog.DiscardHandler)

	var out bytes.Buffer
	assert.Error(t, replay(context.Background(), values, &out))
	assert.Empty(t, out.String())
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	logger, err = newLogger("")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))

	_, err = newLogger("loud")
	assert.Error(t, err)
}
