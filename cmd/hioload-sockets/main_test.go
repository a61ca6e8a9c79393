package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/control"
)

func TestLoadConfig_Args(t *testing.T) {
	f := &flags{
		send:      `PING\r\n`,
		frameKind: control.FrameDelimiter,
		delimiter: `\r\n`,
		backend:   "select",
	}
	cfg, err := loadConfig(f, []string{"127.0.0.1:1", "unix:///tmp/s.sock"})
	require.NoError(t, err)
	assert.Equal(t, "select", cfg.Backend)
	require.Len(t, cfg.Requests, 2)
	assert.Equal(t, "PING\r\n", cfg.Requests[0].Send)
	assert.Equal(t, "\r\n", cfg.Requests[1].Frame.Delimiter)
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := "backend: select\nrequests:\n  - address: 127.0.0.1:1\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := loadConfig(&flags{configPath: path, logLevel: "debug"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Requests, 1)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(&flags{frameKind: "magic"}, []string{"127.0.0.1:1"})
	assert.ErrorIs(t, err, api.ErrConfiguration)

	_, err = loadConfig(&flags{backend: "kqueue"}, nil)
	assert.ErrorIs(t, err, api.ErrConfiguration)
}

func TestPrintReport(t *testing.T) {
	counters := control.NewEventCounters()
	report := &control.Report{
		Counters: counters,
		Results: []*control.Result{
			{Address: "a", Response: []byte("pong")},
			{Address: "b", Err: errors.New("boom"), Response: []byte("pa"), Partial: true},
			{Address: "c", TimedOut: true},
		},
	}
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printReport(cmd, report, true)

	out := buf.String()
	assert.Contains(t, out, "a\tok\t")
	assert.Contains(t, out, `"pong"`)
	assert.Contains(t, out, "b\terror\tboom")
	assert.Contains(t, out, "b\tpartial\t\"pa\"")
	assert.Contains(t, out, "c\ttimeout")
	assert.Contains(t, out, "bytes_written=0")
}
