package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opendeckmcp/pkg/device"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	d, err := c.Device()
	require.NoError(t, err)
	def := device.DefaultConfig()
	assert.Equal(t, def.Match, d.Match)
	assert.Equal(t, def.ValueReadTimeout, d.ValueReadTimeout)
	assert.Equal(t, def.ComponentRetrySchedule, d.ComponentRetrySchedule)
	assert.Empty(t, d.Boards)

	delay, err := c.LineDelay()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, delay)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "opendeck.yaml", `
output: OpenDeck
handshake_timeout: 500ms
max_attempts: 3
component_retry_schedule: [2s, 4s]
upload_line_delay: 20ms
request_log: /tmp/requests.cbor
boards:
  - name: Arduino Mega
    id: "12 34 56 78"
    old_id: "01 02 03 04"
    firmware_file: mega2560
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "OpenDeck", c.Output)
	assert.Equal(t, "/tmp/requests.cbor", c.RequestLog)

	d, err := c.Device()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d.Match.HandshakeTimeout)
	assert.Equal(t, 250*time.Millisecond, d.Match.RetryDelay)
	assert.Equal(t, 3, d.Match.MaxAttempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, d.ComponentRetrySchedule)
	require.Len(t, d.Boards, 1)
	assert.Equal(t, "Arduino Mega", d.Boards[0].Name)
	require.NotNil(t, d.Boards[0].OldID)
	assert.Equal(t, "01 02 03 04", d.Boards[0].OldID.String())

	delay, err := c.LineDelay()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, delay)
}

func TestLoadHCL(t *testing.T) {
	path := writeFile(t, "opendeck.hcl", `
output             = "OpenDeck DFU"
request_timeout    = "1s"
watcher_interval   = "2s"
metrics_address    = ":9100"

board "Teensy 4.1" {
  id            = "AA BB CC DD"
  firmware_file = "teensy41"
}
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "OpenDeck DFU", c.Output)
	assert.Equal(t, ":9100", c.MetricsAddress)

	d, err := c.Device()
	require.NoError(t, err)
	assert.Equal(t, time.Second, d.RequestTimeout)
	assert.Equal(t, 2*time.Second, d.WatcherInterval)
	assert.Equal(t, 1200*time.Millisecond, d.ValueReadTimeout)
	require.Len(t, d.Boards, 1)
	assert.Equal(t, "Teensy 4.1", d.Boards[0].Name)
	assert.Equal(t, "AA BB CC DD", d.Boards[0].ID.String())
	assert.Nil(t, d.Boards[0].OldID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "opendeck.toml", "output = 1"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(writeFile(t, "bad.yaml", "request_timeout: soon"))
	assert.ErrorContains(t, err, "request_timeout")

	_, err = Load(writeFile(t, "bad.hcl", `board "x" { id = "12 34" }`))
	assert.ErrorContains(t, err, "board \"x\"")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
