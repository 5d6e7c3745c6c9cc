package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opendeckmcp/pkg/config"
	"opendeckmcp/pkg/device"
	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/reqlog"
)

func TestParseRequest(t *testing.T) {
	cfg, err := parseRequest([]string{"button", "2", "17"}, false)
	require.NoError(t, err)
	assert.Equal(t, opendeck.RequestConfig{Block: opendeck.BlockButton, Section: 2, Index: 17}, cfg)

	cfg, err = parseRequest([]string{"4", "0", "0x10", "16383"}, true)
	require.NoError(t, err)
	assert.Equal(t, opendeck.RequestConfig{Block: opendeck.BlockLed, Index: 16, Value: 16383}, cfg)

	for _, args := range [][]string{
		{"button", "2"},
		{"pedal", "0", "0"},
		{"button", "128", "0"},
		{"button", "0", "16384"},
		{"button", "0", "0", "x"},
	} {
		_, err := parseRequest(args, len(args) == 4)
		assert.Error(t, err, "%v", args)
	}
}

func TestSectionRequests(t *testing.T) {
	base := opendeck.RequestConfig{Block: opendeck.BlockAnalog, Section: 3, Index: 9, Value: 5}
	reqs := sectionRequests(base, 3)
	require.Len(t, reqs, 3)
	for i, r := range reqs {
		assert.Equal(t, opendeck.BlockAnalog, r.Block)
		assert.Equal(t, uint8(3), r.Section)
		assert.Equal(t, uint16(i), r.Index)
		assert.Zero(t, r.Value)
	}
}

func TestComponentCount(t *testing.T) {
	c := opendeck.ComponentCounts{Buttons: 32, Encoders: 8, Analog: 4, LEDs: 48, Touchscreen: 2}
	assert.Equal(t, 32, componentCount(c, opendeck.BlockButton))
	assert.Equal(t, 8, componentCount(c, opendeck.BlockEncoder))
	assert.Equal(t, 4, componentCount(c, opendeck.BlockAnalog))
	assert.Equal(t, 48, componentCount(c, opendeck.BlockLed))
	assert.Equal(t, 2, componentCount(c, opendeck.BlockTouchscreen))
	assert.Equal(t, 1, componentCount(c, opendeck.BlockGlobal))
}

func TestDescribeError(t *testing.T) {
	assert.Contains(t, describeError(device.ErrBootloaderMode), "reboot the board first")
	assert.Equal(t, device.ErrNotConnected.Error(), describeError(device.ErrNotConnected))
}

func newTestConsole(t *testing.T) (*console, *bytes.Buffer) {
	var buf bytes.Buffer
	client := device.New(midiport.NewFake())
	t.Cleanup(client.Close)
	a := &app{config: config.Default(), client: client, recent: reqlog.NewMemory(10)}
	return &console{a: a, out: &buf}, &buf
}

func TestConsoleWithoutBoard(t *testing.T) {
	c, out := newTestConsole(t)
	ctx := context.Background()

	assert.True(t, c.exec(ctx, "info"))
	assert.Contains(t, out.String(), "state:       CLOSED")

	out.Reset()
	assert.True(t, c.exec(ctx, "get button 0 0"))
	assert.Contains(t, out.String(), "error: "+device.ErrNotConnected.Error())

	out.Reset()
	assert.True(t, c.exec(ctx, "cmd SetValue"))
	assert.Contains(t, out.String(), "not a special request")

	out.Reset()
	assert.True(t, c.exec(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	out.Reset()
	assert.True(t, c.exec(ctx, "reconnect"))
	assert.Contains(t, out.String(), "no board selected")

	out.Reset()
	c.a.recent.Log(reqlog.Event{Command: "GetFirmwareVersion"})
	c.a.recent.Log(reqlog.Event{Command: "IdentifyBoard"})
	assert.True(t, c.exec(ctx, "log 1"))
	assert.NotContains(t, out.String(), "GetFirmwareVersion")
	assert.Contains(t, out.String(), "IdentifyBoard")

	assert.True(t, c.exec(ctx, "   "))
	assert.False(t, c.exec(ctx, "quit"))
}

func TestRequestFromArgs(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{
		"block":   "encoder",
		"section": float64(1),
		"index":   float64(7),
		"value":   float64(300),
	}

	cfg, err := requestFromArgs(req, true)
	require.NoError(t, err)
	assert.Equal(t, opendeck.RequestConfig{Block: opendeck.BlockEncoder, Section: 1, Index: 7, Value: 300}, cfg)

	delete(req.Params.Arguments.(map[string]any), "index")
	_, err = requestFromArgs(req, false)
	assert.Error(t, err)
}

func TestJSONResult(t *testing.T) {
	res, err := jsonResult(opendeck.RequestConfig{Block: opendeck.BlockLed, Index: 2})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var cfg opendeck.RequestConfig
	require.NoError(t, json.Unmarshal([]byte(text.Text), &cfg))
	assert.Equal(t, uint16(2), cfg.Index)
}
