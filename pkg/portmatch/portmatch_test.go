package portmatch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
)

var handshake = []byte{0xF0, 0x00, 0x53, 0x43, 0x00, 0x00, 0x01, 0xF7}

func fastConfig() Config {
	return Config{
		HandshakeTimeout: 30 * time.Millisecond,
		RetryDelay:       5 * time.Millisecond,
		MaxAttempts:      3,
	}
}

func TestMatchSecondCandidateWidth1(t *testing.T) {
	f := midiport.NewFake()
	a := f.AddInput("A")
	b := f.AddInput("B")
	c := f.AddInput("C")
	out := f.AddOutput("OpenDeck")

	out.Respond(func(frame []byte) {
		if bytes.Equal(frame, handshake) {
			b.Emit([]byte{0xF0, 0x00, 0x53, 0x43, 0x01, 0x00, 0xF7})
		}
	})

	m := New(f, fastConfig(), nil)
	match, err := m.Match(context.Background(), "OpenDeck")
	require.NoError(t, err)

	assert.Equal(t, "B", match.Input.Info().Name)
	assert.Equal(t, opendeck.ValueSize1, match.ValueSize)
	assert.False(t, match.BootloaderMode)
	assert.Equal(t, 1, match.Attempts)

	for _, in := range []*midiport.FakeInput{a, b, c} {
		assert.Equal(t, 0, in.Listeners(), in.Info().Name)
	}
}

func TestMatchWidth2(t *testing.T) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	out := f.AddOutput("OpenDeck")

	out.Respond(func([]byte) {
		in.Emit([]byte{0xF0, 0x00, 0x53, 0x43, 0x01, 0x00, 0x01, 0x00, 0xF7})
	})

	match, err := New(f, fastConfig(), nil).Match(context.Background(), "OpenDeck")
	require.NoError(t, err)
	assert.Equal(t, opendeck.ValueSize2, match.ValueSize)
}

func TestMatchIgnoresForeignSysEx(t *testing.T) {
	f := midiport.NewFake()
	noisy := f.AddInput("Synth")
	board := f.AddInput("Board")
	out := f.AddOutput("Board out")

	out.Respond(func([]byte) {
		noisy.Emit([]byte{0xF0, 0x3E, 0x13, 0x00, 0x01, 0x00, 0x01, 0xF7})
		time.Sleep(5 * time.Millisecond)
		board.Emit([]byte{0xF0, 0x00, 0x53, 0x43, 0x01, 0x00, 0x01, 0x00, 0xF7})
	})

	match, err := New(f, fastConfig(), nil).Match(context.Background(), "Board out")
	require.NoError(t, err)
	assert.Equal(t, "Board", match.Input.Info().Name)
}

func TestMatchRetriesThenSucceeds(t *testing.T) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	out := f.AddOutput("OpenDeck")

	calls := make(chan struct{}, 10)
	out.Respond(func([]byte) {
		calls <- struct{}{}
		if len(calls) >= 2 {
			in.Emit([]byte{0xF0, 0x00, 0x53, 0x43, 0x01, 0x00, 0x01, 0x00, 0xF7})
		}
	})

	match, err := New(f, fastConfig(), nil).Match(context.Background(), "OpenDeck")
	require.NoError(t, err)
	assert.Equal(t, 2, match.Attempts)
}

func TestMatchTimeout(t *testing.T) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	out := f.AddOutput("OpenDeck")

	start := time.Now()
	_, err := New(f, fastConfig(), nil).Match(context.Background(), "OpenDeck")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeTimeout))

	var hte *HandshakeTimeoutError
	require.ErrorAs(t, err, &hte)
	assert.Equal(t, 3, hte.Attempts)
	assert.Contains(t, err.Error(), "OpenDeck firmware")

	assert.Len(t, out.Sent(), 3)
	assert.Equal(t, 0, in.Listeners())
	assert.GreaterOrEqual(t, time.Since(start), 3*30*time.Millisecond)
}

func TestMatchRetriesFailedSend(t *testing.T) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	out := f.AddOutput("OpenDeck")
	out.Respond(func([]byte) {
		in.Emit([]byte{0xF0, 0x00, 0x53, 0x43, 0x01, 0x00, 0x01, 0x00, 0xF7})
	})

	out.FailSend(errors.New("device busy"))
	time.AfterFunc(2*time.Millisecond, func() { out.FailSend(nil) })

	cfg := fastConfig()
	cfg.RetryDelay = 30 * time.Millisecond
	match, err := New(f, cfg, nil).Match(context.Background(), "OpenDeck")
	require.NoError(t, err)
	assert.Equal(t, 2, match.Attempts)
	assert.Len(t, out.Sent(), 1)
}

func TestMatchSendKeepsFailing(t *testing.T) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	out := f.AddOutput("OpenDeck")
	out.FailSend(errors.New("device busy"))

	start := time.Now()
	_, err := New(f, fastConfig(), nil).Match(context.Background(), "OpenDeck")
	require.ErrorIs(t, err, errHandshakeSend)
	assert.Contains(t, err.Error(), "device busy")
	assert.GreaterOrEqual(t, time.Since(start), 2*fastConfig().RetryDelay)
	assert.Equal(t, 0, in.Listeners())
}

func TestMatchOutputNotFound(t *testing.T) {
	f := midiport.NewFake()
	f.AddInput("OpenDeck")

	_, err := New(f, fastConfig(), nil).Match(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOutputNotFound)
}

func TestMatchNoInputs(t *testing.T) {
	f := midiport.NewFake()
	f.AddOutput("OpenDeck")

	_, err := New(f, fastConfig(), nil).Match(context.Background(), "OpenDeck")
	assert.ErrorIs(t, err, ErrNoCandidatePorts)
}

func TestMatchBootloader(t *testing.T) {
	f := midiport.NewFake()
	f.AddInput("Other")
	dfu := f.AddInput("OpenDeck DFU")
	out := f.AddOutput("OpenDeck DFU")

	match, err := New(f, fastConfig(), nil).Match(context.Background(), "OpenDeck DFU")
	require.NoError(t, err)
	assert.True(t, match.BootloaderMode)
	assert.Equal(t, midiport.Input(dfu), match.Input)
	assert.Empty(t, out.Sent(), "no handshake in bootloader mode")
}

func TestMatchContextCancel(t *testing.T) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	f.AddOutput("OpenDeck")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	cfg := fastConfig()
	cfg.HandshakeTimeout = time.Second
	_, err := New(f, cfg, nil).Match(ctx, "OpenDeck")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, in.Listeners())
}

func TestCandidates(t *testing.T) {
	f := midiport.NewFake()
	through := f.AddInput("Midi Through Port-0")
	exact := f.AddInput("OpenDeck")
	fuzzy := f.AddInput("OpenDeck MIDI 1")
	maker := f.AddInputInfo(midiport.PortInfo{ID: "m", Name: "USB Audio", Manufacturer: "Shanteau"})
	ins, err := f.Inputs()
	require.NoError(t, err)

	got := Candidates(midiport.PortInfo{Name: "OpenDeck"}, ins)
	assert.Equal(t, []midiport.Input{exact}, got)

	got = Candidates(midiport.PortInfo{Name: "OpenDeck MIDI"}, ins)
	assert.Equal(t, []midiport.Input{exact, fuzzy}, got)

	got = Candidates(midiport.PortInfo{Name: "OpenDeck MIDI 1 20:0"}, ins)
	assert.Equal(t, []midiport.Input{exact, fuzzy}, got)

	got = Candidates(midiport.PortInfo{Name: "Board", Manufacturer: "Shanteau"}, ins)
	assert.Equal(t, []midiport.Input{maker}, got)

	got = Candidates(midiport.PortInfo{Name: "Board"}, ins)
	assert.Equal(t, []midiport.Input{exact, fuzzy, maker}, got)

	only := []midiport.Input{through}
	assert.Equal(t, only, Candidates(midiport.PortInfo{Name: "Board"}, only))
}
