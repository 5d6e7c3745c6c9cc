package midiport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameHelpers(t *testing.T) {
	assert.True(t, IsThrough("Midi Through Port-0"))
	assert.True(t, IsThrough("MIDI Thru"))
	assert.False(t, IsThrough("OpenDeck MIDI 1"))

	assert.True(t, IsBootloader("OpenDeck DFU"))
	assert.False(t, IsBootloader("OpenDeck"))
	assert.False(t, IsBootloader("STM32 DFU"))
	assert.False(t, IsBootloader("Synth DFU Port"))

	assert.True(t, OnlyThrough([]PortInfo{{Name: "Midi Through Port-0"}}))
	assert.False(t, OnlyThrough([]PortInfo{{Name: "Midi Through Port-0"}, {Name: "OpenDeck"}}))
	assert.False(t, OnlyThrough(nil))
}

func TestResolveOutput(t *testing.T) {
	f := NewFake()
	f.AddOutput("Midi Through Port-0")
	f.AddOutputInfo(PortInfo{ID: "out-2", Name: "OpenDeck Mega"})

	out, err := ResolveOutput(f, "out-2")
	require.NoError(t, err)
	assert.Equal(t, "OpenDeck Mega", out.Info().Name)

	out, err = ResolveOutput(f, "opendeck")
	require.NoError(t, err)
	assert.Equal(t, "out-2", out.Info().ID)

	_, err = ResolveOutput(f, "blofeld")
	assert.ErrorIs(t, err, ErrPortNotFound)

	_, err = FindOutput(f, "OpenDeck Mega")
	assert.ErrorIs(t, err, ErrPortNotFound)

	f.RemoveOutput("out-2")
	_, err = FindOutput(f, "out-2")
	assert.ErrorIs(t, err, ErrPortNotFound)
}

func TestFakeInputListeners(t *testing.T) {
	f := NewFake()
	in := f.AddInput("OpenDeck")

	got := make(chan []byte, 1)
	stop, err := in.Listen(func(b []byte) { got <- b })
	require.NoError(t, err)
	assert.Equal(t, 1, in.Listeners())

	in.Emit([]byte{0xF0, 0x01, 0xF7})
	assert.Equal(t, []byte{0xF0, 0x01, 0xF7}, <-got)

	stop()
	stop()
	assert.Equal(t, 0, in.Listeners())

	in.FailListen(errors.New("busy"))
	_, err = in.Listen(func([]byte) {})
	assert.Error(t, err)
}

func TestFakeOutputResponder(t *testing.T) {
	f := NewFake()
	out := f.AddOutput("OpenDeck")

	seen := make(chan []byte, 1)
	out.Respond(func(b []byte) { seen <- b })

	require.NoError(t, out.Send([]byte{0xF0, 0xF7}))
	select {
	case b := <-seen:
		assert.Equal(t, []byte{0xF0, 0xF7}, b)
	case <-time.After(time.Second):
		t.Fatal("responder not called")
	}
	assert.Len(t, out.Sent(), 1)

	out.FailSend(errors.New("unplugged"))
	assert.Error(t, out.Send([]byte{0xF0, 0xF7}))
	assert.Len(t, out.Sent(), 1)
}

func TestList(t *testing.T) {
	f := NewFake()
	f.AddInput("in")
	f.AddOutput("out")
	ins, outs, err := List(f)
	require.NoError(t, err)
	assert.Equal(t, []PortInfo{{ID: "in", Name: "in"}}, ins)
	assert.Equal(t, []PortInfo{{ID: "out", Name: "out"}}, outs)

	f.FailEnumeration(errors.New("backend gone"))
	_, _, err = List(f)
	assert.Error(t, err)
}
