package midiport

import (
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const defaultSysExBuffer = 4096

// Gomidi is a Driver backed by gomidi and the rtmidi driver.
type Gomidi struct {
	log         types.Logger
	sysexBuffer uint32
}

type GomidiOption func(*Gomidi)

func WithLogger(log types.Logger) GomidiOption {
	return func(g *Gomidi) { g.log = log }
}

// WithSysExBuffer sets the receive buffer, which bounds the largest frame.
func WithSysExBuffer(size uint32) GomidiOption {
	return func(g *Gomidi) { g.sysexBuffer = size }
}

func NewGomidi(opts ...GomidiOption) *Gomidi {
	g := &Gomidi{sysexBuffer: defaultSysExBuffer}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gomidi) Inputs() ([]Input, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs: %w", err)
	}
	out := make([]Input, 0, len(ins))
	for _, in := range ins {
		out = append(out, &gomidiIn{in: in, g: g})
	}
	return out, nil
}

func (g *Gomidi) Outputs() ([]Output, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI outputs: %w", err)
	}
	res := make([]Output, 0, len(outs))
	for _, o := range outs {
		res = append(res, &gomidiOut{out: o})
	}
	return res, nil
}

func (g *Gomidi) Close() error {
	drivers.Close()
	return nil
}

func portInfo(name string) PortInfo {
	// rtmidi names carry the client:port suffix, which keeps them unique.
	return PortInfo{ID: name, Name: name}
}

type gomidiIn struct {
	in drivers.In
	g  *Gomidi
}

func (i *gomidiIn) Info() PortInfo { return portInfo(i.in.String()) }

func (i *gomidiIn) Listen(fn func([]byte)) (func(), error) {
	name := i.in.String()
	stop, err := midi.ListenTo(i.in, func(msg midi.Message, _ int32) {
		if len(msg) == 0 || msg[0] != 0xF0 {
			return
		}
		frame := make([]byte, len(msg))
		copy(frame, msg)
		fn(frame)
	}, midi.UseSysEx(), midi.SysExBufferSize(i.g.sysexBuffer), midi.HandleError(func(err error) {
		if i.g.log != nil {
			i.g.log.Error().Err(err).Str("port", name).Msg("midi input error")
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", name, err)
	}

	var once sync.Once
	return func() { once.Do(stop) }, nil
}

type gomidiOut struct {
	out drivers.Out
}

func (o *gomidiOut) Info() PortInfo { return portInfo(o.out.String()) }

func (o *gomidiOut) Send(frame []byte) error {
	if !o.out.IsOpen() {
		if err := o.out.Open(); err != nil {
			return fmt.Errorf("opening %q: %w", o.out.String(), err)
		}
	}
	return o.out.Send(frame)
}
