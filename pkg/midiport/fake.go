package midiport

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Driver. Outputs hand written frames to a responder,
// which typically answers by emitting frames on a FakeInput.
type Fake struct {
	mu      sync.Mutex
	inputs  []*FakeInput
	outputs []*FakeOutput
	closed  bool
	err     error
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) AddInput(name string) *FakeInput {
	return f.AddInputInfo(PortInfo{ID: name, Name: name})
}

func (f *Fake) AddInputInfo(info PortInfo) *FakeInput {
	in := &FakeInput{info: info, listeners: make(map[int]func([]byte))}
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return in
}

func (f *Fake) AddOutput(name string) *FakeOutput {
	return f.AddOutputInfo(PortInfo{ID: name, Name: name})
}

func (f *Fake) AddOutputInfo(info PortInfo) *FakeOutput {
	out := &FakeOutput{info: info}
	f.mu.Lock()
	f.outputs = append(f.outputs, out)
	f.mu.Unlock()
	return out
}

// RemoveOutput unplugs the output with the given id.
func (f *Fake) RemoveOutput(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.outputs {
		if o.info.ID == id {
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			return
		}
	}
}

// FailEnumeration makes Inputs and Outputs return err until cleared with nil.
func (f *Fake) FailEnumeration(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Fake) Inputs() ([]Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	res := make([]Input, 0, len(f.inputs))
	for _, in := range f.inputs {
		res = append(res, in)
	}
	return res, nil
}

func (f *Fake) Outputs() ([]Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	res := make([]Output, 0, len(f.outputs))
	for _, o := range f.outputs {
		res = append(res, o)
	}
	return res, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type FakeInput struct {
	info      PortInfo
	mu        sync.Mutex
	listeners map[int]func([]byte)
	next      int
	listenErr error
}

func (i *FakeInput) Info() PortInfo { return i.info }

func (i *FakeInput) Listen(fn func([]byte)) (func(), error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listenErr != nil {
		return nil, i.listenErr
	}
	id := i.next
	i.next++
	i.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			i.mu.Lock()
			delete(i.listeners, id)
			i.mu.Unlock()
		})
	}, nil
}

// FailListen makes Listen return err.
func (i *FakeInput) FailListen(err error) {
	i.mu.Lock()
	i.listenErr = err
	i.mu.Unlock()
}

// Listeners is the number of active listeners.
func (i *FakeInput) Listeners() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.listeners)
}

// Emit delivers frame to every listener.
func (i *FakeInput) Emit(frame []byte) {
	i.mu.Lock()
	fns := make([]func([]byte), 0, len(i.listeners))
	for _, fn := range i.listeners {
		fns = append(fns, fn)
	}
	i.mu.Unlock()

	for _, fn := range fns {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		fn(cp)
	}
}

type FakeOutput struct {
	info      PortInfo
	mu        sync.Mutex
	sent      [][]byte
	responder func([]byte)
	sendErr   error
}

func (o *FakeOutput) Info() PortInfo { return o.info }

// Respond installs fn to be called on its own goroutine with every frame
// written to the output.
func (o *FakeOutput) Respond(fn func(frame []byte)) {
	o.mu.Lock()
	o.responder = fn
	o.mu.Unlock()
}

// FailSend makes Send return err until cleared with nil.
func (o *FakeOutput) FailSend(err error) {
	o.mu.Lock()
	o.sendErr = err
	o.mu.Unlock()
}

func (o *FakeOutput) Send(frame []byte) error {
	o.mu.Lock()
	if o.sendErr != nil {
		err := o.sendErr
		o.mu.Unlock()
		return fmt.Errorf("fake send on %q: %w", o.info.Name, err)
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	o.sent = append(o.sent, cp)
	responder := o.responder
	o.mu.Unlock()

	if responder != nil {
		go responder(cp)
	}
	return nil
}

// Sent returns every frame written so far.
func (o *FakeOutput) Sent() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := make([][]byte, len(o.sent))
	copy(res, o.sent)
	return res
}
