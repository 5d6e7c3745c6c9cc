// Package queue serializes requests to an OpenDeck device. Exactly one
// request is in flight at a time and replies are correlated by command id.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopholelabs/logging/types"

	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/reqlog"
)

const (
	DefaultTimeout = 3 * time.Second

	frameChanSize = 64
)

type Option func(*Queue)

func WithLogger(log types.Logger) Option {
	return func(q *Queue) { q.log = log }
}

func WithRequestLog(l reqlog.Logger) Option {
	return func(q *Queue) { q.reqlog = l }
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.defaultTimeout = d
		}
	}
}

// WithTransportErrorHandler registers fn to be called, on its own goroutine,
// after a write to the output fails.
func WithTransportErrorHandler(fn func(error)) Option {
	return func(q *Queue) { q.onTransportError = fn }
}

func WithValueSize(size opendeck.ValueSize) Option {
	return func(q *Queue) { q.width.Store(int32(size)) }
}

// Metrics is a snapshot of queue counters.
type Metrics struct {
	Sent            uint64
	Replies         uint64
	Timeouts        uint64
	DeviceErrors    uint64
	WriteErrors     uint64
	Resets          uint64
	FramesIn        uint64
	FramesDiscarded uint64
	Pending         int64
	InFlight        bool
}

type Queue struct {
	out              midiport.Output
	log              types.Logger
	reqlog           reqlog.Logger
	onTransportError func(error)
	defaultTimeout   time.Duration
	width            atomic.Int32

	submit  chan *pending
	frames  chan []byte
	resets  chan chan struct{}
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	stopMu    sync.Mutex
	stops     []func()

	sent            atomic.Uint64
	replies         atomic.Uint64
	timeouts        atomic.Uint64
	deviceErrors    atomic.Uint64
	writeErrors     atomic.Uint64
	resetCount      atomic.Uint64
	framesIn        atomic.Uint64
	framesDiscarded atomic.Uint64
	pendingCount    atomic.Int64
	inFlight        atomic.Bool
}

// New starts a queue writing to out. Frames from the device are fed in with
// Deliver or by attaching an input with Listen.
func New(out midiport.Output, opts ...Option) *Queue {
	q := &Queue{
		out:            out,
		reqlog:         reqlog.NoopLogger{},
		defaultTimeout: DefaultTimeout,
		submit:         make(chan *pending),
		frames:         make(chan []byte, frameChanSize),
		resets:         make(chan chan struct{}),
		closing:        make(chan struct{}),
		done:           make(chan struct{}),
	}
	q.width.Store(int32(opendeck.ValueSize1))
	for _, o := range opts {
		o(q)
	}
	if q.reqlog == nil {
		q.reqlog = reqlog.NoopLogger{}
	}

	go q.run()
	return q
}

// SetValueSize changes the width used to encode requests dispatched from now on.
func (q *Queue) SetValueSize(size opendeck.ValueSize) {
	q.width.Store(int32(size))
}

func (q *Queue) ValueSize() opendeck.ValueSize {
	return opendeck.ValueSize(q.width.Load())
}

// Listen feeds every frame received on in to the queue until Close.
func (q *Queue) Listen(in midiport.Input) error {
	stop, err := in.Listen(q.Deliver)
	if err != nil {
		return err
	}
	q.stopMu.Lock()
	q.stops = append(q.stops, stop)
	q.stopMu.Unlock()
	return nil
}

// Deliver hands a received frame to the queue.
func (q *Queue) Deliver(frame []byte) {
	select {
	case q.frames <- frame:
	case <-q.done:
	}
}

// Send submits req and waits for it to resolve. If ctx ends first, Send
// returns ctx.Err(); a queued request is then skipped while an in-flight
// one keeps its slot until it resolves or times out.
func (q *Queue) Send(ctx context.Context, req Request) (opendeck.Response, error) {
	p := &pending{
		ctx:     ctx,
		req:     req,
		timeout: req.Timeout,
		result:  make(chan result, 1),
	}
	if p.timeout <= 0 {
		p.timeout = q.defaultTimeout
	}

	select {
	case q.submit <- p:
	case <-q.done:
		return opendeck.Response{}, ErrQueueClosed
	case <-ctx.Done():
		return opendeck.Response{}, ctx.Err()
	}

	select {
	case r := <-p.result:
		return r.resp, r.err
	case <-ctx.Done():
		return opendeck.Response{}, ctx.Err()
	}
}

// Reset rejects every queued and in-flight request with ErrQueueReset
// without calling their handlers.
func (q *Queue) Reset() {
	ack := make(chan struct{})
	select {
	case q.resets <- ack:
		<-ack
	case <-q.done:
	}
}

// Close rejects outstanding requests with ErrQueueClosed, detaches inputs
// and stops the queue. It is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.stopMu.Lock()
		for _, stop := range q.stops {
			stop()
		}
		q.stops = nil
		q.stopMu.Unlock()

		close(q.closing)
	})
	<-q.done
}

func (q *Queue) GetMetrics() *Metrics {
	return &Metrics{
		Sent:            q.sent.Load(),
		Replies:         q.replies.Load(),
		Timeouts:        q.timeouts.Load(),
		DeviceErrors:    q.deviceErrors.Load(),
		WriteErrors:     q.writeErrors.Load(),
		Resets:          q.resetCount.Load(),
		FramesIn:        q.framesIn.Load(),
		FramesDiscarded: q.framesDiscarded.Load(),
		Pending:         q.pendingCount.Load(),
		InFlight:        q.inFlight.Load(),
	}
}

// run owns the FIFO, the in-flight slot and the timer.
func (q *Queue) run() {
	defer close(q.done)

	var (
		fifo    []*pending
		current *pending
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}
	arm := func(d time.Duration) {
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		timerC = timer.C
	}
	resolve := func(resp opendeck.Response, err error) {
		current.finish(resp, err)
		current = nil
		q.inFlight.Store(false)
		disarm()
	}
	rejectAll := func(err error) {
		if current != nil {
			resolve(opendeck.Response{}, err)
		}
		for _, p := range fifo {
			p.finish(opendeck.Response{}, err)
		}
		fifo = nil
		q.pendingCount.Store(0)
	}

	for {
		for current == nil && len(fifo) > 0 {
			p := fifo[0]
			fifo[0] = nil
			fifo = fifo[1:]
			q.pendingCount.Store(int64(len(fifo)))

			if p.ctx.Err() != nil {
				p.finish(opendeck.Response{}, p.ctx.Err())
				continue
			}
			if q.dispatch(p) {
				current = p
				q.inFlight.Store(true)
				arm(p.timeout)
			}
		}

		select {
		case p := <-q.submit:
			fifo = append(fifo, p)
			q.pendingCount.Store(int64(len(fifo)))

		case frame := <-q.frames:
			q.framesIn.Add(1)
			resp, err := opendeck.ParseResponse(frame)
			if err != nil {
				q.framesDiscarded.Add(1)
				continue
			}
			q.reqlog.Log(reqlog.Event{
				Timestamp: time.Now(),
				Direction: reqlog.DirectionIn,
				Kind:      reqlog.KindFrame,
				Frame:     resp.Raw,
			})

			if current == nil || !current.req.Command.Matches(resp) {
				q.framesDiscarded.Add(1)
				if q.log != nil {
					q.log.Trace().Int("status", int(resp.Status)).Int("id", int(resp.ID)).Msg("discarding uncorrelated frame")
				}
				continue
			}
			q.replies.Add(1)

			if resp.Status.IsError() {
				q.deviceErrors.Add(1)
				err := &opendeck.StatusError{Command: current.req.Command, Status: resp.Status}
				q.logFailure(current, err)
				resolve(resp, err)
				continue
			}

			h := current.req.Handler
			current.last = resp
			if h.IsStream() {
				if h.stream(resp) {
					resolve(resp, nil)
				} else {
					arm(current.timeout)
				}
				continue
			}
			if h.once != nil {
				h.once(resp)
			}
			resolve(resp, nil)

		case <-timerC:
			timer, timerC = nil, nil
			if current == nil {
				continue
			}
			q.timeouts.Add(1)
			err := &RequestTimeoutError{Command: current.req.Command, Config: current.req.Config, Timeout: current.timeout}
			if q.log != nil {
				q.log.Debug().Str("command", current.req.Command.String()).Int64("timeout_ms", current.timeout.Milliseconds()).Msg("request timed out")
			}
			q.logFailure(current, err)
			resolve(current.last, err)

		case ack := <-q.resets:
			q.resetCount.Add(1)
			rejectAll(ErrQueueReset)
			close(ack)

		case <-q.closing:
			rejectAll(ErrQueueClosed)
			return
		}
	}
}

// dispatch writes p to the output. It reports whether p now waits for a
// reply; otherwise p has already been resolved.
func (q *Queue) dispatch(p *pending) bool {
	cmd := p.req.Command

	frame := p.req.Frame
	if frame == nil {
		var err error
		frame, err = opendeck.EncodeRequest(cmd, p.req.Config, q.ValueSize())
		if err != nil {
			q.logFailure(p, err)
			p.finish(opendeck.Response{}, err)
			return false
		}
	}
	p.frame = frame

	var request string
	if p.req.Config != nil {
		request = p.req.Config.String()
	}
	q.reqlog.Log(reqlog.Event{
		Timestamp: time.Now(),
		Direction: reqlog.DirectionOut,
		Kind:      reqlog.KindFrame,
		Command:   cmd.String(),
		Request:   request,
		Frame:     frame,
	})
	if q.log != nil {
		q.log.Trace().Str("command", cmd.String()).Int("bytes", len(frame)).Msg("dispatching request")
	}

	if err := q.out.Send(frame); err != nil {
		q.writeErrors.Add(1)
		werr := &TransportWriteError{Command: cmd, Err: err}
		if q.log != nil {
			q.log.Error().Str("command", cmd.String()).Err(err).Msg("output write failed")
		}
		q.logFailure(p, werr)
		p.finish(opendeck.Response{}, werr)
		if q.onTransportError != nil {
			go q.onTransportError(werr)
		}
		return false
	}
	q.sent.Add(1)

	if !cmd.ExpectsReply() {
		p.finish(opendeck.Response{}, nil)
		return false
	}
	return true
}

func (q *Queue) logFailure(p *pending, err error) {
	var request string
	if p.req.Config != nil {
		request = p.req.Config.String()
	}
	q.reqlog.Log(reqlog.Event{
		Timestamp: time.Now(),
		Direction: reqlog.DirectionOut,
		Kind:      reqlog.KindError,
		Command:   p.req.Command.String(),
		Request:   request,
		Error:     err.Error(),
	})
}

// IsTerminal reports whether err means the session can no longer be used.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTransportWriteFailed) || errors.Is(err, ErrQueueClosed)
}
