package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loopholelabs/logging/types"
	"golang.org/x/sync/singleflight"

	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/portmatch"
	"opendeckmcp/pkg/queue"
	"opendeckmcp/pkg/reqlog"
)

type Config struct {
	Match portmatch.Config
	// RequestTimeout is the default per-request timeout.
	RequestTimeout time.Duration
	// ValueReadTimeout bounds each read issued by LoadValues.
	ValueReadTimeout time.Duration
	WatcherInterval  time.Duration
	// ComponentRetrySchedule holds offsets, measured from the end of the
	// connect sequence, at which component counts are requested again while
	// the board reports none.
	ComponentRetrySchedule []time.Duration
	MaxConsecutiveFailures int
	Boards                 opendeck.BoardTable
}

func DefaultConfig() Config {
	return Config{
		Match:            portmatch.DefaultConfig(),
		RequestTimeout:   queue.DefaultTimeout,
		ValueReadTimeout: 1200 * time.Millisecond,
		WatcherInterval:  1000 * time.Millisecond,
		ComponentRetrySchedule: []time.Duration{
			1 * time.Second,
			3 * time.Second,
			6 * time.Second,
		},
		MaxConsecutiveFailures: 1,
	}
}

type Option func(*Client)

func WithConfig(config Config) Option {
	return func(c *Client) { c.config = config }
}

func WithLogger(log types.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithRequestLog(l reqlog.Logger) Option {
	return func(c *Client) { c.reqlog = l }
}

// WithOnDisconnect registers fn to be called, on its own goroutine, when an
// open session ends without an explicit Close, e.g. because the output
// vanished.
func WithOnDisconnect(fn func(Session, error)) Option {
	return func(c *Client) { c.onDisconnect = fn }
}

// Client owns at most one session with a board.
type Client struct {
	driver       midiport.Driver
	config       Config
	log          types.Logger
	reqlog       reqlog.Logger
	onDisconnect func(Session, error)

	connects singleflight.Group

	mu      sync.Mutex
	session Session
	queue   *queue.Queue
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	connectCount      atomic.Uint64
	connectFailures   atomic.Uint64
	handshakeAttempts atomic.Uint64
	disconnects       atomic.Uint64
	stepFailures      atomic.Uint64
}

func New(driver midiport.Driver, opts ...Option) *Client {
	c := &Client{
		driver: driver,
		config: DefaultConfig(),
		reqlog: reqlog.NoopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.reqlog == nil {
		c.reqlog = reqlog.NoopLogger{}
	}
	c.session.Status = StateClosed.String()
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect opens a session on outputID. Concurrent calls for the same output
// share one attempt. Connecting to another output closes the current session.
// Close while the attempt is pending aborts it with ErrConnectAborted.
func (c *Client) Connect(ctx context.Context, outputID string) error {
	if outputID == "" {
		return ErrInvalidOutputID
	}

	c.mu.Lock()
	if c.session.State == StateOpen && c.session.OutputID == outputID {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	attemptCtx := context.WithoutCancel(ctx)
	ch := c.connects.DoChan(outputID, func() (any, error) {
		return nil, c.connect(attemptCtx, outputID)
	})

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect runs one attempt. The session id is assigned up front and every
// later change to the session is made only while that id is still current,
// so a Close or a newer attempt cannot be overwritten.
func (c *Client) connect(parent context.Context, outputID string) error {
	c.closeSession()
	c.connectCount.Add(1)

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	last := c.session.LastError
	c.session = Session{
		ID:        id,
		State:     StatePending,
		Status:    StatePending.String(),
		OutputID:  outputID,
		LastError: last,
	}
	c.cancel = cancel
	c.mu.Unlock()
	c.logState(id, StatePending)

	match, err := portmatch.New(c.driver, c.config.Match, c.log).Match(ctx, outputID)
	if err != nil {
		return c.fail(ctx, id, err)
	}
	c.handshakeAttempts.Add(uint64(match.Attempts))

	width := match.ValueSize
	if !width.Valid() {
		width = opendeck.ValueSize1
	}
	q := queue.New(match.Output,
		queue.WithLogger(c.log),
		queue.WithRequestLog(reqlog.Tagged(c.reqlog, func() string { return id })),
		queue.WithDefaultTimeout(c.config.RequestTimeout),
		queue.WithValueSize(width),
		queue.WithTransportErrorHandler(func(err error) { c.closeAttempt(id, err, true) }),
	)
	if match.Input != nil {
		if err := q.Listen(match.Input); err != nil {
			q.Close()
			return c.fail(ctx, id, fmt.Errorf("listening on %q: %w", match.Input.Info().Name, err))
		}
	}

	c.mu.Lock()
	if c.session.ID != id {
		c.mu.Unlock()
		q.Close()
		return c.fail(ctx, id, ErrConnectAborted)
	}
	c.queue = q
	c.session.OutputName = match.Output.Info().Name
	c.session.BootloaderMode = match.BootloaderMode
	c.session.ValueSize = width
	if match.Input != nil {
		c.session.InputName = match.Input.Info().Name
	}
	if match.BootloaderMode {
		c.session.BoardName = c.session.OutputName
	}
	c.mu.Unlock()

	if match.BootloaderMode {
		if err := c.open(ctx, id); err != nil {
			return c.fail(ctx, id, err)
		}
		return nil
	}

	if err := c.runSteps(ctx, handshakeSteps); err != nil {
		return c.fail(ctx, id, err)
	}
	if err := c.open(ctx, id); err != nil {
		return c.fail(ctx, id, err)
	}
	if err := c.runSteps(ctx, infoSteps); err != nil {
		return c.fail(ctx, id, err)
	}

	if !c.Session().Components.Any() {
		c.spawn(id, func() { c.retryComponents(ctx, id) })
	}
	return nil
}

// open marks session id Open and starts its output watcher.
func (c *Client) open(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.session.ID != id {
		c.mu.Unlock()
		return ErrConnectAborted
	}
	c.session.State = StateOpen
	c.session.Status = StateOpen.String()
	c.session.ConnectedAt = time.Now()
	s := c.session
	c.mu.Unlock()
	c.logState(id, StateOpen)

	if c.log != nil {
		c.log.Info().
			Str("session", s.ID).
			Str("output", s.OutputName).
			Str("firmware", s.FirmwareVersion).
			Int("value_size", int(s.ValueSize)).
			Msg("device session open")
	}

	c.spawn(id, func() { c.watch(ctx, id, s.OutputID) })
	return nil
}

// spawn runs fn on a goroutine tracked by Close, as long as session id is
// still current.
func (c *Client) spawn(id string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// fail closes attempt id if it is still current, records err and returns it.
// An attempt cancelled by Close or a newer attempt fails with
// ErrConnectAborted unless the port itself failed.
func (c *Client) fail(ctx context.Context, id string, err error) error {
	c.connectFailures.Add(1)
	if ctx.Err() != nil && !errors.Is(err, ErrConnectAborted) && !errors.Is(err, queue.ErrTransportWriteFailed) {
		err = fmt.Errorf("%w: %w", ErrConnectAborted, err)
	}
	c.closeAttempt(id, err, false)
	if c.log != nil {
		c.log.Error().Str("session", id).Err(err).Msg("device connect failed")
	}
	return err
}

// Close ends the session, aborting a pending connect. It is safe to call at
// any time, including from the disconnect callback.
func (c *Client) Close() {
	c.closeSession()
	c.wg.Wait()
}

// closeSession resets whatever session is current.
func (c *Client) closeSession() {
	c.shutdown("", nil, false)
}

// closeAttempt closes session id only. It is a no-op once the session was
// closed or replaced, so late events of an old session cannot end a newer
// one. A non-nil cause is recorded as the last error and, with report set,
// handed to the disconnect callback.
func (c *Client) closeAttempt(id string, cause error, report bool) {
	c.shutdown(id, cause, report)
}

func (c *Client) shutdown(id string, cause error, report bool) {
	c.mu.Lock()
	if id != "" && c.session.ID != id {
		c.mu.Unlock()
		return
	}
	q, cancel := c.queue, c.cancel
	old := c.session
	c.queue, c.cancel = nil, nil
	c.session = Session{State: StateClosed, Status: StateClosed.String(), LastError: old.LastError}
	if cause != nil {
		c.session.LastError = cause.Error()
	}
	if old.State == StatePending {
		// a Connect issued after this point starts a fresh attempt
		c.connects.Forget(old.OutputID)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if q != nil {
		q.Reset()
		q.Close()
	}
	if old.State != StateClosed {
		c.logState(old.ID, StateClosed)
	}

	if old.State == StateOpen && report && cause != nil {
		c.disconnects.Add(1)
		if c.log != nil {
			c.log.Info().Str("session", old.ID).Err(cause).Msg("device session closed")
		}
		if c.onDisconnect != nil {
			go c.onDisconnect(old, cause)
		}
	}
}

// watch closes session id once its output disappears.
func (c *Client) watch(ctx context.Context, id, outputID string) {
	interval := c.config.WatcherInterval
	if interval <= 0 {
		interval = DefaultConfig().WatcherInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := midiport.FindOutput(c.driver, outputID); err != nil {
				if c.log != nil {
					c.log.Debug().Str("output", outputID).Err(err).Msg("watcher lost output")
				}
				c.closeAttempt(id, fmt.Errorf("%w: %v", ErrOutputVanished, err), true)
				return
			}
		}
	}
}

// retryComponents asks for component counts again at each scheduled offset
// until the board reports some or session id ends.
func (c *Client) retryComponents(ctx context.Context, id string) {
	start := time.Now()
	for _, offset := range c.config.ComponentRetrySchedule {
		t := time.NewTimer(time.Until(start.Add(offset)))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		s := c.Session()
		if s.ID != id || s.State != StateOpen || s.Components.Any() {
			return
		}
		if err := c.runStep(ctx, componentsStep); err != nil {
			return
		}
		if c.Session().Components.Any() {
			return
		}
	}
}

func (c *Client) currentQueue() (*queue.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue == nil {
		return nil, ErrNotConnected
	}
	return c.queue, nil
}

// sendOn issues req on the queue of session id only.
func (c *Client) sendOn(ctx context.Context, id string, req queue.Request) (opendeck.Response, error) {
	c.mu.Lock()
	q := c.queue
	current := c.session.ID == id
	c.mu.Unlock()
	if !current || q == nil {
		return opendeck.Response{}, ErrNotConnected
	}
	return q.Send(ctx, req)
}

// Send issues req on the open session. In bootloader mode only firmware
// lines are accepted.
func (c *Client) Send(ctx context.Context, req queue.Request) (opendeck.Response, error) {
	s := c.Session()
	if s.State != StateOpen {
		return opendeck.Response{}, ErrNotConnected
	}
	if s.BootloaderMode && req.Command != opendeck.FirmwareUpdate {
		return opendeck.Response{}, fmt.Errorf("%s: %w", req.Command, ErrBootloaderMode)
	}
	return c.sendOn(ctx, s.ID, req)
}

// ResetQueue drops every queued and in-flight request of the session.
func (c *Client) ResetQueue() {
	if q, err := c.currentQueue(); err == nil {
		q.Reset()
	}
}

func (c *Client) logState(id string, s State) {
	c.reqlog.Log(reqlog.Event{
		Timestamp: time.Now(),
		SessionID: id,
		Kind:      reqlog.KindState,
		State:     s.String(),
	})
}

func (c *Client) GetMetrics() *Metrics {
	return &Metrics{
		State:             c.State(),
		Connects:          c.connectCount.Load(),
		ConnectFailures:   c.connectFailures.Load(),
		HandshakeAttempts: c.handshakeAttempts.Load(),
		Disconnects:       c.disconnects.Load(),
		StepFailures:      c.stepFailures.Load(),
	}
}

// QueueMetrics returns the counters of the current session's queue, or nil.
func (c *Client) QueueMetrics() *queue.Metrics {
	q, err := c.currentQueue()
	if err != nil {
		return nil
	}
	return q.GetMetrics()
}

func isTerminal(err error) bool {
	return queue.IsTerminal(err) || errors.Is(err, ErrNotConnected)
}
