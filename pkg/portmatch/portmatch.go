// Package portmatch finds the input port paired with a device output by
// broadcasting the OpenDeck handshake and waiting for the first reply.
package portmatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopholelabs/logging/types"

	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/sysex"
)

var (
	ErrHandshakeTimeout = errors.New("handshake timed out")
	ErrNoCandidatePorts = errors.New("no MIDI input ports available")
	ErrOutputNotFound   = errors.New("MIDI output port not found")
)

// Diagnostic is shown to users when no input answers the handshake.
const Diagnostic = `the device did not answer the SysEx handshake:
- make sure the board is running OpenDeck firmware
- close other MIDI programs (DAWs) that may hold the port
- try another cable or USB port`

// HandshakeTimeoutError is returned once every attempt went unanswered.
type HandshakeTimeoutError struct {
	Output   string
	Attempts int
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("handshake on %q failed after %d attempts; %s", e.Output, e.Attempts, Diagnostic)
}

func (e *HandshakeTimeoutError) Unwrap() error { return ErrHandshakeTimeout }

type Config struct {
	HandshakeTimeout time.Duration
	RetryDelay       time.Duration
	MaxAttempts      int
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 1000 * time.Millisecond,
		RetryDelay:       250 * time.Millisecond,
		MaxAttempts:      10,
	}
}

// Match is a resolved input/output pair.
type Match struct {
	Input          midiport.Input
	Output         midiport.Output
	BootloaderMode bool
	// ValueSize is derived from the handshake reply length.
	ValueSize opendeck.ValueSize
	Attempts  int
}

type Matcher struct {
	driver midiport.Driver
	config Config
	log    types.Logger
}

func New(driver midiport.Driver, config Config, log types.Logger) *Matcher {
	def := DefaultConfig()
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = def.RetryDelay
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	return &Matcher{driver: driver, config: config, log: log}
}

// Match resolves the input paired with outputID. It tries up to MaxAttempts
// times, waiting RetryDelay between attempts.
func (m *Matcher) Match(ctx context.Context, outputID string) (*Match, error) {
	var lastErr error

	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, m.config.RetryDelay); err != nil {
				return nil, err
			}
		}

		match, err := m.attempt(ctx, outputID)
		if err == nil {
			match.Attempts = attempt
			if m.log != nil {
				m.log.Info().
					Str("output", match.Output.Info().Name).
					Int("attempt", attempt).
					Int("value_size", int(match.ValueSize)).
					Msg("handshake matched input")
			}
			return match, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}

		lastErr = err
		if m.log != nil {
			m.log.Debug().Str("output", outputID).Int("attempt", attempt).Err(err).Msg("handshake attempt failed")
		}
	}

	if errors.Is(lastErr, errAttemptTimeout) {
		return nil, &HandshakeTimeoutError{Output: outputID, Attempts: m.config.MaxAttempts}
	}
	return nil, lastErr
}

var (
	errAttemptTimeout = errors.New("no handshake reply")
	errHandshakeSend  = errors.New("sending handshake")
)

// retryable errors are those a board being plugged in or re-enumerated
// produces for a moment.
func retryable(err error) bool {
	return errors.Is(err, errAttemptTimeout) ||
		errors.Is(err, errHandshakeSend) ||
		errors.Is(err, ErrOutputNotFound) ||
		errors.Is(err, ErrNoCandidatePorts)
}

func (m *Matcher) attempt(ctx context.Context, outputID string) (*Match, error) {
	out, err := midiport.FindOutput(m.driver, outputID)
	if err != nil {
		if errors.Is(err, midiport.ErrPortNotFound) {
			return nil, fmt.Errorf("output %q: %w", outputID, ErrOutputNotFound)
		}
		return nil, err
	}
	inputs, err := m.driver.Inputs()
	if err != nil {
		return nil, err
	}

	info := out.Info()
	if midiport.IsBootloader(info.Name) {
		match := &Match{Output: out, BootloaderMode: true}
		for _, in := range inputs {
			if midiport.IsBootloader(in.Info().Name) {
				match.Input = in
				break
			}
		}
		return match, nil
	}

	if len(inputs) == 0 {
		return nil, ErrNoCandidatePorts
	}

	candidates := Candidates(info, inputs)
	if m.log != nil && (len(candidates) == 0 || candidates[0].Info().Name != info.Name) {
		m.log.Debug().
			Str("output", info.Name).
			Int("candidates", len(candidates)).
			Msg("input/output name mismatch, matching by handshake")
	}

	in, size, err := m.ping(ctx, out, candidates)
	if err != nil {
		return nil, err
	}
	return &Match{Input: in, Output: out, ValueSize: size}, nil
}

type handshakeReply struct {
	input midiport.Input
	size  int
}

// ping listens on every candidate, sends one handshake and waits for the
// first OpenDeck reply. All listeners are removed before it returns.
func (m *Matcher) ping(ctx context.Context, out midiport.Output, candidates []midiport.Input) (midiport.Input, opendeck.ValueSize, error) {
	won := make(chan handshakeReply, 1)

	var stops []func()
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	for _, in := range candidates {
		stop, err := in.Listen(func(frame []byte) {
			if len(frame) < sysex.MinFrameSize || frame[0] != sysex.Start || !opendeck.ManufacturerID.Matches(frame) {
				return
			}
			select {
			case won <- handshakeReply{input: in, size: len(frame)}:
			default:
			}
		})
		if err != nil {
			if m.log != nil {
				m.log.Debug().Str("input", in.Info().Name).Err(err).Msg("cannot listen on candidate")
			}
			continue
		}
		stops = append(stops, stop)
	}
	if len(stops) == 0 {
		return nil, 0, ErrNoCandidatePorts
	}

	frame, err := opendeck.EncodeSpecial(opendeck.SpecialConnOpen)
	if err != nil {
		return nil, 0, err
	}
	if err := out.Send(frame); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errHandshakeSend, err)
	}

	timer := time.NewTimer(m.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case r := <-won:
		return r.input, valueSizeFromReply(r.size), nil
	case <-timer.C:
		return nil, 0, errAttemptTimeout
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// A 7 byte handshake reply comes from firmware using one byte per value.
func valueSizeFromReply(length int) opendeck.ValueSize {
	if length == 7 {
		return opendeck.ValueSize1
	}
	return opendeck.ValueSize2
}

// Candidates narrows inputs to the ones likely paired with output: exact name
// matches, then names containing each other, then same manufacturer, then all
// inputs. "MIDI Through" ports are dropped when others remain.
func Candidates(output midiport.PortInfo, inputs []midiport.Input) []midiport.Input {
	var exact, fuzzy, maker []midiport.Input
	for _, in := range inputs {
		name := in.Info().Name
		if name == output.Name {
			exact = append(exact, in)
		}
		if name != "" && output.Name != "" && (strings.Contains(name, output.Name) || strings.Contains(output.Name, name)) {
			fuzzy = append(fuzzy, in)
		}
		if output.Manufacturer != "" && in.Info().Manufacturer == output.Manufacturer {
			maker = append(maker, in)
		}
	}

	for _, tier := range [][]midiport.Input{exact, fuzzy, maker, inputs} {
		if len(tier) > 0 {
			return withoutThrough(tier)
		}
	}
	return nil
}

func withoutThrough(inputs []midiport.Input) []midiport.Input {
	var res []midiport.Input
	for _, in := range inputs {
		if !midiport.IsThrough(in.Info().Name) {
			res = append(res, in)
		}
	}
	if len(res) == 0 {
		return inputs
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
