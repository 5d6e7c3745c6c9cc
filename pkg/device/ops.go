package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
)

// GetValue reads a single setting.
func (c *Client) GetValue(ctx context.Context, cfg opendeck.RequestConfig) (uint16, error) {
	return c.getValue(ctx, cfg, 0)
}

func (c *Client) getValue(ctx context.Context, cfg opendeck.RequestConfig, timeout time.Duration) (uint16, error) {
	resp, err := c.Send(ctx, queue.Request{Command: opendeck.GetValue, Config: &cfg, Timeout: timeout})
	if err != nil {
		return 0, err
	}
	return resp.Value(c.Session().ValueSize)
}

// SetValue writes a single setting and waits for the device to acknowledge.
func (c *Client) SetValue(ctx context.Context, cfg opendeck.RequestConfig) error {
	_, err := c.Send(ctx, queue.Request{Command: opendeck.SetValue, Config: &cfg})
	return err
}

// LoadValues reads every setting in order using the value read timeout. It
// stops after MaxConsecutiveFailures failed reads in a row and returns what
// was loaded so far together with the error.
func (c *Client) LoadValues(ctx context.Context, cfgs []opendeck.RequestConfig) ([]Value, error) {
	maxFailures := c.config.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 1
	}

	var (
		values   []Value
		failures int
	)
	for _, cfg := range cfgs {
		v, err := c.getValue(ctx, cfg, c.config.ValueReadTimeout)
		if err == nil {
			failures = 0
			values = append(values, Value{Config: cfg, Value: v})
			continue
		}
		if ctx.Err() != nil || isTerminal(err) || errors.Is(err, ErrBootloaderMode) {
			return values, err
		}

		failures++
		if c.log != nil {
			c.log.Debug().Str("request", cfg.String()).Int("failures", failures).Err(err).Msg("value read failed")
		}
		if failures >= maxFailures {
			return values, fmt.Errorf("%w after %d consecutive failures: %w", ErrLoadAborted, failures, err)
		}
	}
	return values, nil
}

// Reboot restarts the board into its application and closes the session.
// The firmware reboots before answering, so a missing reply counts as done.
func (c *Client) Reboot(ctx context.Context) error {
	id := c.Session().ID
	_, err := c.Send(ctx, queue.Request{Command: opendeck.Reboot})
	if err != nil && !errors.Is(err, queue.ErrRequestTimedOut) {
		return err
	}
	c.closeAttempt(id, nil, false)
	return nil
}

// FactoryReset restores defaults on the board and closes the session once
// the device acknowledges.
func (c *Client) FactoryReset(ctx context.Context) error {
	id := c.Session().ID
	if _, err := c.Send(ctx, queue.Request{Command: opendeck.FactoryReset}); err != nil {
		return err
	}
	c.closeAttempt(id, nil, false)
	return nil
}

// StartBootloader reboots the board into its bootloader. The board comes back
// as a new DFU output, so the session is closed.
func (c *Client) StartBootloader(ctx context.Context) error {
	s := c.Session()
	if s.State == StateOpen && !s.BootloaderSupport && c.log != nil {
		c.log.Info().Str("session", s.ID).Msg("board did not report bootloader support, trying anyway")
	}
	if _, err := c.Send(ctx, queue.Request{Command: opendeck.BootloaderMode}); err != nil {
		return err
	}
	c.closeAttempt(s.ID, nil, false)
	return nil
}

// UpdateAvailable reports whether release is newer than the board firmware.
func (c *Client) UpdateAvailable(release string) bool {
	return opendeck.HasUpdate(c.Session().FirmwareVersion, release)
}
