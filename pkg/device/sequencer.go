package device

import (
	"context"

	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
)

// step is one best-effort probe of the connect sequence. apply stores the
// decoded reply; fallback runs when the probe fails.
type step struct {
	name     string
	command  opendeck.Command
	when     func(s *Session) bool
	apply    func(c *Client, s *Session, resp opendeck.Response) error
	fallback func(s *Session)
}

// handshakeSteps run before the session opens.
var handshakeSteps = []step{
	{
		name:    "value size",
		command: opendeck.GetValueSize,
		apply: func(_ *Client, s *Session, resp opendeck.Response) error {
			size, err := opendeck.DecodeValueSize(resp, s.ValueSize)
			if err != nil {
				return err
			}
			s.ValueSize = size
			return nil
		},
	},
	{
		name:    "values per message",
		command: opendeck.GetValuesPerMessage,
		apply: func(_ *Client, s *Session, resp opendeck.Response) error {
			n, err := opendeck.DecodeValuesPerMessage(resp, s.ValueSize)
			if err != nil {
				return err
			}
			s.ValuesPerMessage = n
			return nil
		},
		fallback: func(s *Session) { s.ValuesPerMessage = 1 },
	},
	{
		name:    "firmware version",
		command: opendeck.GetFirmwareVersion,
		apply: func(_ *Client, s *Session, resp opendeck.Response) error {
			v, err := opendeck.DecodeFirmwareVersion(resp, s.ValueSize)
			if err != nil {
				return err
			}
			s.FirmwareVersion = v
			return nil
		},
		fallback: func(s *Session) { s.FirmwareVersion = opendeck.FallbackFirmwareVersion },
	},
}

var componentsStep = step{
	name:    "component counts",
	command: opendeck.GetNumberOfSupportedComponents,
	apply: func(_ *Client, s *Session, resp opendeck.Response) error {
		counts, err := opendeck.DecodeComponentCounts(resp, s.ValueSize)
		if err != nil {
			return err
		}
		s.Components = counts
		return nil
	},
}

// infoSteps run after the session is open.
var infoSteps = []step{
	{
		name:    "board identity",
		command: opendeck.IdentifyBoard,
		apply: func(c *Client, s *Session, resp opendeck.Response) error {
			uid, err := opendeck.DecodeBoardUID(resp, s.ValueSize)
			if err != nil {
				return err
			}
			board, _ := c.config.Boards.Lookup(uid)
			s.BoardUID = uid.String()
			s.BoardName = board.Name
			s.FirmwareFile = board.FirmwareFile
			return nil
		},
		fallback: func(s *Session) { s.BoardName = opendeck.UnknownBoardName },
	},
	componentsStep,
	{
		name:    "bootloader support",
		command: opendeck.GetBootLoaderSupport,
		when:    func(s *Session) bool { return s.ValueSize == opendeck.ValueSize2 },
		apply: func(_ *Client, s *Session, resp opendeck.Response) error {
			ok, err := opendeck.DecodeBootloaderSupport(resp, s.ValueSize)
			if err != nil {
				return err
			}
			s.BootloaderSupport = ok
			return nil
		},
		fallback: func(s *Session) { s.BootloaderSupport = false },
	},
	{
		name:    "supported presets",
		command: opendeck.GetNumberOfSupportedPresets,
		apply: func(_ *Client, s *Session, resp opendeck.Response) error {
			n, err := opendeck.DecodeSupportedPresets(resp, s.ValueSize)
			if err != nil {
				return err
			}
			s.SupportedPresets = n
			return nil
		},
		fallback: func(s *Session) { s.SupportedPresets = 0 },
	},
}

// runSteps runs steps in order. Only errors that end the session are
// returned; every other failure is logged and replaced by the fallback.
func (c *Client) runSteps(ctx context.Context, steps []step) error {
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runStep(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) runStep(ctx context.Context, st step) error {
	before := c.Session()
	if st.when != nil && !st.when(&before) {
		return nil
	}

	resp, err := c.sendOn(ctx, before.ID, queue.Request{Command: st.command})
	if err == nil {
		c.mu.Lock()
		if c.session.ID != before.ID {
			c.mu.Unlock()
			return ErrNotConnected
		}
		err = st.apply(c, &c.session, resp)
		width := c.session.ValueSize
		q := c.queue
		c.mu.Unlock()
		if err == nil && q != nil {
			q.SetValueSize(width)
		}
	}
	if err == nil {
		return nil
	}
	if isTerminal(err) || ctx.Err() != nil {
		return err
	}

	c.stepFailures.Add(1)
	failure := &StepFailedError{Step: st.name, Err: err}
	if c.log != nil {
		c.log.Info().Str("step", st.name).Err(failure).Msg("connect step failed, using fallback")
	}
	if st.fallback != nil {
		c.mu.Lock()
		if c.session.ID == before.ID {
			st.fallback(&c.session)
		}
		c.mu.Unlock()
	}
	return nil
}
