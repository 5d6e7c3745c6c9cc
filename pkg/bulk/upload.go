package bulk

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
	"opendeckmcp/pkg/sysex"
)

// ReadFrames parses a file of hex lines, one frame per line. Blank lines and
// lines starting with # are skipped. Lines missing the SysEx start and end
// bytes get them added.
func ReadFrames(r io.Reader) ([][]byte, error) {
	var frames [][]byte

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		b, err := sysex.ParseHex(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(b) == 0 {
			continue
		}
		if b[0] != sysex.Start {
			b = append([]byte{sysex.Start}, b...)
		}
		if b[len(b)-1] != sysex.End {
			b = append(b, sysex.End)
		}
		frames = append(frames, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}
	return frames, nil
}

// Upload writes frames one at a time as cmd, pausing delay between lines. It
// succeeds only if every frame was written. Zero delay uses DefaultLineDelay.
func Upload(ctx context.Context, s Sender, cmd opendeck.Command, frames [][]byte, delay time.Duration) error {
	if delay <= 0 {
		delay = DefaultLineDelay
	}

	for i, f := range frames {
		if i > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return &StreamAbortedError{Command: cmd, Sent: i, Total: len(frames), Err: ctx.Err()}
			case <-t.C:
			}
		}
		if _, err := s.Send(ctx, queue.Request{Command: cmd, Frame: f}); err != nil {
			return &StreamAbortedError{Command: cmd, Sent: i, Total: len(frames), Err: err}
		}
	}
	return nil
}
