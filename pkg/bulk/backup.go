package bulk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
	"opendeckmcp/pkg/sysex"
)

// BackupCollector gathers the frames of a backup stream. The board opens the
// stream with a marker frame and closes it by repeating that frame, so a data
// frame equal to the marker would end the stream early.
type BackupCollector struct {
	mu     sync.Mutex
	first  []byte
	frames [][]byte
	done   bool
}

// Handle consumes one frame and reports whether the stream is complete.
func (c *BackupCollector) Handle(resp opendeck.Response) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return true
	}
	if c.first == nil {
		c.first = resp.Raw
		return false
	}
	if bytes.Equal(resp.Raw, c.first) {
		c.done = true
		return true
	}
	c.frames = append(c.frames, resp.Raw)
	return false
}

// Frames returns the data frames collected so far.
func (c *BackupCollector) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([][]byte, len(c.frames))
	copy(res, c.frames)
	return res
}

func (c *BackupCollector) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Backup requests a full backup through s and writes each data frame to w
// as a line of hex. It returns the number of frames written.
func Backup(ctx context.Context, s Sender, w io.Writer) (int, error) {
	var c BackupCollector
	_, err := s.Send(ctx, queue.Request{
		Command: opendeck.Backup,
		Handler: queue.Stream(c.Handle),
	})
	frames := c.Frames()
	if err != nil {
		return 0, &StreamAbortedError{Command: opendeck.Backup, Sent: len(frames), Err: err}
	}
	if err := WriteFrames(w, frames); err != nil {
		return 0, err
	}
	return len(frames), nil
}

// WriteFrames writes one hex line per frame.
func WriteFrames(w io.Writer, frames [][]byte) error {
	bw := bufio.NewWriter(w)
	for _, f := range frames {
		if _, err := fmt.Fprintln(bw, sysex.FormatHex(f)); err != nil {
			return fmt.Errorf("writing backup: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	return nil
}
