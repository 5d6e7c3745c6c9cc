// Package bulk streams multi-frame transfers: backups from the board and
// restore or firmware uploads to it.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
)

// DefaultLineDelay is the pause between uploaded lines.
const DefaultLineDelay = 10 * time.Millisecond

var ErrStreamAborted = errors.New("bulk stream aborted")

// Sender submits a request and waits for it to resolve. Both *queue.Queue
// and *device.Client implement it.
type Sender interface {
	Send(ctx context.Context, req queue.Request) (opendeck.Response, error)
}

// StreamAbortedError reports a transfer that stopped early. For backups Sent
// counts the frames received and Total is zero.
type StreamAbortedError struct {
	Command opendeck.Command
	Sent    int
	Total   int
	Err     error
}

func (e *StreamAbortedError) Error() string {
	if e.Total > 0 {
		return fmt.Sprintf("%s aborted after %d of %d frames: %v", e.Command, e.Sent, e.Total, e.Err)
	}
	return fmt.Sprintf("%s aborted after %d frames: %v", e.Command, e.Sent, e.Err)
}

func (e *StreamAbortedError) Unwrap() []error { return []error{ErrStreamAborted, e.Err} }
