package queue

import (
	"errors"
	"fmt"
	"time"

	"opendeckmcp/pkg/opendeck"
)

var (
	ErrRequestTimedOut      = errors.New("request timed out")
	ErrTransportWriteFailed = errors.New("transport write failed")
	ErrQueueReset           = errors.New("request queue reset")
	ErrQueueClosed          = errors.New("request queue closed")
)

// RequestTimeoutError reports a request that got no correlated reply in time.
type RequestTimeoutError struct {
	Command opendeck.Command
	Config  *opendeck.RequestConfig
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	if e.Config != nil {
		return fmt.Sprintf("%s %s: no reply within %s", e.Command, e.Config, e.Timeout)
	}
	return fmt.Sprintf("%s: no reply within %s", e.Command, e.Timeout)
}

func (e *RequestTimeoutError) Unwrap() error { return ErrRequestTimedOut }

// TransportWriteError wraps a failed write on the output port.
type TransportWriteError struct {
	Command opendeck.Command
	Err     error
}

func (e *TransportWriteError) Error() string {
	return fmt.Sprintf("%s: writing to output: %v", e.Command, e.Err)
}

func (e *TransportWriteError) Unwrap() []error { return []error{ErrTransportWriteFailed, e.Err} }
