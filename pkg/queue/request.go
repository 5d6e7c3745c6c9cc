package queue

import (
	"context"
	"time"

	"opendeckmcp/pkg/opendeck"
)

// Handler consumes correlated replies. It is either single-shot or a stream.
// Handlers run on the queue goroutine and must not call Send or Reset.
type Handler struct {
	once   func(opendeck.Response)
	stream func(opendeck.Response) bool
}

// Once resolves the request after the first correlated reply. fn may be nil.
func Once(fn func(opendeck.Response)) Handler {
	return Handler{once: fn}
}

// Stream hands every correlated reply to fn and resolves the request once fn
// returns true.
func Stream(fn func(opendeck.Response) bool) Handler {
	return Handler{stream: fn}
}

func (h Handler) IsStream() bool { return h.stream != nil }

// Request is a single command submitted to the queue.
type Request struct {
	Command opendeck.Command
	Config  *opendeck.RequestConfig
	// Frame is sent verbatim instead of encoding Command. Required for raw
	// commands such as restore and firmware lines.
	Frame   []byte
	Handler Handler
	// Timeout bounds the wait for a reply. For streams it bounds the gap
	// between frames. Zero uses the queue default.
	Timeout time.Duration
}

type result struct {
	resp opendeck.Response
	err  error
}

type pending struct {
	ctx     context.Context
	req     Request
	timeout time.Duration
	frame   []byte
	last    opendeck.Response
	result  chan result
}

func (p *pending) finish(resp opendeck.Response, err error) {
	p.result <- result{resp: resp, err: err}
}
