package connection

import (
	"context"
)

// Handle controls a request started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Abort cancels the request.
//
// When the request is still in flight its callback receives a
// *searcherr.RequestAbortedError. Aborting a finished request has no effect
// on its outcome.
func (h *Handle) Abort() {
	h.cancel()
}

// Done is closed once the callback returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start sends the request in the background and calls callback exactly once
// with its outcome, see Request for the possible outcomes.
//
// The request context is released once callback returns, so callback must
// read and close the response body before returning.
func (c *Connection) Start(ctx context.Context, params RequestParams, callback func(*Response, error)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer cancel()
		callback(c.Request(ctx, params))
	}()
	return h
}
