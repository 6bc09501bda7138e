package apireq

import (
	"context"
	"errors"
	"sync"
)

// DispatchFunc runs a call past single-flight: retries, executor admission
// and the transport.
type DispatchFunc func(ctx context.Context, req *Request) (*Response, error)

// Call is a started request. Its outcome is available once Done is closed.
// Abort and Cancel stop whichever stage currently holds the call: a lane or
// executor queue, the transport, or a retry delay.
type Call struct {
	req    *Request
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	task func(ctx context.Context) (*Response, error)

	mu       sync.Mutex
	onSettle []func(resp *Response, err error)

	resp *Response
	err  error
}

func newCall(ctx context.Context, cancel context.CancelCauseFunc, req *Request) *Call {
	return &Call{
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the request ID, empty unless debug logging is enabled.
func (c *Call) ID() string {
	return c.req.id
}

// Request returns the request the call was started with.
func (c *Call) Request() *Request {
	return c.req
}

// Abort cancels the call. It is a no-op once the call has settled.
func (c *Call) Abort() {
	c.cancel(ErrCanceled)
}

// Cancel is an alias for Abort.
func (c *Call) Cancel() {
	c.Abort()
}

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result blocks until the call settles and returns its outcome.
func (c *Call) Result() (*Response, error) {
	<-c.done
	return c.resp, c.err
}

// Wait is like Result but gives up when ctx is done, leaving the call
// running.
func (c *Call) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settled registers fn to run after the call completes and before Done is
// closed.
func (c *Call) settled(fn func(resp *Response, err error)) {
	c.mu.Lock()
	c.onSettle = append(c.onSettle, fn)
	c.mu.Unlock()
}

func (c *Call) start() {
	go func() {
		resp, err := c.task(c.ctx)
		if err != nil {
			resp = nil
			if c.ctx.Err() != nil && !isCancellationError(err) {
				err = newCancellationError(c.ctx)
			}
			annotate(err, c.req)
		}
		c.resp, c.err = resp, err

		c.mu.Lock()
		hooks := c.onSettle
		c.onSettle = nil
		c.mu.Unlock()
		for _, fn := range hooks {
			fn(resp, err)
		}

		close(c.done)
		c.cancel(nil)
	}()
}

func isCancellationError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrorTypeCancellation
}

// annotate stamps request details onto errors raised by the client itself.
func annotate(err error, req *Request) {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return
	}
	if ce.RequestID == "" {
		ce.RequestID = req.id
	}
	if ce.Method == "" {
		ce.Method = req.Method
	}
	if ce.URL == "" {
		ce.URL = req.URL
	}
}
