package apireq

import (
	"context"
	"encoding/json"
	"net/http"
)

// Single selects how concurrent calls sharing a single-flight key interact.
type Single string

const (
	// SingleQueue runs calls for the same key one at a time, in arrival order.
	SingleQueue Single = "queue"
	// SingleNext aborts the pending call whenever a newer one arrives, so only
	// the most recent call can succeed.
	SingleNext Single = "next"
	// SinglePrev rejects a new call while an earlier one is still pending.
	SinglePrev Single = "prev"
)

func (s Single) String() string {
	return string(s)
}

// Response is the outcome of a successful call. Responses served from the
// cache are shared between callers and must be treated as read-only.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Data       []byte
	Request    *Request
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Transport issues a single request. Implementations must honour ctx
// cancellation and classify failures as *TransportError, *HTTPStatusError or
// a cancellation error.
type Transport interface {
	Issue(ctx context.Context, req *Request) (*Response, error)
	// URI resolves the canonical address of req, query included.
	URI(req *Request) string
}

// Ticket is one reservation in an Executor.
type Ticket interface {
	// Wait blocks until the ticket is admitted or ctx is done. A ticket
	// abandoned through ctx is withdrawn from the queue.
	Wait(ctx context.Context) error
	Release()
}

// Executor bounds the number of simultaneously active transport calls.
type Executor interface {
	Enqueue() Ticket
	SetLimit(n int)
}

// RateGuard vetoes calls issued too frequently. limit overrides the
// configured ceiling when positive.
type RateGuard interface {
	Tick(limit int) error
}

// CancelProvider creates the cancellation capability bound to each call.
type CancelProvider interface {
	Create(parent context.Context) (context.Context, context.CancelCauseFunc)
}
