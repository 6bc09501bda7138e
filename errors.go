package apireq

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error categories carried by ClientError.Type.
const (
	ErrorTypeConfiguration = "Configuration"
	ErrorTypeSingleFlight  = "SingleFlight"
	ErrorTypeCancellation  = "Cancellation"
)

// Transport error codes. They name the same failures the retry options
// refer to in RetryErrorCodes.
const (
	CodeConnAborted  = "ECONNABORTED"
	CodeNetwork      = "ERR_NETWORK"
	CodeTimeout      = "ETIMEDOUT"
	CodeConnRefused  = "ECONNREFUSED"
	CodeBadRequest   = "ERR_BAD_REQUEST"
	CodeBadResponse  = "ERR_BAD_RESPONSE"
	CodeBodyTooLarge = "ERR_BODY_TOO_LARGE"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCacheMethod is returned when caching is requested for a non-GET call.
	ErrCacheMethod = errors.New("apireq: cache only supports GET")

	// ErrFrequencyExceeded is returned when a client issues more calls per
	// second than its trigger limit allows.
	ErrFrequencyExceeded = errors.New("apireq: call frequency limit exceeded")

	// ErrPreviousPending is returned in PREV mode while an earlier call for
	// the same key has not completed.
	ErrPreviousPending = errors.New("apireq: previous request has not completed")

	// ErrCanceled is the cause recorded when a call is aborted by its owner.
	ErrCanceled = errors.New("apireq: request canceled")

	// ErrSuperseded is the cause recorded when a NEXT mode call is replaced
	// by a newer call for the same key.
	ErrSuperseded = errors.New("apireq: request superseded by a newer call")

	// ErrBodyTooLarge is the cause recorded when a response body is larger
	// than the transport buffers.
	ErrBodyTooLarge = errors.New("apireq: response body too large")
)

// ClientError represents a failure raised by the orchestration layer itself,
// as opposed to the transport or the remote server.
type ClientError struct {
	Type      string
	Message   string
	Cause     error
	RequestID string
	Method    string
	URL       string
	Timestamp time.Time
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// TransportError is a connection level failure: the request never produced
// an HTTP response.
type TransportError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// HTTPStatusError reports a response whose status is outside 2xx. Code is
// CodeBadResponse for 5xx, CodeBadRequest for 4xx and empty for anything
// else.
type HTTPStatusError struct {
	Status   int
	Code     string
	Response *Response
}

func (e *HTTPStatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status code %d", e.Status)
	}
	return fmt.Sprintf("%s: request failed with status code %d", e.Code, e.Status)
}

func newHTTPStatusError(resp *Response) *HTTPStatusError {
	var code string
	switch {
	case resp.Status >= 500 && resp.Status < 600:
		code = CodeBadResponse
	case resp.Status >= 400 && resp.Status < 500:
		code = CodeBadRequest
	}
	return &HTTPStatusError{Status: resp.Status, Code: code, Response: resp}
}

func newConfigurationError(message string, cause error) *ClientError {
	return &ClientError{
		Type:      ErrorTypeConfiguration,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func newSingleFlightRejection(req *Request, key string) *ClientError {
	return &ClientError{
		Type:      ErrorTypeSingleFlight,
		Message:   "rejected " + key,
		Cause:     ErrPreviousPending,
		Method:    req.Method,
		URL:       req.URL,
		Timestamp: time.Now(),
	}
}

// newCancellationError converts the state of a done context into the
// error a caller observes.
func newCancellationError(ctx context.Context) *ClientError {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	msg := "request canceled"
	switch {
	case errors.Is(cause, ErrSuperseded):
		msg = "request superseded"
	case errors.Is(cause, context.DeadlineExceeded):
		msg = "request deadline exceeded"
	}
	return &ClientError{
		Type:      ErrorTypeCancellation,
		Message:   msg,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// IsConfigurationError reports whether err was caused by bad client or call
// configuration, including the frequency guard.
func IsConfigurationError(err error) bool {
	return errors.Is(err, &ClientError{Type: ErrorTypeConfiguration})
}

// IsSingleFlightRejection reports whether err is a PREV mode rejection.
func IsSingleFlightRejection(err error) bool {
	return errors.Is(err, &ClientError{Type: ErrorTypeSingleFlight})
}

// IsCancellation reports whether err means the call was aborted, either by
// its owner, by a NEXT mode successor or by the caller's context. Transport
// timeouts are not cancellations.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, &ClientError{Type: ErrorTypeCancellation}) {
		return true
	}

	var transportErr *TransportError
	var statusErr *HTTPStatusError
	if errors.As(err, &transportErr) || errors.As(err, &statusErr) {
		return false
	}

	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, ErrSuperseded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}
