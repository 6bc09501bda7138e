package apireq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// maxBodySize caps how much of a response body is buffered.
const maxBodySize = 10 * 1024 * 1024

// HTTPTransport issues requests through net/http.
type HTTPTransport struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPTransport wraps client. A nil client gets a default one with the
// client timeout applied.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{client: client, maxBody: maxBodySize}
}

// URI resolves base address, path and encoded query of req.
func (t *HTTPTransport) URI(req *Request) string {
	return buildURI(req)
}

// Issue performs req and buffers the body. Responses outside 2xx are
// returned as *HTTPStatusError carrying the response. A body larger than
// maxBodySize fails with ErrBodyTooLarge.
func (t *HTTPTransport) Issue(ctx context.Context, req *Request) (*Response, error) {
	body, contentType, err := encodeBody(req.Data)
	if err != nil {
		return nil, newConfigurationError("encode request body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.URI(req), body)
	if err != nil {
		return nil, newConfigurationError("build request", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, t.maxBody+1))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if int64(len(data)) > t.maxBody {
		return nil, &TransportError{
			Code:    CodeBodyTooLarge,
			Message: fmt.Sprintf("response body exceeds %d bytes", t.maxBody),
			Cause:   ErrBodyTooLarge,
		}
	}

	resp := &Response{
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Header:     httpResp.Header,
		Data:       data,
		Request:    req,
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, newHTTPStatusError(resp)
	}
	return resp, nil
}

func encodeBody(data any) (io.Reader, string, error) {
	switch v := data.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "text/plain; charset=utf-8", nil
	case io.Reader:
		return v, "", nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(buf), "application/json", nil
	}
}

// classifyTransportError maps a net/http failure onto the error classes
// the retry engine understands.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return newCancellationError(ctx)
	}

	code := CodeNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		code = CodeConnRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeTimeout
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, io.ErrUnexpectedEOF):
		code = CodeConnAborted
	}
	return &TransportError{Code: code, Message: "request failed", Cause: err}
}
