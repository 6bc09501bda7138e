package apireq

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/ambiyansyah-risyal/apireq/internal/backoff"
)

// AttemptFunc performs one attempt of a call.
type AttemptFunc func(ctx context.Context, req *Request) (*Response, error)

// RetryEngine repeats failed attempts according to the call's retry options,
// rotating the base address over the failover domains.
type RetryEngine struct {
	obs *observer
}

// NewRetryEngine returns an engine with logging and metrics disabled.
func NewRetryEngine() *RetryEngine {
	return &RetryEngine{obs: &observer{debug: DefaultDebugConfig()}}
}

// Wrap runs attempt until it succeeds, fails with an error that is not
// retryable or the retry budget is spent. The last error is returned as is.
//
// With rotation active, attempt n targets the original base address when
// n%(len(domains)+1) is zero and domains[n%(len(domains)+1)-1] otherwise.
func (e *RetryEngine) Wrap(ctx context.Context, req *Request, attempt AttemptFunc) (*Response, error) {
	opts := req.Options
	if !opts.Retry {
		return attempt(ctx, req)
	}
	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	domains := rotationDomains(opts)
	budget := retryBudget(opts, domains)
	strategy := opts.RetryBackoff
	if strategy == nil {
		strategy = backoff.Constant{}
	}
	base := opts.RetryDelay
	if base < 0 {
		base = 0
	}

	for n := 0; ; n++ {
		current := req
		if len(domains) > 0 {
			current = req.withBaseURL(rotate(req.BaseURL, domains, n))
		}
		if n > 0 {
			e.obs.metrics.RecordRetry(req.Method, n)
			if e.obs.logs(e.obs.debug.LogRetries) {
				e.obs.logger.Info("Retry attempt", "requestID", req.id, "attempt", n, "budget", budget, "baseURL", current.BaseURL)
			}
		}

		resp, err := attempt(ctx, current)
		if err == nil {
			return resp, nil
		}
		if IsCancellation(err) || ctx.Err() != nil {
			return nil, err
		}
		if n >= budget || !isRetryable(opts, err) {
			return nil, err
		}

		delay := strategy.Delay(n, base)
		if e.obs.logs(e.obs.debug.LogRetries) {
			e.obs.logger.Info("Scheduling retry", "requestID", req.id, "attempt", n+1, "backoff", delay, "error", err.Error())
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// replayable buffers a streamed body so every attempt sends it in full.
func replayable(req *Request) (*Request, error) {
	switch req.Data.(type) {
	case nil, []byte, string:
		return req, nil
	}
	r, ok := req.Data.(io.Reader)
	if !ok {
		return req, nil
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, newConfigurationError("buffer request body", err)
	}
	clone := req.Clone()
	clone.Data = buf
	return clone, nil
}

func rotationDomains(opts RequestOptions) []string {
	if !opts.UseDomains {
		return nil
	}
	return opts.Domains
}

func retryBudget(opts RequestOptions, domains []string) int {
	count := opts.RetryCount
	if count <= 0 {
		count = DefaultRetryCount
	}
	return max(count, len(domains))
}

func rotate(original string, domains []string, n int) string {
	i := n % (len(domains) + 1)
	if i == 0 {
		return original
	}
	return domains[i-1]
}

// isRetryable classifies err against the call's retry sets.
func isRetryable(opts RequestOptions, err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return slices.Contains(opts.RetryErrorCodes, transportErr.Code)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case CodeBadResponse:
			return slices.Contains(opts.RetryResponseCodes, statusErr.Status)
		case CodeBadRequest:
			return slices.Contains(opts.RetryRequestCodes, statusErr.Status)
		}
	}
	return false
}

// sleep waits d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return newCancellationError(ctx)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return newCancellationError(ctx)
	}
}
