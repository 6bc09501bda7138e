// Package apireq orchestrates HTTP calls made against one base address.
// Each call can opt into:
//
//   - Response caching for GET calls, with an optional maximum age
//   - Single-flight handling per method and path: queue calls in order
//     (SingleQueue), let the newest call win (SingleNext) or reject
//     overlapping calls (SinglePrev)
//   - Retries driven by transport error codes and status sets, rotating
//     across failover domains
//
// A frequency guard refuses runaway callers and a FIFO pipeline caps how
// many transport calls run at once.
//
// Calls are asynchronous. Verb methods return a *Call whose Abort (or
// Cancel) stops the call wherever it currently waits: in a single-flight
// lane, in the pipeline queue, on the network or in a retry delay.
//
// Typical usage:
//
//	client, err := apireq.New("https://api.example.com",
//	    apireq.WithDomains("https://backup.example.com"),
//	    apireq.WithMaximum(5),
//	    apireq.WithTriggerLimit(50),
//	)
//	call, err := client.Get(ctx, "/users",
//	    apireq.WithCacheTime(2*time.Second),
//	    apireq.WithRetry(),
//	)
//	resp, err := call.Result()
//
// Retries are off unless a call enables them with WithRetry or
// WithRetryCount. Errors raised by the client itself are *ClientError
// values; use IsConfigurationError, IsSingleFlightRejection and
// IsCancellation to tell them apart. Transport and status failures are
// returned unwrapped as *TransportError and *HTTPStatusError.
package apireq
