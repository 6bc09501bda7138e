package apireq

import (
	"net/http"
	"net/url"
	"time"

	"github.com/ambiyansyah-risyal/apireq/internal/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent sent on every call. An empty string
// suppresses the header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.config.UserAgent = ua
	}
}

// WithDomains sets the failover base addresses used for domain rotation.
func WithDomains(domains ...string) Option {
	return func(c *Client) {
		c.config.Domains = append([]string(nil), domains...)
	}
}

// WithMaximum sets how many transport calls may be active at once.
func WithMaximum(n int) Option {
	return func(c *Client) {
		c.config.Maximum = n
	}
}

// WithTriggerLimit sets how many calls per second the client accepts
// before failing with ErrFrequencyExceeded. Zero or less disables the guard.
func WithTriggerLimit(n int) Option {
	return func(c *Client) {
		c.config.TriggerLimit = n
	}
}

// WithTimeout sets the timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.Timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client used by the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport replaces the default net/http transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithExecutor replaces the default pipeline executor. PipelineMaximum is
// forwarded to it.
func WithExecutor(e Executor) Option {
	return func(c *Client) {
		c.executor = e
	}
}

// WithCancelProvider replaces the context based cancellation provider.
func WithCancelProvider(p CancelProvider) Option {
	return func(c *Client) {
		c.cancels = p
	}
}

// WithRateGuard replaces the frequency guard. The trigger limit is then
// up to g.
func WithRateGuard(g RateGuard) Option {
	return func(c *Client) {
		c.guard = g
	}
}

// WithCacheStore sets where cached responses are kept.
func WithCacheStore(store CacheStore) Option {
	return func(c *Client) {
		c.cacheStore = store
	}
}

// WithCacheSweep removes expired cache entries on the given cron schedule,
// e.g. "@every 1m". The sweeper stops on Close.
func WithCacheSweep(spec string) Option {
	return func(c *Client) {
		c.config.CacheSweep = spec
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration. Without
// WithLogger the client logs to stderr through NewSimpleLogger.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// CallOption configures a single call.
type CallOption func(*Request)

// WithSingle turns single-flight handling on or off for the call.
func WithSingle(on bool) CallOption {
	return func(r *Request) {
		r.Options.Single = on
	}
}

// WithSingleType selects the single-flight policy and turns it on.
func WithSingleType(t Single) CallOption {
	return func(r *Request) {
		r.Options.Single = true
		r.Options.SingleType = t
	}
}

// WithCache serves the call from cache when possible. Only GET calls may
// be cached.
func WithCache() CallOption {
	return func(r *Request) {
		r.Options.Cache = true
	}
}

// WithCacheTime enables caching and bounds the age of a served entry. A
// zero or negative d means cached entries never expire.
func WithCacheTime(d time.Duration) CallOption {
	return func(r *Request) {
		r.Options.Cache = true
		r.Options.CacheTime = d
	}
}

// WithRetry turns retries on. Retries are off unless a call asks for them.
func WithRetry() CallOption {
	return func(r *Request) {
		r.Options.Retry = true
	}
}

// WithRetryCount enables retries and sets how many may follow the first
// attempt. With domain rotation the budget is at least the number of domains.
func WithRetryCount(n int) CallOption {
	return func(r *Request) {
		r.Options.Retry = true
		r.Options.RetryCount = n
	}
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(d time.Duration) CallOption {
	return func(r *Request) {
		r.Options.RetryDelay = d
	}
}

// WithRetryBackoff sets how the delay grows between attempts.
func WithRetryBackoff(s backoff.Strategy) CallOption {
	return func(r *Request) {
		r.Options.RetryBackoff = s
	}
}

// WithRetryErrorCodes replaces the transport error codes that are retried.
func WithRetryErrorCodes(codes ...string) CallOption {
	return func(r *Request) {
		r.Options.RetryErrorCodes = codes
	}
}

// WithRetryResponseCodes replaces the 5xx statuses that are retried.
func WithRetryResponseCodes(codes ...int) CallOption {
	return func(r *Request) {
		r.Options.RetryResponseCodes = codes
	}
}

// WithRetryRequestCodes replaces the 4xx statuses that are retried.
func WithRetryRequestCodes(codes ...int) CallOption {
	return func(r *Request) {
		r.Options.RetryRequestCodes = codes
	}
}

// WithUseDomains toggles domain rotation for the call.
func WithUseDomains(on bool) CallOption {
	return func(r *Request) {
		r.Options.UseDomains = on
	}
}

// WithCallDomains overrides the client's failover domains for the call.
func WithCallDomains(domains ...string) CallOption {
	return func(r *Request) {
		r.Options.Domains = append([]string(nil), domains...)
	}
}

// WithCallMaximum changes the client's concurrency limit when the call
// starts. The new limit stays in effect for later calls.
func WithCallMaximum(n int) CallOption {
	return func(r *Request) {
		r.Options.Maximum = n
	}
}

// WithCallTriggerLimit overrides the frequency limit for this call's check.
func WithCallTriggerLimit(n int) CallOption {
	return func(r *Request) {
		r.Options.TriggerLimit = n
	}
}

// WithCallUserAgent overrides the client's User-Agent for the call.
func WithCallUserAgent(ua string) CallOption {
	return func(r *Request) {
		r.Options.UserAgent = ua
	}
}

// WithParams sets the query parameters.
func WithParams(params url.Values) CallOption {
	return func(r *Request) {
		r.Params = params
	}
}

// WithHeader sets one request header.
func WithHeader(key, value string) CallOption {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}
