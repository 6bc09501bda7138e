package apireq

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Client orchestrates calls against one base address. Every call passes
// the frequency guard and its single-flight policy, then runs through the
// retry engine, the cache hooks, user interceptors, the executor and the
// transport. A Client is safe for concurrent use; its caches and
// single-flight state are never shared with other clients.
type Client struct {
	config   Config
	validate *validator.Validate

	httpClient *http.Client
	transport  Transport
	executor   Executor
	cancels    CancelProvider
	guard      RateGuard
	cacheStore CacheStore

	cache  *CacheController
	single *SingleFlightController
	retry  *RetryEngine

	requestInterceptors  InterceptorManager[RequestInterceptor]
	responseInterceptors InterceptorManager[ResponseInterceptor]

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger
	obs     *observer

	mu        sync.RWMutex
	userAgent string

	sweeper   *cron.Cron
	closeOnce sync.Once
}

// New constructs a Client for baseURL. Invalid configuration is reported
// as a configuration error.
func New(baseURL string, options ...Option) (*Client, error) {
	client := &Client{
		config:   defaultConfig(baseURL),
		validate: newValidator(),
		debug:    DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := validateStruct(client.validate, &client.config, "client configuration"); err != nil {
		return nil, err
	}
	if client.debug == nil {
		client.debug = DefaultDebugConfig()
	}
	if client.debug.Enabled && client.logger == nil {
		client.logger = NewSimpleLogger()
	}
	client.userAgent = client.config.UserAgent

	obs := &observer{logger: client.logger, debug: client.debug, metrics: client.metrics}
	client.obs = obs

	if client.transport == nil {
		if client.httpClient == nil {
			client.httpClient = &http.Client{Timeout: client.config.Timeout}
		}
		client.transport = NewHTTPTransport(client.httpClient)
	}
	if client.executor == nil {
		client.executor = NewPipelineExecutor(client.config.Maximum)
	}
	if client.cancels == nil {
		client.cancels = DefaultCancelProvider()
	}
	if client.guard == nil {
		guard := NewFrequencyGuard(client.config.TriggerLimit)
		guard.obs = obs
		client.guard = guard
	}

	client.cache = NewCacheController(client.cacheStore, client.transport.URI)
	client.cache.obs = obs
	client.single = NewSingleFlightController()
	client.single.obs = obs
	client.retry = NewRetryEngine()
	client.retry.obs = obs

	if spec := client.config.CacheSweep; spec != "" {
		client.sweeper = cron.New()
		if _, err := client.sweeper.AddFunc(spec, func() { client.cache.Sweep() }); err != nil {
			return nil, newConfigurationError("invalid cache sweep schedule "+spec, err)
		}
		client.sweeper.Start()
	}

	client.recordPipeline()
	return client, nil
}

// Get starts a GET call.
func (c *Client) Get(ctx context.Context, url string, opts ...CallOption) (*Call, error) {
	return c.Go(ctx, NewRequest(http.MethodGet, url, nil, opts...))
}

// Post starts a POST call with data as body.
func (c *Client) Post(ctx context.Context, url string, data any, opts ...CallOption) (*Call, error) {
	return c.Go(ctx, NewRequest(http.MethodPost, url, data, opts...))
}

// Put starts a PUT call with data as body.
func (c *Client) Put(ctx context.Context, url string, data any, opts ...CallOption) (*Call, error) {
	return c.Go(ctx, NewRequest(http.MethodPut, url, data, opts...))
}

// Delete starts a DELETE call.
func (c *Client) Delete(ctx context.Context, url string, opts ...CallOption) (*Call, error) {
	return c.Go(ctx, NewRequest(http.MethodDelete, url, nil, opts...))
}

// Do runs req and waits for its outcome.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	call, err := c.Go(ctx, req)
	if err != nil {
		return nil, err
	}
	return call.Result()
}

// Go starts req and returns its handle. Configuration errors, frequency
// guard trips and PREV rejections are returned here, before anything is
// dispatched. Cancelling ctx aborts the call.
func (c *Client) Go(ctx context.Context, req *Request) (*Call, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req = c.prepare(req)

	if err := c.check(req); err != nil {
		return nil, c.refuse(req, err)
	}
	if err := c.guard.Tick(req.Options.TriggerLimit); err != nil {
		return nil, c.refuse(req, err)
	}
	if req.Options.Maximum > 0 {
		c.PipelineMaximum(req.Options.Maximum)
	}

	callCtx, cancel := c.cancels.Create(ctx)
	call := newCall(callCtx, cancel, req)
	if err := c.single.Request(call, c.dispatch); err != nil {
		cancel(err)
		return nil, c.refuse(req, err)
	}

	start := time.Now()
	c.metrics.RecordRequestStart(req.Method)
	if c.obs.logs(c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", req.id, "method", req.Method, "url", req.URL, "baseURL", req.BaseURL)
	}
	call.settled(func(resp *Response, err error) {
		c.finish(req, resp, err, time.Since(start))
	})

	call.start()
	return call, nil
}

// RequestInterceptors returns the user request interceptors.
func (c *Client) RequestInterceptors() *InterceptorManager[RequestInterceptor] {
	return &c.requestInterceptors
}

// ResponseInterceptors returns the user response interceptors.
func (c *Client) ResponseInterceptors() *InterceptorManager[ResponseInterceptor] {
	return &c.responseInterceptors
}

// PipelineMaximum changes how many transport calls may be active at once.
// Calls already running are not affected.
func (c *Client) PipelineMaximum(n int) {
	c.executor.SetLimit(n)
	c.recordPipeline()
	if c.obs.logs(c.debug.LogRequests) {
		c.logger.Debug("Pipeline maximum changed", "maximum", n)
	}
}

// SetUserAgent replaces the User-Agent sent on later calls. An empty
// string suppresses the header.
func (c *Client) SetUserAgent(ua string) {
	c.mu.Lock()
	c.userAgent = ua
	c.mu.Unlock()
}

// UserAgent returns the configured User-Agent.
func (c *Client) UserAgent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userAgent
}

// Cache exposes the client's cache for maintenance.
func (c *Client) Cache() *CacheController {
	return c.cache
}

// Config returns a copy of the validated configuration.
func (c *Client) Config() Config {
	cfg := c.config
	cfg.Domains = append([]string(nil), c.config.Domains...)
	return cfg
}

// Close stops the cache sweeper. Calls in flight are not affected.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.sweeper != nil {
			<-c.sweeper.Stop().Done()
		}
	})
	return nil
}

// prepare copies req and fills in client level defaults.
func (c *Client) prepare(req *Request) *Request {
	req = req.Clone()
	req.Method = strings.ToUpper(req.Method)
	if req.BaseURL == "" && !isAbsoluteURL(req.URL) {
		req.BaseURL = c.config.BaseURL
	}
	if req.Options.Domains == nil {
		req.Options.Domains = c.config.Domains
	}
	if req.Options.SingleType == "" {
		req.Options.SingleType = SingleQueue
	}
	req.id = c.obs.requestID()
	return req
}

func (c *Client) check(req *Request) error {
	if err := c.cache.Validate(req); err != nil {
		return err
	}
	return validateStruct(c.validate, &callValidation{
		Method:     req.Method,
		SingleType: req.Options.SingleType,
		Domains:    req.Options.Domains,
		Maximum:    req.Options.Maximum,
	}, "call options")
}

// dispatch runs one call past single-flight.
func (c *Client) dispatch(ctx context.Context, req *Request) (*Response, error) {
	return c.retry.Wrap(ctx, req, c.attempt)
}

// attempt performs one try: client hooks, user interceptors, executor
// admission and the transport. User response interceptors see every
// outcome, cache hits included.
func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	c.stampUserAgent(req)

	decision := c.cache.BeforeDispatch(req)
	switch {
	case decision.IsReject():
		return c.intercept(nil, decision.Err())
	case decision.IsShortCircuit():
		return c.intercept(decision.Response(), nil)
	}

	out := req
	interceptors := c.requestInterceptors.snapshot()
	if len(interceptors) > 0 {
		out = req.Clone()
	}
	for _, h := range interceptors {
		next, err := h(ctx, out)
		if err != nil {
			return c.intercept(nil, err)
		}
		if next != nil {
			out = next
		}
	}

	ticket := c.executor.Enqueue()
	c.recordPipeline()
	if err := ticket.Wait(ctx); err != nil {
		c.recordPipeline()
		return c.intercept(nil, newCancellationError(ctx))
	}
	c.recordPipeline()

	resp, err := c.transport.Issue(ctx, out)
	ticket.Release()
	c.recordPipeline()

	if err == nil {
		c.cache.AfterResponse(req, resp)
	}
	return c.intercept(resp, err)
}

func (c *Client) intercept(resp *Response, err error) (*Response, error) {
	for _, h := range c.responseInterceptors.snapshot() {
		resp, err = h(resp, err)
	}
	return resp, err
}

func (c *Client) stampUserAgent(req *Request) {
	ua := req.Options.UserAgent
	if ua == "" {
		ua = c.UserAgent()
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if ua == "" {
		// net/http omits the header when it is present but empty
		req.Header["User-Agent"] = []string{""}
		return
	}
	req.Header.Set("User-Agent", ua)
}

// refuse records a call that failed before it started.
func (c *Client) refuse(req *Request, err error) error {
	annotate(err, req)
	c.metrics.RecordError(errorClass(err), req.Method)
	if c.obs.logs(c.debug.LogRequests) {
		c.logger.Warn("Request refused", "requestID", req.id, "method", req.Method, "url", req.URL, "error", err.Error())
	}
	return err
}

func (c *Client) finish(req *Request, resp *Response, err error, duration time.Duration) {
	status := StatusCode(err)
	if resp != nil {
		status = resp.Status
	}

	c.metrics.RecordRequestEnd(req.Method)
	c.metrics.RecordRequest(req.Method, status, duration)
	if err != nil {
		c.metrics.RecordError(errorClass(err), req.Method)
	}

	if !c.obs.logs(c.debug.LogRequests) {
		return
	}
	if err != nil {
		c.logger.Warn("Request failed", "requestID", req.id, "method", req.Method, "url", req.URL, "status", status, "duration", duration, "error", err.Error())
		return
	}
	c.logger.Debug("Request completed", "requestID", req.id, "method", req.Method, "url", req.URL, "status", status, "duration", duration)
}

func (c *Client) recordPipeline() {
	if c.metrics == nil {
		return
	}
	if pe, ok := c.executor.(*PipelineExecutor); ok {
		c.metrics.RecordPipeline(pe.Limit(), pe.Active(), pe.Waiting())
	}
}
