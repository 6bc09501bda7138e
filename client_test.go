package apireq

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambiyansyah-risyal/apireq/internal/testserver"
)

func newTestClient(t *testing.T, opts ...Option) (*testserver.Server, *Client) {
	t.Helper()
	srv := testserver.NewServer()
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

type echoBody struct {
	Method      string `json:"method"`
	Query       string `json:"query"`
	Body        string `json:"body"`
	UserAgent   string `json:"userAgent"`
	HasUA       bool   `json:"hasUA"`
	ContentType string `json:"contentType"`
}

func mustResult(t *testing.T, call *Call, err error) *Response {
	t.Helper()
	require.NoError(t, err)
	resp, err := call.Result()
	require.NoError(t, err)
	return resp
}

func TestNew(t *testing.T) {
	client, err := New("http://localhost:3000")
	require.NoError(t, err)
	defer client.Close()

	cfg := client.Config()
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, DefaultMaximum, cfg.Maximum)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultUserAgent, client.UserAgent())
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.IsType(t, &PipelineExecutor{}, client.executor)
	assert.Equal(t, DefaultMaximum, client.executor.(*PipelineExecutor).Limit())
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	testCases := []struct {
		name    string
		baseURL string
		opts    []Option
	}{
		{"empty base", "", nil},
		{"relative base", "api/v1", nil},
		{"zero maximum", "http://localhost", []Option{WithMaximum(0)}},
		{"bad domain", "http://localhost", []Option{WithDomains("not a url")}},
		{"negative timeout", "http://localhost", []Option{WithTimeout(-time.Second)}},
		{"bad sweep", "http://localhost", []Option{WithCacheSweep("every tuesday")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := New(tc.baseURL, tc.opts...)
			require.Error(t, err)
			assert.Nil(t, client)
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestGet(t *testing.T) {
	_, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/anything")
	resp := mustResult(t, call, err)

	var body struct {
		Success bool `json:"success"`
	}
	require.NoError(t, resp.JSON(&body))
	assert.True(t, body.Success)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "OK", resp.StatusText)
	assert.Equal(t, call.Request(), resp.Request)
}

func TestDo(t *testing.T) {
	_, client := newTestClient(t)

	resp, err := client.Do(context.Background(), NewRequest("put", "/echo", map[string]int{"n": 1}))
	require.NoError(t, err)

	var echo echoBody
	require.NoError(t, resp.JSON(&echo))
	assert.Equal(t, "PUT", echo.Method)
	assert.JSONEq(t, `{"n":1}`, echo.Body)
	assert.Equal(t, "application/json", echo.ContentType)
}

func TestPostAndDelete(t *testing.T) {
	_, client := newTestClient(t)

	call, err := client.Post(context.Background(), "/echo", []byte("raw"), WithParams(map[string][]string{"a": {"1"}}))
	resp := mustResult(t, call, err)
	var echo echoBody
	require.NoError(t, resp.JSON(&echo))
	assert.Equal(t, "POST", echo.Method)
	assert.Equal(t, "raw", echo.Body)
	assert.Equal(t, "a=1", echo.Query)

	call, err = client.Delete(context.Background(), "/echo")
	resp = mustResult(t, call, err)
	require.NoError(t, resp.JSON(&echo))
	assert.Equal(t, "DELETE", echo.Method)
}

func TestCacheExpiresAfterCacheTime(t *testing.T) {
	srv, client := newTestClient(t)
	get := func() *Response {
		call, err := client.Get(context.Background(), "/cache", WithCacheTime(200*time.Millisecond))
		return mustResult(t, call, err)
	}

	h1 := get()
	time.Sleep(50 * time.Millisecond)
	h1again := get()
	assert.Same(t, h1, h1again)

	time.Sleep(250 * time.Millisecond)
	h2 := get()
	assert.NotSame(t, h1, h2)
	assert.NotEqual(t, string(h1.Data), string(h2.Data))
	assert.Equal(t, 2, srv.Hits("/cache"))
}

func TestCacheWithoutCacheTimeNeverExpires(t *testing.T) {
	srv, client := newTestClient(t)

	var first *Response
	for i := 0; i < 4; i++ {
		call, err := client.Get(context.Background(), "/cache", WithCache())
		resp := mustResult(t, call, err)
		if first == nil {
			first = resp
		}
		assert.Same(t, first, resp)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, srv.Hits("/cache"))
}

func TestCacheNonGETFailsSynchronously(t *testing.T) {
	srv, client := newTestClient(t)

	call, err := client.Post(context.Background(), "/echo", map[string]string{"a": "b"}, WithCache())
	require.Error(t, err)
	assert.Nil(t, call)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrCacheMethod)
	assert.Equal(t, 0, srv.Hits("/echo"))
	assert.Equal(t, 0, client.Cache().Len())
}

func TestClientsDoNotShareState(t *testing.T) {
	srv := testserver.NewServer()
	defer srv.Close()

	for i := 0; i < 2; i++ {
		client, err := New(srv.URL)
		require.NoError(t, err)
		call, err := client.Get(context.Background(), "/cache", WithCache())
		mustResult(t, call, err)
	}
	assert.Equal(t, 2, srv.Hits("/cache"))
}

func TestResponseInterceptorsSeeCacheHits(t *testing.T) {
	srv, client := newTestClient(t)

	var seen atomic.Int32
	client.ResponseInterceptors().Use(func(resp *Response, err error) (*Response, error) {
		seen.Add(1)
		return resp, err
	})

	for i := 0; i < 3; i++ {
		call, err := client.Get(context.Background(), "/cache", WithCache())
		mustResult(t, call, err)
	}
	assert.Equal(t, int32(3), seen.Load())
	assert.Equal(t, 1, srv.Hits("/cache"))
}

func TestRequestInterceptors(t *testing.T) {
	_, client := newTestClient(t)

	id := client.RequestInterceptors().Use(func(_ context.Context, req *Request) (*Request, error) {
		req.Header.Set("X-Trace", "1")
		req.Params = map[string][]string{"traced": {"yes"}}
		return req, nil
	})

	call, err := client.Get(context.Background(), "/echo")
	resp := mustResult(t, call, err)
	var echo echoBody
	require.NoError(t, resp.JSON(&echo))
	assert.Equal(t, "traced=yes", echo.Query)

	client.RequestInterceptors().Eject(id)
	call, err = client.Get(context.Background(), "/echo")
	resp = mustResult(t, call, err)
	require.NoError(t, resp.JSON(&echo))
	assert.Empty(t, echo.Query)
}

func TestRequestInterceptorErrorReachesResponseInterceptors(t *testing.T) {
	srv, client := newTestClient(t)
	denied := errors.New("denied")

	client.RequestInterceptors().Use(func(context.Context, *Request) (*Request, error) {
		return nil, denied
	})
	var got error
	client.ResponseInterceptors().Use(func(resp *Response, err error) (*Response, error) {
		got = err
		return resp, err
	})

	call, err := client.Get(context.Background(), "/echo")
	require.NoError(t, err)
	_, err = call.Result()
	assert.ErrorIs(t, err, denied)
	assert.ErrorIs(t, got, denied)
	assert.Equal(t, 0, srv.Hits("/echo"))
}

func TestUserAgent(t *testing.T) {
	_, client := newTestClient(t)
	fetch := func(opts ...CallOption) echoBody {
		call, err := client.Get(context.Background(), "/echo", opts...)
		resp := mustResult(t, call, err)
		var echo echoBody
		require.NoError(t, resp.JSON(&echo))
		return echo
	}

	assert.Equal(t, DefaultUserAgent, fetch().UserAgent)

	client.SetUserAgent("custom-agent")
	assert.Equal(t, "custom-agent", fetch().UserAgent)
	assert.Equal(t, "per-call", fetch(WithCallUserAgent("per-call")).UserAgent)

	client.SetUserAgent("")
	assert.False(t, fetch().HasUA, "an empty user agent removes the header")
}

func TestPipelineMaximum(t *testing.T) {
	_, client := newTestClient(t, WithMaximum(1))
	run := func(opts ...CallOption) time.Duration {
		start := time.Now()
		var calls []*Call
		for i := 0; i < 3; i++ {
			call, err := client.Get(context.Background(), "/single/delay",
				append([]CallOption{WithSingle(false), WithParams(delayParams(80))}, opts...)...)
			require.NoError(t, err)
			calls = append(calls, call)
		}
		for _, call := range calls {
			_, err := call.Result()
			require.NoError(t, err)
		}
		return time.Since(start)
	}

	assert.GreaterOrEqual(t, run(), 240*time.Millisecond)

	client.PipelineMaximum(3)
	assert.Less(t, run(), 240*time.Millisecond)

	assert.GreaterOrEqual(t, run(WithCallMaximum(1)), 240*time.Millisecond)
	assert.Equal(t, 1, client.executor.(*PipelineExecutor).Limit())
}

func TestFrequencyGuardRefusesRunawayCalls(t *testing.T) {
	srv, client := newTestClient(t, WithTriggerLimit(2))

	for i := 0; i < 2; i++ {
		call, err := client.Get(context.Background(), "/anything", WithSingle(false))
		mustResult(t, call, err)
	}

	call, err := client.Get(context.Background(), "/anything", WithSingle(false))
	require.Error(t, err)
	assert.Nil(t, call)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrFrequencyExceeded)
	assert.Equal(t, 2, srv.Hits("/anything"))

	call, err = client.Get(context.Background(), "/anything", WithCallTriggerLimit(100))
	mustResult(t, call, err)
}

func TestAbortInFlightCall(t *testing.T) {
	srv, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/single/delay", WithParams(delayParams(5000)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Hits("/single/delay") == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	call.Abort()
	_, err = call.Result()

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, IsCancellation(err))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Zero(t, StatusCode(err))
}

func TestCallerContextCancels(t *testing.T) {
	_, client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	call, err := client.Get(ctx, "/single/delay", WithParams(delayParams(5000)))
	require.NoError(t, err)
	_, err = call.Result()

	assert.True(t, IsCancellation(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitGivesUpWithoutCancelling(t *testing.T) {
	_, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/single/delay", WithParams(delayParams(100)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = call.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = call.Result()
	assert.NoError(t, err)
}

func TestRetryAgainstServer(t *testing.T) {
	srv, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/status/500",
		WithRetryCount(3), WithRetryDelay(5*time.Millisecond))
	require.NoError(t, err)
	_, err = call.Result()

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.Status)
	assert.Equal(t, CodeBadResponse, statusErr.Code)
	assert.Equal(t, 4, srv.Hits("/status/500"))
}

func TestRetryRecovers(t *testing.T) {
	srv, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/flaky/2",
		WithRetry(), WithRetryDelay(5*time.Millisecond), WithParams(map[string][]string{"key": {"recover"}}))
	mustResult(t, call, err)
	assert.Equal(t, 3, srv.Hits("/flaky/2"))
}

func TestRetryResendsStreamedBody(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		first := len(bodies) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)

	client, err := New(server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	call, err := client.Post(context.Background(), "/upload", strings.NewReader("payload"),
		WithRetryCount(1), WithRetryDelay(time.Millisecond))
	resp := mustResult(t, call, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestRetryOffByDefault(t *testing.T) {
	srv, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/status/502")
	require.NoError(t, err)
	_, err = call.Result()
	assert.Equal(t, 502, StatusCode(err))
	assert.Equal(t, 1, srv.Hits("/status/502"))
}

func TestAbortDuringRetryDelay(t *testing.T) {
	srv, client := newTestClient(t)

	call, err := client.Get(context.Background(), "/status/500", WithRetry(), WithRetryDelay(time.Hour))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Hits("/status/500") == 1 }, time.Second, 5*time.Millisecond)

	call.Cancel()
	_, err = call.Result()
	assert.True(t, IsCancellation(err))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, srv.Hits("/status/500"))
}

func TestDomainFailover(t *testing.T) {
	var mu sync.Mutex
	var order []string
	server := func(name string, status int) *httptest.Server {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			w.WriteHeader(status)
		}))
		t.Cleanup(s.Close)
		return s
	}
	origin := server("origin", http.StatusBadGateway)
	d1 := server("d1", http.StatusBadGateway)
	d2 := server("d2", http.StatusOK)

	client, err := New(origin.URL, WithDomains(d1.URL, d2.URL))
	require.NoError(t, err)

	call, err := client.Get(context.Background(), "/data", WithRetry(), WithRetryDelay(time.Millisecond))
	resp := mustResult(t, call, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, d2.URL, resp.Request.BaseURL)
	assert.Equal(t, []string{"origin", "d1", "d2"}, order)
}

func TestConnectionRefusedIsTransportError(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	client, err := New(url)
	require.NoError(t, err)

	call, err := client.Get(context.Background(), "/")
	require.NoError(t, err)
	_, err = call.Result()

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, CodeConnRefused, transportErr.Code)
	assert.False(t, IsCancellation(err))
}

func TestCallOptionValidation(t *testing.T) {
	srv, client := newTestClient(t)

	_, err := client.Get(context.Background(), "/anything", WithSingleType(Single("sideways")))
	assert.True(t, IsConfigurationError(err))

	_, err = client.Get(context.Background(), "/anything", WithCallDomains("::nope"))
	assert.True(t, IsConfigurationError(err))

	_, err = client.Do(context.Background(), NewRequest("BREW", "/anything", nil))
	assert.True(t, IsConfigurationError(err))

	assert.Equal(t, 0, srv.Hits("/anything"))
}

func TestRequestIDs(t *testing.T) {
	var n atomic.Int32
	_, client := newTestClient(t, WithDebug(), WithRequestIDGenerator(func() string {
		return "req-" + string(rune('a'+n.Add(1)-1))
	}))

	call, err := client.Get(context.Background(), "/status/404")
	require.NoError(t, err)
	assert.Equal(t, "req-a", call.ID())
	_, _ = call.Result()

	_, err = client.Post(context.Background(), "/echo", nil, WithCache())
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "req-b", clientErr.RequestID)
	assert.Equal(t, "POST", clientErr.Method)
}

func TestCacheSweepSchedule(t *testing.T) {
	_, client := newTestClient(t, WithCacheSweep("@every 1h"))

	require.NotNil(t, client.sweeper)
	assert.Len(t, client.sweeper.Entries(), 1)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
