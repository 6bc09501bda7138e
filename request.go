package apireq

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/apireq/internal/backoff"
)

// Defaults for per-call options.
const (
	DefaultRetryCount = 5
	DefaultRetryDelay = time.Second
)

// Default retry classification sets.
var (
	DefaultRetryErrorCodes    = []string{CodeConnAborted, CodeNetwork, CodeTimeout, CodeConnRefused}
	DefaultRetryResponseCodes = []int{500, 404, 502}
	DefaultRetryRequestCodes  = []int{404}
)

// RequestOptions is the per-call option set. Build it through CallOption
// functions; the zero value is not the default.
type RequestOptions struct {
	Single     bool
	SingleType Single

	Cache bool
	// CacheTime bounds how old a cached response may be. Zero or negative
	// means the entry never expires.
	CacheTime time.Duration

	Retry              bool
	RetryCount         int
	RetryDelay         time.Duration
	RetryBackoff       backoff.Strategy
	RetryErrorCodes    []string
	RetryResponseCodes []int
	RetryRequestCodes  []int

	UseDomains bool
	Domains    []string

	Maximum      int
	TriggerLimit int
	UserAgent    string
}

// DefaultRequestOptions returns the option set used when a call sets nothing.
func DefaultRequestOptions() RequestOptions {
	return RequestOptions{
		Single:             true,
		SingleType:         SingleQueue,
		RetryCount:         DefaultRetryCount,
		RetryDelay:         DefaultRetryDelay,
		RetryErrorCodes:    DefaultRetryErrorCodes,
		RetryResponseCodes: DefaultRetryResponseCodes,
		RetryRequestCodes:  DefaultRetryRequestCodes,
		UseDomains:         true,
	}
}

// Request describes one call. It is owned by the call that created it;
// the retry engine works on clones.
type Request struct {
	Method  string
	URL     string
	BaseURL string
	Params  url.Values
	Header  http.Header
	Data    any
	Options RequestOptions

	id string
}

// NewRequest builds a request with default options and applies opts.
func NewRequest(method, rawURL string, data any, opts ...CallOption) *Request {
	req := &Request{
		Method:  strings.ToUpper(method),
		URL:     rawURL,
		Header:  make(http.Header),
		Data:    data,
		Options: DefaultRequestOptions(),
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// ID returns the request ID assigned by the client, if any.
func (r *Request) ID() string {
	return r.id
}

// Clone returns a copy whose header and params can be modified freely.
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.Params != nil {
		out.Params = make(url.Values, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// withBaseURL returns a clone targeting base instead of r.BaseURL.
func (r *Request) withBaseURL(base string) *Request {
	out := r.Clone()
	out.BaseURL = base
	return out
}

// joinURL joins base and path the way the transport resolves them, without
// a query string. Absolute paths are returned unchanged.
func joinURL(base, path string) string {
	if base == "" || isAbsoluteURL(path) {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func isAbsoluteURL(raw string) bool {
	if strings.HasPrefix(raw, "//") {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs()
}

// buildURI resolves the full request address, query included.
func buildURI(req *Request) string {
	full := joinURL(req.BaseURL, req.URL)
	if len(req.Params) == 0 {
		return full
	}
	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}
	return full + sep + req.Params.Encode()
}
