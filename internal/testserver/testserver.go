// Package testserver provides the HTTP fixture used by the package tests and
// the example server. Every route records its hits so tests can assert how
// much network traffic a call produced.
package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Fixture is the routing and bookkeeping part of the test server.
type Fixture struct {
	router chi.Router

	mu       sync.Mutex
	hits     map[string]int
	arrivals []int
	flaky    map[string]int
	counter  int
}

// NewFixture builds the fixture routes:
//
//	GET  /cache              returns a value that changes on every hit
//	GET  /single/queue       records ?index arrival order, sleeps ?delay ms
//	GET  /single/delay       sleeps ?delay ms
//	ANY  /status/{code}      answers with the given status
//	GET  /flaky/{failures}   fails with ?code (500) until hit more than failures times per ?key
//	ANY  /echo               echoes method, query, body and User-Agent
//	ANY  /*                  {"success":true}
func NewFixture() *Fixture {
	f := &Fixture{
		hits:  make(map[string]int),
		flaky: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Get("/cache", f.cache)
	r.Get("/single/queue", f.queue)
	r.Get("/single/delay", f.delay)
	r.HandleFunc("/status/{code}", f.status)
	r.Get("/flaky/{failures}", f.flakyRoute)
	r.HandleFunc("/echo", f.echo)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	f.router = r
	return f
}

func (f *Fixture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

// Hits reports how many requests reached path.
func (f *Fixture) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// Arrivals returns the ?index values seen by /single/queue, in arrival order.
func (f *Fixture) Arrivals() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.arrivals...)
}

// Reset forgets all recorded traffic.
func (f *Fixture) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = make(map[string]int)
	f.flaky = make(map[string]int)
	f.arrivals = nil
	f.counter = 0
}

func (f *Fixture) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *Fixture) cache(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.counter++
	n := f.counter
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"value": n})
}

func (f *Fixture) queue(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(r.URL.Query().Get("index"))
	f.mu.Lock()
	f.arrivals = append(f.arrivals, index)
	f.mu.Unlock()

	if !pause(r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": index})
}

func (f *Fixture) delay(w http.ResponseWriter, r *http.Request) {
	if !pause(r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (f *Fixture) status(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]any{"status": code})
}

func (f *Fixture) flakyRoute(w http.ResponseWriter, r *http.Request) {
	failures, _ := strconv.Atoi(chi.URLParam(r, "failures"))
	code, err := strconv.Atoi(r.URL.Query().Get("code"))
	if err != nil {
		code = http.StatusInternalServerError
	}
	key := r.URL.Query().Get("key")

	f.mu.Lock()
	f.flaky[key]++
	seen := f.flaky[key]
	f.mu.Unlock()

	if seen <= failures {
		writeJSON(w, code, map[string]any{"attempt": seen})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempt": seen})
}

func (f *Fixture) echo(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusOK, map[string]any{
		"method":      r.Method,
		"query":       r.URL.RawQuery,
		"body":        string(body),
		"userAgent":   r.UserAgent(),
		"hasUA":       len(r.Header.Values("User-Agent")) > 0,
		"contentType": r.Header.Get("Content-Type"),
	})
}

// pause sleeps for the ?delay milliseconds of r. It reports false when the
// client went away first.
func pause(r *http.Request) bool {
	ms, _ := strconv.Atoi(r.URL.Query().Get("delay"))
	if ms <= 0 {
		return true
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is a Fixture listening on a local httptest server.
type Server struct {
	*Fixture
	URL string
	srv *httptest.Server
}

// NewServer starts a fixture on a random local port.
func NewServer() *Server {
	f := NewFixture()
	srv := httptest.NewServer(f)
	return &Server{Fixture: f, URL: srv.URL, srv: srv}
}

func (s *Server) Close() {
	s.srv.Close()
}
