package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestCacheRouteCountsHits(t *testing.T) {
	f := NewFixture()

	for want := 1; want <= 2; want++ {
		var body struct{ Value int }
		if err := json.NewDecoder(get(t, f, "/cache").Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Value != want {
			t.Errorf("value = %d, want %d", body.Value, want)
		}
	}
	if f.Hits("/cache") != 2 {
		t.Errorf("Hits(/cache) = %d, want 2", f.Hits("/cache"))
	}

	f.Reset()
	if f.Hits("/cache") != 0 {
		t.Error("Reset() should forget hits")
	}
}

func TestQueueRecordsArrivals(t *testing.T) {
	f := NewFixture()
	get(t, f, "/single/queue?index=2")
	get(t, f, "/single/queue?index=0")

	got := f.Arrivals()
	if len(got) != 2 || got[0] != 2 || got[1] != 0 {
		t.Errorf("Arrivals() = %v, want [2 0]", got)
	}
}

func TestStatusRoute(t *testing.T) {
	f := NewFixture()

	if rec := get(t, f, "/status/503"); rec.Code != 503 {
		t.Errorf("code = %d, want 503", rec.Code)
	}
	if rec := get(t, f, "/status/abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestFlakyRoute(t *testing.T) {
	f := NewFixture()

	codes := []int{
		get(t, f, "/flaky/2?code=502&key=a").Code,
		get(t, f, "/flaky/2?code=502&key=a").Code,
		get(t, f, "/flaky/2?code=502&key=a").Code,
		get(t, f, "/flaky/2?key=b").Code,
	}
	want := []int{502, 502, 200, 500}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("attempt %d: code = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestEchoAndFallback(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/echo?x=1", strings.NewReader("hi"))
	req.Header.Set("User-Agent", "probe")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["method"] != "POST" || body["query"] != "x=1" || body["body"] != "hi" || body["userAgent"] != "probe" {
		t.Errorf("unexpected echo %v", body)
	}

	resp, err = http.Get(srv.URL + "/anything")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(raw), `"success":true`) {
		t.Errorf("fallback = %d %s", resp.StatusCode, raw)
	}
}
