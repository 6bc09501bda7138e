package singleflight

import (
	"sync"
)

type latestEntry struct {
	token  uint64
	cancel func(error)
}

// Latest remembers the most recent call per key and aborts its predecessor
// whenever a newer one arrives.
type Latest struct {
	mu      sync.Mutex
	cause   error
	next    uint64
	entries map[string]latestEntry
}

// NewLatest returns a tracker that aborts superseded calls with cause.
func NewLatest(cause error) *Latest {
	return &Latest{
		cause:   cause,
		entries: make(map[string]latestEntry),
	}
}

// Supersede makes cancel the current call for key, aborting the previous
// one if it is still tracked. The returned token identifies the new call
// for Done; superseded reports whether a previous call was aborted.
func (l *Latest) Supersede(key string, cancel func(error)) (token uint64, superseded bool) {
	l.mu.Lock()
	prev, had := l.entries[key]
	l.next++
	token = l.next
	l.entries[key] = latestEntry{token: token, cancel: cancel}
	l.mu.Unlock()

	if had && prev.cancel != nil {
		prev.cancel(l.cause)
	}
	return token, had
}

// Done clears key if token still identifies the current call.
func (l *Latest) Done(key string, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok && e.token == token {
		delete(l.entries, key)
	}
}

// Tracked reports whether key has a current call.
func (l *Latest) Tracked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok
}
