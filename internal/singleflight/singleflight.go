// Package singleflight keeps per-key in-flight state for the three
// de-duplication policies: ordered lanes, latest-wins tracking and
// occupancy flags.
package singleflight

import (
	"sync"
)

// Group tracks which keys currently have a call in flight. A key is occupied
// from Occupy until the returned release function is called.
type Group struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// New creates a new occupancy Group.
func New() *Group {
	return &Group{
		m: make(map[string]struct{}),
	}
}

// Occupy marks key as in flight. If another call already holds the key it
// returns ErrInProgress immediately and never blocks. The release function
// is safe to call more than once.
func (g *Group) Occupy(key string) (func(), error) {
	g.mu.Lock()
	if _, ok := g.m[key]; ok {
		g.mu.Unlock()
		return nil, ErrInProgress
	}
	g.m[key] = struct{}{}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.m, key)
			g.mu.Unlock()
		})
	}, nil
}

// Occupied reports whether key currently has a call in flight.
func (g *Group) Occupied(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}
