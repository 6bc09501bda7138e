package singleflight

import (
	"sync"

	"github.com/ambiyansyah-risyal/apireq/internal/pipeline"
)

// Lanes hands out one single-file pipeline per key. A lane is created on
// first use and dropped as soon as it drains.
type Lanes struct {
	mu    sync.Mutex
	lanes map[string]*pipeline.Pipeline
}

// NewLanes returns an empty lane set.
func NewLanes() *Lanes {
	return &Lanes{
		lanes: make(map[string]*pipeline.Pipeline),
	}
}

// Enqueue reserves the next position in key's lane. Positions are granted
// in the order Enqueue was called.
func (l *Lanes) Enqueue(key string) *pipeline.Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()

	lane, ok := l.lanes[key]
	if !ok {
		lane = pipeline.New(1)
		lane.OnEmpty(func() { l.remove(key, lane) })
		l.lanes[key] = lane
	}
	return lane.Enqueue()
}

// Len reports how many lanes are alive.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Pending reports how many calls are running or queued in key's lane.
func (l *Lanes) Pending(key string) int {
	l.mu.Lock()
	lane, ok := l.lanes[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	return lane.Active() + lane.Waiting()
}

func (l *Lanes) remove(key string, lane *pipeline.Pipeline) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// a new caller may have joined between drain and removal
	if l.lanes[key] == lane && lane.Idle() {
		delete(l.lanes, key)
	}
}
