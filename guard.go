package apireq

import (
	"fmt"
	"sync"
	"time"
)

// FrequencyGuard counts calls in a rolling one second window and refuses
// calls beyond its limit. It protects against runaway callers, not against
// server load. A limit of zero or less disables it.
type FrequencyGuard struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   []time.Time
	now    func() time.Time
	obs    *observer
}

// NewFrequencyGuard returns a guard allowing limit calls per second.
func NewFrequencyGuard(limit int) *FrequencyGuard {
	return &FrequencyGuard{
		limit:  limit,
		window: time.Second,
		now:    time.Now,
		obs:    &observer{debug: DefaultDebugConfig()},
	}
}

// Tick records one call. override replaces the configured limit for this
// call when positive. Exceeding the limit returns a configuration error
// wrapping ErrFrequencyExceeded.
func (g *FrequencyGuard) Tick(override int) error {
	g.mu.Lock()
	limit := g.limit
	if override > 0 {
		limit = override
	}
	now := g.now()
	g.pruneLocked(now)
	g.hits = append(g.hits, now)
	count := len(g.hits)
	g.mu.Unlock()

	if limit <= 0 || count <= limit {
		return nil
	}

	g.obs.metrics.RecordGuardTrip()
	if g.obs.logs(g.obs.debug.LogGuard) {
		g.obs.logger.Warn("Call frequency limit exceeded", "limit", limit, "count", count)
	}
	return newConfigurationError(fmt.Sprintf("%d calls within %s exceed limit %d", count, g.window, limit), ErrFrequencyExceeded)
}

// Count reports how many calls fall in the current window.
func (g *FrequencyGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	return len(g.hits)
}

// SetLimit replaces the configured limit.
func (g *FrequencyGuard) SetLimit(limit int) {
	g.mu.Lock()
	g.limit = limit
	g.mu.Unlock()
}

func (g *FrequencyGuard) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.hits) && !g.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.hits = append(g.hits[:0], g.hits[i:]...)
	}
}
