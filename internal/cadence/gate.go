// Package cadence gates repeated work behind a minimum interval, the same
// shape the original queue scheduler used to decide whether a job was due.
package cadence

import (
	"sync"
	"time"
)

// Gate tracks the last time each keyed piece of work ran and reports
// whether enough time has elapsed to run it again. A zero Gate is ready to
// use.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewGate builds a Gate that allows one run per key every interval.
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval, last: make(map[string]time.Time)}
}

// Allow reports whether key is due to run, and if so records this moment as
// its last run time. Concurrent callers racing on the same key will see
// exactly one Allow succeed per interval.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = make(map[string]time.Time)
	}
	now := time.Now()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.interval {
		return false
	}
	g.last[key] = now
	return true
}

// Reset forgets the last run time for key, so the next Allow succeeds
// unconditionally.
func (g *Gate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}
