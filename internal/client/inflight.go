package client

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// inflightGroup coalesces concurrent identical GETs. It is singleflight with
// a time-to-share window: a caller joins an existing flight only while the
// flight is younger than the window; older flights are forgotten and a fresh
// fetch begins. The bookkeeping table is capped, evicting its oldest entry.
type inflightGroup struct {
	group  singleflight.Group
	window time.Duration
	max    int

	mu        sync.Mutex
	started   map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func newInflightGroup(window time.Duration, max int) *inflightGroup {
	return &inflightGroup{
		window:  window,
		max:     max,
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Do runs fn for key, sharing the result with concurrent callers that
// arrive within the share window.
func (g *inflightGroup) Do(key string, fn func() (*Result, error)) (*Result, error) {
	startedAt := g.admit(key)

	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		defer g.release(key, startedAt)
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// admit returns the start time recorded for the flight this caller runs
// or joins; release uses it to tell the entry apart from a successor's.
func (g *inflightGroup) admit(key string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)

	if startedAt, ok := g.started[key]; ok {
		if now.Sub(startedAt) < g.window {
			return startedAt // join the live flight
		}
		// Stale flight: detach it so this caller starts fresh.
		g.group.Forget(key)
		delete(g.started, key)
	}

	if len(g.started) >= g.max {
		g.evictOldestLocked()
	}
	g.started[key] = now
	return now
}

// release clears the entry for a finished flight. A flight that was
// superseded after the window must not clear its successor's entry, so
// the delete is keyed on the recorded start time.
func (g *inflightGroup) release(key string, startedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if recorded, ok := g.started[key]; ok && recorded.Equal(startedAt) {
		delete(g.started, key)
	}
}

// sweepLocked drops entries whose flights started more than 10 windows ago.
// Stale entries can linger when a flight's goroutine never returns in time.
func (g *inflightGroup) sweepLocked(now time.Time) {
	if now.Sub(g.lastSweep) < g.window {
		return
	}
	g.lastSweep = now
	cutoff := now.Add(-10 * g.window)
	for key, startedAt := range g.started {
		if startedAt.Before(cutoff) {
			g.group.Forget(key)
			delete(g.started, key)
		}
	}
}

func (g *inflightGroup) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, startedAt := range g.started {
		if oldestKey == "" || startedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = startedAt
		}
	}
	if oldestKey != "" {
		g.group.Forget(oldestKey)
		delete(g.started, oldestKey)
	}
}

// size returns the number of tracked flights.
func (g *inflightGroup) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.started)
}
