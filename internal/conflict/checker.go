package conflict

import (
	"sync"
	"time"
)

type interval struct {
	start time.Time
	end   time.Time
}

// Checker tracks committed consultation windows per guardian. A guardian may
// bring several children, but never into overlapping slots; this is a hard
// constraint and is never relaxed by priority.
type Checker struct {
	mu         sync.Mutex
	byGuardian map[string][]interval
}

func NewChecker() *Checker {
	return &Checker{byGuardian: make(map[string][]interval)}
}

// Conflicts reports whether [start, end) overlaps any window already
// committed for the guardian. Intervals are half-open: back-to-back slots do
// not conflict.
func (c *Checker) Conflicts(guardianID string, start, end time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, iv := range c.byGuardian[guardianID] {
		if start.Before(iv.end) && iv.start.Before(end) {
			return true
		}
	}
	return false
}

// Commit records a window for the guardian.
func (c *Checker) Commit(guardianID string, start, end time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byGuardian[guardianID] = append(c.byGuardian[guardianID], interval{start: start, end: end})
}

// Release removes one committed window matching the given bounds, if present.
func (c *Checker) Release(guardianID string, start, end time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	windows := c.byGuardian[guardianID]
	for i, iv := range windows {
		if iv.start.Equal(start) && iv.end.Equal(end) {
			c.byGuardian[guardianID] = append(windows[:i], windows[i+1:]...)
			return
		}
	}
}
