package queue

import (
	"sync"
	"time"
)

const (
	defaultProgressTTL     = 15 * time.Minute
	defaultProgressEntries = 4096
)

type progressEntry struct {
	pct     int
	updated time.Time
}

// ProgressTracker holds coarse in-memory progress for in-flight jobs so
// the status API can report progressPct. It is process-local and
// advisory: entries vanish on restart and after ttl, and the API treats a
// missing entry as "no progress known".
type ProgressTracker struct {
	mu      sync.Mutex
	entries map[string]progressEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewProgressTracker(ttl time.Duration, maxEntries int) *ProgressTracker {
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultProgressEntries
	}
	return &ProgressTracker{
		entries: make(map[string]progressEntry),
		ttl:     ttl,
		max:     maxEntries,
		now:     time.Now,
	}
}

// Set records pct (clamped to 0..100) for a job.
func (t *ProgressTracker) Set(jobID string, pct int) {
	if t == nil || jobID == "" {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if _, exists := t.entries[jobID]; !exists && len(t.entries) >= t.max {
		t.evictLocked(now)
		// Still full after evicting stale entries means the pool budget is
		// saturated with live jobs; drop the newcomer rather than grow.
		if len(t.entries) >= t.max {
			return
		}
	}
	t.entries[jobID] = progressEntry{pct: pct, updated: now}
}

// Get returns the last reported pct for a job.
func (t *ProgressTracker) Get(jobID string) (int, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	if !ok {
		return 0, false
	}
	if t.now().Sub(e.updated) > t.ttl {
		delete(t.entries, jobID)
		return 0, false
	}
	return e.pct, true
}

// Forget drops a job's entry. The dispatcher calls this on every terminal
// transition.
func (t *ProgressTracker) Forget(jobID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, jobID)
}

// Len reports the live entry count.
func (t *ProgressTracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *ProgressTracker) evictLocked(now time.Time) {
	for id, e := range t.entries {
		if now.Sub(e.updated) > t.ttl {
			delete(t.entries, id)
		}
	}
}
