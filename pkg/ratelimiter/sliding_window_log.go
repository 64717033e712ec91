package ratelimiter

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// SlidingWindowLog implements RateLimiter with a log of admitted-call
// timestamps, persisted to a file so the window survives restarts.
//
// Allow is check-and-increment in one step: timestamps older than the
// window are dropped, and when fewer than limit remain the call is admitted
// and recorded. A denied call writes nothing. A corrupt or missing log file
// is treated as an empty window, never as a fatal condition.
type SlidingWindowLog struct {
	limit  int
	window time.Duration
	path   string

	mu  sync.Mutex
	now func() time.Time
}

// Option configures a SlidingWindowLog.
type Option func(*SlidingWindowLog)

// WithClock substitutes the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLog) { l.now = now }
}

// NewSlidingWindowLog creates a limiter admitting at most limit calls per
// window, logged at path.
func NewSlidingWindowLog(path string, limit int, window time.Duration, opts ...Option) *SlidingWindowLog {
	l := &SlidingWindowLog{
		limit:  limit,
		window: window,
		path:   path,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether this call is admitted, recording it when it is.
// The whole read-modify-write runs under one lock so concurrent callers
// cannot lose updates.
func (l *SlidingWindowLog) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	boundary := now.Add(-l.window)

	kept := make([]time.Time, 0, l.limit)
	for _, ts := range l.load() {
		if ts.After(boundary) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		return false
	}
	kept = append(kept, now)
	l.persist(kept)
	return true
}

// load reads the persisted window. Unreadable or corrupt files yield an
// empty window.
func (l *SlidingWindowLog) load() []time.Time {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	stamps := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			continue
		}
		stamps = append(stamps, ts)
	}
	return stamps
}

func (l *SlidingWindowLog) persist(stamps []time.Time) {
	raw := make([]string, len(stamps))
	for i, ts := range stamps {
		raw[i] = ts.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	_ = os.WriteFile(l.path, data, 0o644)
}

var _ RateLimiter = (*SlidingWindowLog)(nil)
