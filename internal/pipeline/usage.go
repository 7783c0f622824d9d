package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// DefaultUsageWindow is how far back Usage looks.
const DefaultUsageWindow = 10 * time.Second

type run struct {
	start    time.Time
	duration time.Duration
}

// Usage keeps the passes of a sliding time window and summarizes how much
// of the window was spent analysing.
type Usage struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	runs []run
}

// NewUsage creates a tracker. A nil now uses time.Now.
func NewUsage(window time.Duration, now func() time.Time) *Usage {
	if window <= 0 {
		window = DefaultUsageWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Usage{window: window, now: now}
}

// Record adds a pass that started at start and took d.
func (u *Usage) Record(start time.Time, d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.runs = append(u.runs, run{start: start, duration: d})
}

// Snapshot prunes runs that started before the window and returns the total
// time spent, the number of runs and the duration of the most recent one.
func (u *Usage) Snapshot() (total time.Duration, runs int, last time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	threshold := u.now().Add(-u.window)
	kept := u.runs[:0]
	for _, r := range u.runs {
		if r.start.Before(threshold) {
			continue
		}
		kept = append(kept, r)
		total += r.duration
	}
	u.runs = kept
	if len(kept) > 0 {
		last = kept[len(kept)-1].duration
	}
	return total, len(kept), last
}

// Summary formats Snapshot as "<sum>ms/<window>ms, <runs>, Last <last>ms".
func (u *Usage) Summary() string {
	total, runs, last := u.Snapshot()
	return fmt.Sprintf("%dms/%dms, %d, Last %dms", total.Milliseconds(), u.window.Milliseconds(), runs, last.Milliseconds())
}
