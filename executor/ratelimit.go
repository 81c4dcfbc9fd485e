package executor

import (
	"sync"
	"time"
)

// RateWindow is a rolling time-window counter per agent id. It is a soft
// fairness guard held in process memory, not a financial control; instances are
// injected so tests construct fresh ones without cross-test leakage.
type RateWindow struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	events map[string][]time.Time

	now func() time.Time
}

func NewRateWindow(window time.Duration, limit int) *RateWindow {
	return &RateWindow{
		window: window,
		limit:  limit,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an action for agentID unless the window is already full.
func (w *RateWindow) Allow(agentID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	kept := w.events[agentID][:0]
	for _, t := range w.events[agentID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= w.limit {
		w.events[agentID] = kept
		return false
	}
	w.events[agentID] = append(kept, now)
	return true
}
