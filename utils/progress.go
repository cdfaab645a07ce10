package utils

import (
	"sync"
	"time"

	"mailfinder/discovery"
)

// RunProgress is what the websocket pushes to clients.
type RunProgress struct {
	RunID  uint            `json:"run_id"`
	Status string          `json:"status"`
	Domain string          `json:"domain,omitempty"`
	Total  int             `json:"total"`
	Stats  discovery.Stats `json:"stats"`
}

// Finished reports a terminal run status.
func (p RunProgress) Finished() bool {
	return p.Status == "completed" || p.Status == "failed"
}

// ProgressHub fans run progress out to websocket subscribers and remembers
// the latest update per run for late joiners.
type ProgressHub struct {
	mu     sync.Mutex
	latest map[uint]RunProgress
	subs   map[uint]map[chan RunProgress]struct{}
	keep   time.Duration
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		latest: make(map[uint]RunProgress),
		subs:   make(map[uint]map[chan RunProgress]struct{}),
		keep:   10 * time.Minute,
	}
}

// Publish never blocks: a subscriber that is behind misses intermediate
// updates but can always read the latest one.
func (h *ProgressHub) Publish(p RunProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[p.RunID] = p
	for ch := range h.subs[p.RunID] {
		select {
		case ch <- p:
		default:
		}
	}
	if p.Finished() {
		runID := p.RunID
		time.AfterFunc(h.keep, func() {
			h.mu.Lock()
			if cur, ok := h.latest[runID]; ok && cur.Finished() {
				delete(h.latest, runID)
			}
			h.mu.Unlock()
		})
	}
}

func (h *ProgressHub) Latest(runID uint) (RunProgress, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.latest[runID]
	return p, ok
}

// Subscribe returns a channel of updates for the run and a func to release it.
func (h *ProgressHub) Subscribe(runID uint) (<-chan RunProgress, func()) {
	ch := make(chan RunProgress, 8)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan RunProgress]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[runID], ch)
			if len(h.subs[runID]) == 0 {
				delete(h.subs, runID)
			}
			h.mu.Unlock()
		})
	}
}
