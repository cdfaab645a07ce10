// discovery/state.go
package discovery

import (
	"context"
	"sync"
	"time"
)

// CatchAllStatus is tri-state once checked: a probe can fail to tell.
type CatchAllStatus int

const (
	CatchAllUnchecked CatchAllStatus = iota
	CatchAllNo
	CatchAllYes
	CatchAllUnknown
)

func (s CatchAllStatus) String() string {
	switch s {
	case CatchAllNo:
		return "no"
	case CatchAllYes:
		return "yes"
	case CatchAllUnknown:
		return "unknown"
	default:
		return "unchecked"
	}
}

// Evidence classifies where a learning sample came from.
type Evidence int

const (
	EvidenceNone Evidence = iota
	// EvidenceUpstream is an address from a non-guessing upstream source.
	EvidenceUpstream
	// EvidenceProbeConfirmed is an address the prober accepted this run.
	EvidenceProbeConfirmed
	// EvidenceGenerated and EvidenceCatchAll are never used for learning.
	EvidenceGenerated
	EvidenceCatchAll
)

// DomainState is the per-domain verification memo for a run.
type DomainState struct {
	Domain          string         `json:"domain"`
	MXHost          string         `json:"mx_host,omitempty"`
	MXResolved      bool           `json:"mx_resolved"`
	CatchAll        CatchAllStatus `json:"catch_all"`
	Pattern         Pattern        `json:"pattern"`
	PatternEvidence Evidence       `json:"pattern_evidence"`
	LastCheckedAt   time.Time      `json:"last_checked_at"`
}

// HasMX reports a resolved, non-empty exchanger.
func (s DomainState) HasMX() bool {
	return s.MXResolved && s.MXHost != ""
}

// NoMX reports a domain known to be unable to receive mail.
func (s DomainState) NoMX() bool {
	return s.MXResolved && s.MXHost == ""
}

// TrustedCatchAll hides the catch-all flag until the exchanger is known.
func (s DomainState) TrustedCatchAll() CatchAllStatus {
	if !s.HasMX() {
		return CatchAllUnchecked
	}
	return s.CatchAll
}

// TrustedPattern hides the learned pattern until the exchanger is known.
func (s DomainState) TrustedPattern() Pattern {
	if !s.HasMX() {
		return PatternNone
	}
	return s.Pattern
}

// StateStore persists domain state across runs. Implementations live in store/.
type StateStore interface {
	Load(ctx context.Context, domain string) (DomainState, bool, error)
	Save(ctx context.Context, state DomainState) error
}

// StateCache is constructed once per run and shared by every component.
// Each domain is owned by one worker at a time, so the lock only has to keep
// the map itself consistent.
type StateCache struct {
	mu       sync.RWMutex
	states   map[string]*DomainState
	hydrated map[string]bool
	store    StateStore
	now      func() time.Time
}

func NewStateCache(store StateStore) *StateCache {
	return &StateCache{
		states:   make(map[string]*DomainState),
		hydrated: make(map[string]bool),
		store:    store,
		now:      time.Now,
	}
}

// Get returns a copy of the domain's state.
func (c *StateCache) Get(domain string) (DomainState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[domain]
	if !ok {
		return DomainState{Domain: domain}, false
	}
	return *s, true
}

// Update applies fn to the domain's state under the write lock.
func (c *StateCache) Update(domain string, fn func(*DomainState)) DomainState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[domain]
	if !ok {
		s = &DomainState{Domain: domain}
		c.states[domain] = s
	}
	fn(s)
	s.LastCheckedAt = c.now()
	return *s
}

// Hydrate seeds the domain from the persistent store once per run. Only
// complete states (MX resolved) are accepted.
func (c *StateCache) Hydrate(ctx context.Context, domain string) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	if c.hydrated[domain] {
		c.mu.Unlock()
		return nil
	}
	c.hydrated[domain] = true
	c.mu.Unlock()

	stored, ok, err := c.store.Load(ctx, domain)
	if err != nil || !ok || !stored.MXResolved {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.states[domain]; !exists {
		stored.Domain = domain
		c.states[domain] = &stored
	}
	return nil
}

// Persist writes the domain's state to the store when there is one.
func (c *StateCache) Persist(ctx context.Context, domain string) error {
	if c.store == nil {
		return nil
	}
	s, ok := c.Get(domain)
	if !ok || !s.MXResolved {
		return nil
	}
	return c.store.Save(ctx, s)
}
