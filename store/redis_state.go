package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"mailfinder/discovery"
)

const domainKeyPrefix = "mailfinder:domain:"

// RedisStateStore keeps domain verification state between runs so a domain
// is not re-resolved or re-checked for catch-all on every batch.
type RedisStateStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStateStore(client redis.Cmdable, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

// storedState is the wire form. Enums are written by name so reordering the
// Go constants does not corrupt existing entries.
type storedState struct {
	Domain          string    `json:"domain"`
	MXHost          string    `json:"mx_host,omitempty"`
	MXResolved      bool      `json:"mx_resolved"`
	CatchAll        string    `json:"catch_all"`
	Pattern         string    `json:"pattern"`
	PatternEvidence int       `json:"pattern_evidence"`
	LastCheckedAt   time.Time `json:"last_checked_at"`
}

func domainKey(domain string) string {
	return domainKeyPrefix + discovery.NormalizeDomain(domain)
}

func (s *RedisStateStore) Load(ctx context.Context, domain string) (discovery.DomainState, bool, error) {
	raw, err := s.client.Get(ctx, domainKey(domain)).Bytes()
	if err == redis.Nil {
		return discovery.DomainState{}, false, nil
	}
	if err != nil {
		return discovery.DomainState{}, false, fmt.Errorf("load domain state %s: %w", domain, err)
	}
	state, err := decodeState(raw)
	if err != nil {
		return discovery.DomainState{}, false, fmt.Errorf("decode domain state %s: %w", domain, err)
	}
	return state, true, nil
}

func (s *RedisStateStore) Save(ctx context.Context, state discovery.DomainState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, domainKey(state.Domain), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save domain state %s: %w", state.Domain, err)
	}
	return nil
}

func encodeState(state discovery.DomainState) ([]byte, error) {
	return json.Marshal(storedState{
		Domain:          state.Domain,
		MXHost:          state.MXHost,
		MXResolved:      state.MXResolved,
		CatchAll:        state.CatchAll.String(),
		Pattern:         state.Pattern.String(),
		PatternEvidence: int(state.PatternEvidence),
		LastCheckedAt:   state.LastCheckedAt,
	})
}

func decodeState(raw []byte) (discovery.DomainState, error) {
	var st storedState
	if err := json.Unmarshal(raw, &st); err != nil {
		return discovery.DomainState{}, err
	}
	state := discovery.DomainState{
		Domain:          st.Domain,
		MXHost:          st.MXHost,
		MXResolved:      st.MXResolved,
		CatchAll:        parseCatchAll(st.CatchAll),
		PatternEvidence: discovery.Evidence(st.PatternEvidence),
		LastCheckedAt:   st.LastCheckedAt,
	}
	if p, ok := discovery.ParsePattern(st.Pattern); ok {
		state.Pattern = p
	} else {
		state.PatternEvidence = discovery.EvidenceNone
	}
	return state, nil
}

func parseCatchAll(s string) discovery.CatchAllStatus {
	switch s {
	case "yes":
		return discovery.CatchAllYes
	case "no":
		return discovery.CatchAllNo
	case "unknown":
		return discovery.CatchAllUnknown
	default:
		return discovery.CatchAllUnchecked
	}
}
