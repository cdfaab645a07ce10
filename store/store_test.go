package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"mailfinder/discovery"
)

func TestStateCodecWritesEnumsByName(t *testing.T) {
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := encodeState(discovery.DomainState{
		Domain:          "acme.com",
		MXHost:          "mx.acme.com",
		MXResolved:      true,
		CatchAll:        discovery.CatchAllNo,
		Pattern:         discovery.PatternFLast,
		PatternEvidence: discovery.EvidenceProbeConfirmed,
		LastCheckedAt:   checked,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"domain":"acme.com","mx_host":"mx.acme.com","mx_resolved":true,"catch_all":"no","pattern":"flast","pattern_evidence":2,"last_checked_at":"2026-03-01T12:00:00Z"}`
	if string(raw) != want {
		t.Fatalf("encoded %s", raw)
	}

	got, err := decodeState(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.TrustedPattern() != discovery.PatternFLast || got.TrustedCatchAll() != discovery.CatchAllNo {
		t.Fatalf("decoded %+v", got)
	}
}

func TestStateCodecUnknownPattern(t *testing.T) {
	got, err := decodeState([]byte(`{"domain":"acme.com","mx_host":"mx.acme.com","mx_resolved":true,"catch_all":"maybe","pattern":"first-initial","pattern_evidence":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.Pattern != discovery.PatternNone || got.PatternEvidence != discovery.EvidenceNone {
		t.Fatalf("unknown pattern kept: %+v", got)
	}
	if got.CatchAll != discovery.CatchAllUnchecked {
		t.Fatalf("unknown catch-all = %s", got.CatchAll)
	}
	if _, err := decodeState([]byte("{")); err == nil {
		t.Fatal("corrupt entry decoded")
	}
}

func TestDomainKey(t *testing.T) {
	if got := domainKey("WWW.Acme.com."); got != "mailfinder:domain:acme.com" {
		t.Fatalf("key = %s", got)
	}
}

func TestDomainRecordsOnePerDomain(t *testing.T) {
	states := discovery.NewStateCache(nil)
	states.Update("acme.com", func(s *discovery.DomainState) {
		s.MXResolved = true
		s.MXHost = "mx.acme.com"
		s.CatchAll = discovery.CatchAllYes
	})
	states.Update("pending.com", func(s *discovery.DomainState) { s.MXHost = "" })

	records := []*discovery.ContactRecord{
		{ID: 1, Domain: "acme.com"},
		{ID: 2, Website: "https://www.acme.com/team"},
		{ID: 3, Domain: "pending.com"},
		{ID: 4, Domain: "unknown.com"},
	}
	got := DomainRecords(states, records)
	if len(got) != 1 || got[0].Domain != "acme.com" || got[0].CatchAll != "yes" {
		t.Fatalf("domain records = %+v", got)
	}
	if DomainRecords(nil, records) != nil {
		t.Fatal("records without a cache")
	}
}

// Runs against a live server when REDIS_TEST_ADDR is set.
func TestRedisStateStoreLive(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStateStore(client, time.Minute)
	domain := "live-test-" + time.Now().Format("150405.000000") + ".com"
	defer client.Del(ctx, domainKey(domain))

	if _, ok, err := s.Load(ctx, domain); err != nil || ok {
		t.Fatalf("empty load = %v %v", ok, err)
	}
	if err := s.Save(ctx, discovery.DomainState{Domain: domain, MXResolved: true, MXHost: "mx." + domain, Pattern: discovery.PatternFirst}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Load(ctx, domain)
	if err != nil || !ok || got.TrustedPattern() != discovery.PatternFirst {
		t.Fatalf("load = %+v %v %v", got, ok, err)
	}
	if ttl := client.TTL(ctx, domainKey(domain)).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %s", ttl)
	}
}
