package discovery

import (
	"context"
	"strings"
	"testing"
)

func resolvedStates(domain string) *StateCache {
	states := NewStateCache(nil)
	states.Update(domain, func(s *DomainState) {
		s.MXResolved = true
		s.MXHost = "mx." + domain
	})
	return states
}

func TestLearnerLearnsAndProposes(t *testing.T) {
	l := NewLearner(resolvedStates("acme.com"), quietLog())

	p, ok := l.Learn("acme.com", "JSmith@acme.com", "Jane", "Smith", EvidenceProbeConfirmed)
	if !ok || p != PatternFLast {
		t.Fatalf("Learn = %s, %v", p, ok)
	}
	c, ok := l.Propose("acme.com", "Bob", "Jones")
	if !ok || c.Address != "bjones@acme.com" {
		t.Fatalf("Propose = %+v, %v", c, ok)
	}
}

func TestLearnerRejectsGuessEvidence(t *testing.T) {
	l := NewLearner(resolvedStates("acme.com"), quietLog())
	for _, e := range []Evidence{EvidenceGenerated, EvidenceCatchAll, EvidenceNone} {
		if _, ok := l.Learn("acme.com", "jsmith@acme.com", "Jane", "Smith", e); ok {
			t.Fatalf("learned from evidence %d", e)
		}
	}
	if l.Pattern("acme.com") != PatternNone {
		t.Fatal("pattern set from guesses")
	}
}

func TestLearnerEvidencePreference(t *testing.T) {
	l := NewLearner(resolvedStates("acme.com"), quietLog())

	if _, ok := l.Learn("acme.com", "smith.jane@acme.com", "Jane", "Smith", EvidenceUpstream); !ok {
		t.Fatal("upstream sample not learned")
	}
	// A second upstream sample does not override the first.
	if _, ok := l.Learn("acme.com", "jane.smith@acme.com", "Jane", "Smith", EvidenceUpstream); ok {
		t.Fatal("second upstream sample replaced the first")
	}
	// A probe-confirmed sample outranks upstream.
	if p, ok := l.Learn("acme.com", "jsmith@acme.com", "Jane", "Smith", EvidenceProbeConfirmed); !ok || p != PatternFLast {
		t.Fatalf("confirmed sample not preferred: %s %v", p, ok)
	}
	if _, ok := l.Learn("acme.com", "jane.smith@acme.com", "Jane", "Smith", EvidenceProbeConfirmed); ok {
		t.Fatal("confirmed sample replaced another confirmed sample")
	}
}

func TestLearnerIgnoresOtherDomainsAndAmbiguousSamples(t *testing.T) {
	l := NewLearner(resolvedStates("acme.com"), quietLog())
	if _, ok := l.Learn("acme.com", "jsmith@gmail.com", "Jane", "Smith", EvidenceProbeConfirmed); ok {
		t.Fatal("learned from another domain")
	}
	if _, ok := l.Learn("acme.com", "j.smith@acme.com", "J", "Smith", EvidenceProbeConfirmed); ok {
		t.Fatal("learned from an ambiguous sample")
	}
}

func TestLearnerHidesPatternWithoutMX(t *testing.T) {
	states := NewStateCache(nil)
	l := NewLearner(states, quietLog())
	l.Learn("acme.com", "jsmith@acme.com", "Jane", "Smith", EvidenceProbeConfirmed)
	if _, ok := l.Propose("acme.com", "Bob", "Jones"); ok {
		t.Fatal("proposed before MX was known")
	}
}

func TestCatchAllDetectorCachesResult(t *testing.T) {
	states := resolvedStates("bigfirm.com")
	probe := acceptAll()
	d := NewCatchAllDetector(probe, states, quietLog())

	for i := 0; i < 3; i++ {
		if got := d.IsCatchAll(context.Background(), "bigfirm.com", "mx.bigfirm.com"); got != CatchAllYes {
			t.Fatalf("IsCatchAll = %s", got)
		}
	}
	if probe.count() != 1 {
		t.Fatalf("probed %d times", probe.count())
	}
	local := strings.SplitN(probe.calls[0], "@", 2)[0]
	if !strings.HasPrefix(local, "zz") || len(local) < 20 {
		t.Fatalf("probe local-part %q does not look random", local)
	}
}

func TestCatchAllDetectorStatuses(t *testing.T) {
	cases := []struct {
		probe *fakeProbe
		want  CatchAllStatus
	}{
		{acceptOnly(), CatchAllNo},
		{inconclusiveAll(), CatchAllUnknown},
	}
	for _, tc := range cases {
		d := NewCatchAllDetector(tc.probe, resolvedStates("smithlaw.com"), quietLog())
		if got := d.IsCatchAll(context.Background(), "smithlaw.com", "mx.smithlaw.com"); got != tc.want {
			t.Errorf("got %s, want %s", got, tc.want)
		}
	}
}

func TestStateCacheHydrateAndPersist(t *testing.T) {
	store := newMemoryStateStore()
	store.states["acme.com"] = DomainState{
		Domain:          "acme.com",
		MXHost:          "mx.acme.com",
		MXResolved:      true,
		CatchAll:        CatchAllNo,
		Pattern:         PatternFLast,
		PatternEvidence: EvidenceProbeConfirmed,
	}
	store.states["half.com"] = DomainState{Domain: "half.com", Pattern: PatternFirst}

	c := NewStateCache(store)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := c.Hydrate(ctx, "acme.com"); err != nil {
			t.Fatal(err)
		}
	}
	if store.loads != 1 {
		t.Fatalf("store loaded %d times", store.loads)
	}
	if s, _ := c.Get("acme.com"); s.TrustedPattern() != PatternFLast {
		t.Fatalf("hydrated pattern = %s", s.TrustedPattern())
	}

	_ = c.Hydrate(ctx, "half.com")
	if _, ok := c.Get("half.com"); ok {
		t.Fatal("state without a resolved MX was accepted")
	}

	c.Update("new.com", func(s *DomainState) { s.MXResolved = true; s.MXHost = "mx.new.com" })
	if err := c.Persist(ctx, "new.com"); err != nil {
		t.Fatal(err)
	}
	if got := store.states["new.com"]; got.MXHost != "mx.new.com" || got.LastCheckedAt.IsZero() {
		t.Fatalf("persisted %+v", got)
	}
}
