package discovery

import (
	"context"
	"net"
	"testing"
)

func TestMXResolverMemoizes(t *testing.T) {
	lookup := newFakeLookup(map[string]string{"smithlaw.com": "MX1.SmithLaw.com"})
	r := NewMXResolver(lookup, NewStateCache(nil), quietLog())

	for i := 0; i < 3; i++ {
		host, ok := r.MXHost(context.Background(), "smithlaw.com")
		if !ok || host != "mx1.smithlaw.com" {
			t.Fatalf("MXHost = %q, %v", host, ok)
		}
	}
	if lookup.count("smithlaw.com") != 1 || r.Lookups() != 1 {
		t.Fatalf("lookups = %d", lookup.count("smithlaw.com"))
	}
}

func TestMXResolverRemembersMissingMX(t *testing.T) {
	lookup := newFakeLookup(nil)
	states := NewStateCache(nil)
	r := NewMXResolver(lookup, states, quietLog())

	for i := 0; i < 2; i++ {
		if host, ok := r.MXHost(context.Background(), "deadsite.org"); ok {
			t.Fatalf("got MX %q", host)
		}
	}
	if lookup.count("deadsite.org") != 1 {
		t.Fatalf("no-MX domain queried %d times", lookup.count("deadsite.org"))
	}
	s, _ := states.Get("deadsite.org")
	if !s.NoMX() {
		t.Fatalf("state not marked no-MX: %+v", s)
	}
}

func TestMXResolverSkipsCancelledLookups(t *testing.T) {
	states := NewStateCache(nil)
	r := NewMXResolver(cancelledLookup{}, states, quietLog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := r.MXHost(ctx, "smithlaw.com"); ok {
		t.Fatal("cancelled lookup resolved")
	}
	if s, _ := states.Get("smithlaw.com"); s.MXResolved {
		t.Fatal("cancelled lookup was memoized")
	}
}

type cancelledLookup struct{}

func (cancelledLookup) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	return nil, ctx.Err()
}

func TestBestMX(t *testing.T) {
	cases := []struct {
		name    string
		records []*net.MX
		want    string
	}{
		{"lowest preference", []*net.MX{{Host: "b.mx.test.", Pref: 20}, {Host: "A.mx.test.", Pref: 5}}, "a.mx.test"},
		{"null mx", []*net.MX{{Host: ".", Pref: 0}}, ""},
		{"null mx skipped", []*net.MX{{Host: ".", Pref: 0}, {Host: "mx.test.", Pref: 10}}, "mx.test"},
		{"empty", nil, ""},
	}
	for _, tc := range cases {
		if got := bestMX(tc.records); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
