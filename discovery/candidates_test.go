package discovery

import (
	"reflect"
	"testing"
)

func TestGenerateOrderAndDomain(t *testing.T) {
	g := NewGenerator(NewRules(nil, nil, nil))
	got := Addresses(g.Generate("John", "Smith", "WWW.SmithLaw.com."))

	want := []string{
		"john.smith@smithlaw.com",
		"johnsmith@smithlaw.com",
		"jsmith@smithlaw.com",
		"j.smith@smithlaw.com",
		"john@smithlaw.com",
		"smith@smithlaw.com",
		"john_smith@smithlaw.com",
		"smith.john@smithlaw.com",
		"smithj@smithlaw.com",
		"john.s@smithlaw.com",
		"johns@smithlaw.com",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate =\n%v\nwant\n%v", got, want)
	}
}

func TestGenerateDedupesShortNames(t *testing.T) {
	g := NewGenerator(NewRules(nil, nil, nil))
	cs := g.Generate("J", "Smith", "smithlaw.com")

	seen := map[string]bool{}
	for _, c := range cs {
		if seen[c.Address] {
			t.Fatalf("duplicate candidate %s", c.Address)
		}
		seen[c.Address] = true
	}
	if len(cs) != 9 {
		t.Fatalf("got %d candidates, want 9: %v", len(cs), Addresses(cs))
	}
	// The surviving duplicate keeps the higher-priority pattern.
	if cs[0].Pattern != PatternFirstDotLast || cs[1].Pattern != PatternFirstLast {
		t.Fatalf("unexpected leading patterns %s, %s", cs[0].Pattern, cs[1].Pattern)
	}
}

func TestGenerateEmpty(t *testing.T) {
	g := NewGenerator(NewRules(nil, nil, nil))
	cases := []struct {
		name, first, last, domain string
	}{
		{"free mail", "John", "Smith", "gmail.com"},
		{"empty first", "", "Smith", "smithlaw.com"},
		{"unrenderable last", "John", "李", "smithlaw.com"},
		{"bad domain", "John", "Smith", "not a domain"},
	}
	for _, tc := range cases {
		if got := g.Generate(tc.first, tc.last, tc.domain); len(got) != 0 {
			t.Errorf("%s: got %v", tc.name, Addresses(got))
		}
	}
}
