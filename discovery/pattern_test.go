package discovery

import "testing"

func TestPatternApply(t *testing.T) {
	want := map[Pattern]string{
		PatternFirstDotLast:        "john.smith",
		PatternFirstLast:           "johnsmith",
		PatternFLast:               "jsmith",
		PatternFDotLast:            "j.smith",
		PatternFirst:               "john",
		PatternLast:                "smith",
		PatternFirstUnderscoreLast: "john_smith",
		PatternLastDotFirst:        "smith.john",
		PatternLastF:               "smithj",
		PatternFirstDotL:           "john.s",
		PatternFirstL:              "johns",
	}
	for _, p := range Patterns {
		if got := p.Apply("John", "Smith"); got != want[p] {
			t.Errorf("%s.Apply = %q, want %q", p, got, want[p])
		}
	}
	if got := PatternFirstDotLast.Apply("  ", "Smith"); got != "" {
		t.Fatalf("empty first name rendered %q", got)
	}
	if got := PatternNone.Apply("John", "Smith"); got != "" {
		t.Fatalf("PatternNone rendered %q", got)
	}
}

func TestPatternApplyIsDeterministic(t *testing.T) {
	for _, p := range Patterns {
		a := p.Apply("María-José", "O'Brien")
		b := p.Apply("María-José", "O'Brien")
		if a != b {
			t.Fatalf("%s not deterministic: %q vs %q", p, a, b)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"José-María": "josemaria",
		"O'Brien":    "obrien",
		"  Zoë ":     "zoe",
		"Müller":     "muller",
		"李":          "",
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectPattern(t *testing.T) {
	p, ok := DetectPattern("John.Smith", "John", "Smith")
	if !ok || p != PatternFirstDotLast {
		t.Fatalf("got %s, %v; want first.last", p, ok)
	}

	p, ok = DetectPattern("smithj", "John", "Smith")
	if !ok || p != PatternLastF {
		t.Fatalf("got %s, %v; want lastf", p, ok)
	}

	// A one-letter first name makes first.last and f.last render the same.
	if p, ok := DetectPattern("j.smith", "J", "Smith"); ok {
		t.Fatalf("ambiguous local-part detected as %s", p)
	}

	if _, ok := DetectPattern("jsmith99", "John", "Smith"); ok {
		t.Fatal("unrelated local-part matched")
	}
}

func TestParsePatternRoundTrip(t *testing.T) {
	for _, p := range Patterns {
		got, ok := ParsePattern(p.String())
		if !ok || got != p {
			t.Fatalf("ParsePattern(%q) = %s, %v", p.String(), got, ok)
		}
	}
	if _, ok := ParsePattern("none"); ok {
		t.Fatal("none parsed as a pattern")
	}
}

func TestDetectPatternInvertsApply(t *testing.T) {
	names := [][2]string{
		{"John", "Smith"},
		{"María", "García"},
		{"Xi", "Wu"},
		{"Anne-Marie", "O'Neil"},
	}
	for _, n := range names {
		for _, p := range Patterns {
			local := p.Apply(n[0], n[1])
			got, ok := DetectPattern(local, n[0], n[1])
			if !ok || got != p {
				t.Errorf("%s %s: DetectPattern(%q) = %s, %v; want %s", n[0], n[1], local, got, ok, p)
			}
		}
	}
}

func TestDetectPatternRefusesCollidingRenders(t *testing.T) {
	// One-letter and repeated names make several templates render alike.
	names := [][2]string{{"J", "Smith"}, {"Anna", "Anna"}, {"Li", "L"}}
	for _, n := range names {
		renders := map[string]int{}
		for _, p := range Patterns {
			renders[p.Apply(n[0], n[1])]++
		}
		for _, p := range Patterns {
			local := p.Apply(n[0], n[1])
			got, ok := DetectPattern(local, n[0], n[1])
			if renders[local] > 1 && ok {
				t.Errorf("%s %s: %q is shared by several templates but detected as %s", n[0], n[1], local, got)
			}
			if renders[local] == 1 && (!ok || got != p) {
				t.Errorf("%s %s: DetectPattern(%q) = %s, %v; want %s", n[0], n[1], local, got, ok, p)
			}
		}
	}
}
