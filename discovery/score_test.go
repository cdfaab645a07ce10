package discovery

import "testing"

func TestScoreAddress(t *testing.T) {
	rules := NewRules(nil, nil, nil)
	cases := []struct {
		address string
		want    int
	}{
		{"john.smith@smithlaw.com", 115},
		{"john_smith@smithlaw.com", 115},
		{"jsmith@smithlaw.com", 85},
		{"jsmith@othermail.com", 70},
		{"smith.partners@smithlaw.com", 65},
		{"johnny@smithlaw.com", 35},
		{"info@smithlaw.com", ScoreDisqualified},
		{"info+intake@smithlaw.com", ScoreDisqualified},
		{"mary.jones@smithlaw.com", 0},
		{"john.smith@sentry.io", ScoreDisqualified},
		{"john.smith@cdn.wixpress.com", ScoreDisqualified},
		{"john.smith@logo.png", ScoreDisqualified},
		{"john smith@smithlaw.com", ScoreDisqualified},
	}
	for _, tc := range cases {
		if got := ScoreAddress(tc.address, "John", "Smith", "smithlaw.com", rules); got != tc.want {
			t.Errorf("ScoreAddress(%s) = %d, want %d", tc.address, got, tc.want)
		}
	}
}

func TestScoreShortFirstNameIgnored(t *testing.T) {
	rules := NewRules(nil, nil, nil)
	// "al" is under three letters, so containing it is no signal.
	if got := ScoreAddress("palace@firm.com", "Al", "Zed", "firm.com", rules); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestBestAddress(t *testing.T) {
	rules := NewRules(nil, nil, nil)
	emails := []string{
		"info@smithlaw.com",
		"mary.jones@smithlaw.com",
		"smithj@smithlaw.com",
		"jsmith@smithlaw.com",
	}
	got, score, ok := BestAddress(emails, "John", "Smith", "smithlaw.com", rules)
	if !ok {
		t.Fatal("no address chosen")
	}
	// Equal scores fall to pattern priority: flast beats lastf.
	if got != "jsmith@smithlaw.com" || score != 85 {
		t.Fatalf("got %s (%d)", got, score)
	}

	if _, _, ok := BestAddress([]string{"info@smithlaw.com", "mary.jones@smithlaw.com"}, "John", "Smith", "smithlaw.com", rules); ok {
		t.Fatal("chose an address with no name signal")
	}
}
