// discovery/score.go
package discovery

import (
	"sort"
	"strings"
)

const (
	ScoreDisqualified = -1000

	scoreFullName     = 100
	scorePatternMatch = 70
	scoreLastName     = 50
	scoreFirstName    = 20
	scoreSameDomain   = 15
)

// ScoreAddress rates how likely address belongs to the named person. A score
// of zero means no name signal at all. Anything AcceptableAddress refuses,
// role mailboxes and ignored domains included, is disqualified.
func ScoreAddress(address, first, last, orgDomain string, rules Rules) int {
	address = strings.ToLower(strings.TrimSpace(address))
	local, domain, ok := splitAddress(address)
	if !ok || !AcceptableAddress(address, rules) {
		return ScoreDisqualified
	}

	f, l := NormalizeName(first), NormalizeName(last)
	letters := NormalizeName(local)

	var score int
	switch {
	case f != "" && l != "" && (local == f+"."+l || local == f+"_"+l):
		score = scoreFullName
	case firstMatchingPattern(local, first, last) != PatternNone:
		score = scorePatternMatch
	case l != "" && strings.Contains(letters, l):
		score = scoreLastName
	case len(f) >= 3 && strings.Contains(letters, f):
		score = scoreFirstName
	default:
		return 0
	}

	if orgDomain != "" && RegistrableDomain(domain) == RegistrableDomain(orgDomain) {
		score += scoreSameDomain
	}
	return score
}

// BestAddress picks the highest-scoring address with a name signal. Ties go
// to the higher-priority Pattern, then to lexical order.
func BestAddress(emails []string, first, last, orgDomain string, rules Rules) (string, int, bool) {
	type scored struct {
		address  string
		score    int
		priority int
	}

	var ranked []scored
	for _, e := range emails {
		s := ScoreAddress(e, first, last, orgDomain, rules)
		if s <= 0 {
			continue
		}
		local, _, _ := splitAddress(strings.ToLower(e))
		ranked = append(ranked, scored{
			address:  strings.ToLower(e),
			score:    s,
			priority: firstMatchingPattern(local, first, last).priority(),
		})
	}
	if len(ranked) == 0 {
		return "", 0, false
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.address < b.address
	})
	return ranked[0].address, ranked[0].score, true
}

// firstMatchingPattern returns the highest-priority template that renders
// local, even when several do.
func firstMatchingPattern(local, first, last string) Pattern {
	for _, p := range Patterns {
		if r := p.Apply(first, last); r != "" && r == local {
			return p
		}
	}
	return PatternNone
}
