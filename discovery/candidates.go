// discovery/candidates.go
package discovery

import (
	"github.com/badoux/checkmail"
)

// Candidate is one rendered guess for a person at a domain.
type Candidate struct {
	Pattern   Pattern `json:"pattern"`
	LocalPart string  `json:"local_part"`
	Address   string  `json:"address"`
}

// Generator renders the fixed-order candidate list. It does no I/O.
type Generator struct {
	Rules Rules
}

func NewGenerator(rules Rules) *Generator {
	return &Generator{Rules: rules}
}

// Generate returns candidates in Pattern priority order. The result is empty
// when a name part normalizes to nothing, the domain is malformed, or the
// domain belongs to a free-mail provider.
func (g *Generator) Generate(first, last, domain string) []Candidate {
	domain = NormalizeDomain(domain)
	if NormalizeName(first) == "" || NormalizeName(last) == "" {
		return nil
	}
	if !ValidDomain(domain) || g.Rules.IsFreeMail(domain) {
		return nil
	}

	seen := make(map[string]struct{}, len(Patterns))
	candidates := make([]Candidate, 0, len(Patterns))
	for _, p := range Patterns {
		local := p.Apply(first, last)
		if local == "" {
			continue
		}
		// Short names can make two templates render the same string; keep the higher-priority one.
		if _, dup := seen[local]; dup {
			continue
		}
		address := local + "@" + domain
		if err := checkmail.ValidateFormat(address); err != nil {
			continue
		}
		seen[local] = struct{}{}
		candidates = append(candidates, Candidate{Pattern: p, LocalPart: local, Address: address})
	}
	return candidates
}

// Addresses flattens candidates to their address strings.
func Addresses(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Address
	}
	return out
}
