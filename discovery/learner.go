// discovery/learner.go
package discovery

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Learner infers a domain's naming convention from confirmed samples and
// renders it for other people at the same domain.
type Learner struct {
	states *StateCache
	log    *logrus.Entry
}

func NewLearner(states *StateCache, log *logrus.Entry) *Learner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Learner{states: states, log: log}
}

// Learn records the pattern of address for the domain. Generated guesses and
// catch-all results are never evidence. The first sample wins, except that a
// probe-confirmed sample replaces one learned from upstream data.
func (l *Learner) Learn(domain, address, first, last string, evidence Evidence) (Pattern, bool) {
	if evidence != EvidenceProbeConfirmed && evidence != EvidenceUpstream {
		return PatternNone, false
	}
	local, addrDomain, ok := splitAddress(strings.ToLower(address))
	if !ok || NormalizeDomain(addrDomain) != domain {
		return PatternNone, false
	}
	p, ok := DetectPattern(local, first, last)
	if !ok {
		return PatternNone, false
	}

	learned := false
	l.states.Update(domain, func(s *DomainState) {
		switch {
		case s.Pattern == PatternNone:
		case s.PatternEvidence == EvidenceUpstream && evidence == EvidenceProbeConfirmed:
		default:
			return
		}
		s.Pattern = p
		s.PatternEvidence = evidence
		learned = true
	})
	if learned {
		l.log.WithFields(logrus.Fields{
			"domain":   domain,
			"pattern":  p.String(),
			"evidence": evidenceName(evidence),
		}).Info("learned address pattern")
	}
	return p, learned
}

// Pattern returns the learned pattern, subject to the MX trust rule.
func (l *Learner) Pattern(domain string) Pattern {
	s, _ := l.states.Get(domain)
	return s.TrustedPattern()
}

// Propose renders the learned pattern for a new person. The result is a hint:
// callers still verify it unless the domain is catch-all.
func (l *Learner) Propose(domain, first, last string) (Candidate, bool) {
	p := l.Pattern(domain)
	if p == PatternNone {
		return Candidate{}, false
	}
	local := p.Apply(first, last)
	if local == "" {
		return Candidate{}, false
	}
	return Candidate{Pattern: p, LocalPart: local, Address: local + "@" + domain}, true
}

func evidenceName(e Evidence) string {
	switch e {
	case EvidenceUpstream:
		return "upstream"
	case EvidenceProbeConfirmed:
		return "probe_confirmed"
	case EvidenceGenerated:
		return "generated"
	case EvidenceCatchAll:
		return "catch_all"
	}
	return "none"
}
