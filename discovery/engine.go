// discovery/engine.go
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SiteCrawler is the website fallback. *Crawler satisfies it.
type SiteCrawler interface {
	Crawl(ctx context.Context, website string) (CrawlResult, error)
}

// FinderConfig wires the engine's collaborators. Lookup, Probe and States are
// required; Crawler may be nil to disable the website fallback.
type FinderConfig struct {
	Rules   Rules
	States  *StateCache
	Lookup  MXLookup
	Probe   Probe
	Crawler SiteCrawler

	// Delay between consecutive probes at the same domain.
	PoliteDelayMin time.Duration
	PoliteDelayMax time.Duration

	Log *logrus.Entry
}

// Finder runs the per-domain verification waterfall.
type Finder struct {
	rules     Rules
	states    *StateCache
	generator *Generator
	resolver  *MXResolver
	probe     Probe
	catchAll  *CatchAllDetector
	learner   *Learner
	crawler   SiteCrawler
	politeMin time.Duration
	politeMax time.Duration
	log       *logrus.Entry
}

func NewFinder(cfg FinderConfig) *Finder {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Rules.RoleAddresses == nil {
		cfg.Rules = NewRules(nil, nil, nil)
	}
	states := cfg.States
	if states == nil {
		states = NewStateCache(nil)
	}
	if cfg.PoliteDelayMax < cfg.PoliteDelayMin {
		cfg.PoliteDelayMax = cfg.PoliteDelayMin
	}
	return &Finder{
		rules:     cfg.Rules,
		states:    states,
		generator: NewGenerator(cfg.Rules),
		resolver:  NewMXResolver(cfg.Lookup, states, log),
		probe:     cfg.Probe,
		catchAll:  NewCatchAllDetector(cfg.Probe, states, log),
		learner:   NewLearner(states, log),
		crawler:   cfg.Crawler,
		politeMin: cfg.PoliteDelayMin,
		politeMax: cfg.PoliteDelayMax,
		log:       log,
	}
}

// States exposes the run's shared domain state.
func (f *Finder) States() *StateCache {
	return f.states
}

// domainRun carries what is known about one domain while its records are processed.
type domainRun struct {
	domain   string
	mx       string
	catchAll CatchAllStatus
	probes   int
	// rejected holds every address the exchanger refused during this run.
	rejected map[string]bool
	stats    *Stats
	log      *logrus.Entry
}

// recordProgress tracks the probes spent on one record.
type recordProgress struct {
	rejected     map[string]bool
	inconclusive bool
}

// ProcessDomain runs every record at domain through the waterfall, strictly
// in order. Records are modified in place. The only error returned is the
// context's; everything else is folded into the returned Stats.
func (f *Finder) ProcessDomain(ctx context.Context, domain string, records []*ContactRecord) (stats Stats, err error) {
	stats = NewStats()
	domain = NormalizeDomain(domain)
	run := &domainRun{
		domain:   domain,
		rejected: make(map[string]bool),
		stats:    &stats,
		log:      f.log.WithField("domain", domain),
	}

	eligible := make([]*ContactRecord, 0, len(records))
	for _, r := range records {
		stats.Processed++
		if NormalizeName(r.FirstName) == "" || NormalizeName(r.LastName) == "" || !ValidDomain(domain) {
			r.CandidateAddresses = nil
			r.clear(OutcomeSkipped, ErrSkipped.Error())
			continue
		}
		r.CandidateAddresses = nil
		r.Note = ""
		r.Outcome = ""
		eligible = append(eligible, r)
	}
	defer func() {
		for _, r := range records {
			stats.record(r)
		}
	}()
	if len(eligible) == 0 {
		return stats, nil
	}

	if f.rules.IsFreeMail(domain) {
		for _, r := range eligible {
			f.keepProvidedOr(run, r, OutcomeNotFound, ErrFreeMail.Error())
		}
		return stats, nil
	}

	if err := f.states.Hydrate(ctx, domain); err != nil {
		stats.Errors++
		run.log.WithError(err).Warn("loading stored domain state failed")
	}

	mx, ok := f.resolver.MXHost(ctx, domain)
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if !ok {
		for _, r := range eligible {
			r.clear(OutcomeNoMX, ErrNoMX.Error())
		}
		f.persist(ctx, run)
		run.log.WithField("records", len(eligible)).Info("no MX, domain skipped")
		return stats, nil
	}
	run.mx = mx
	run.log = run.log.WithField("mx", mx)

	catchAll, probed := f.catchAll.Check(ctx, domain, mx)
	run.catchAll = catchAll
	if probed {
		run.probes++
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if run.catchAll == CatchAllYes {
		stats.CatchAll++
	}

	remaining, err := f.evidencePass(ctx, run, eligible)
	if err != nil {
		return stats, err
	}

	for _, r := range remaining {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		f.discoverSafely(ctx, run, r)
	}

	f.persist(ctx, run)
	run.log.WithFields(logrus.Fields{
		"records":   len(records),
		"catch_all": run.catchAll.String(),
		"pattern":   f.learner.Pattern(domain).String(),
		"probes":    run.probes,
	}).Info("domain processed")
	return stats, ctx.Err()
}

// evidencePass verifies upstream-provided addresses and learns from them
// before any guessing happens. It returns the records still needing discovery.
func (f *Finder) evidencePass(ctx context.Context, run *domainRun, records []*ContactRecord) ([]*ContactRecord, error) {
	remaining := make([]*ContactRecord, 0, len(records))
	var upstream []*ContactRecord

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		provided := strings.ToLower(strings.TrimSpace(r.ProvidedAddress))
		_, pDomain, ok := splitAddress(provided)
		if !ok || NormalizeDomain(pDomain) != run.domain {
			remaining = append(remaining, r)
			continue
		}
		if run.catchAll == CatchAllYes {
			r.choose(provided, SourceProvided, false)
			upstream = append(upstream, r)
			continue
		}

		res := f.verify(ctx, run, provided)
		switch res.Outcome {
		case Accepted:
			r.choose(provided, SourceSMTPVerified, true)
			f.learner.Learn(run.domain, provided, r.FirstName, r.LastName, EvidenceProbeConfirmed)
		case Rejected:
			r.Note = "provided address rejected"
			remaining = append(remaining, r)
		default:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.choose(provided, SourceProvided, false)
			upstream = append(upstream, r)
		}
	}

	if f.learner.Pattern(run.domain) == PatternNone {
		for _, r := range upstream {
			if _, ok := f.learner.Learn(run.domain, r.ChosenAddress, r.FirstName, r.LastName, EvidenceUpstream); ok {
				break
			}
		}
	}
	return remaining, nil
}

func (f *Finder) discoverSafely(ctx context.Context, run *domainRun, r *ContactRecord) {
	defer func() {
		if p := recover(); p != nil {
			run.stats.Errors++
			r.clear(OutcomeError, fmt.Sprint(p))
			run.log.WithFields(logrus.Fields{"record": r.ID, "panic": p}).Error("record failed")
		}
	}()
	f.discover(ctx, run, r)
}

func (f *Finder) discover(ctx context.Context, run *domainRun, r *ContactRecord) {
	candidates := f.generator.Generate(r.FirstName, r.LastName, run.domain)
	r.CandidateAddresses = Addresses(candidates)
	log := run.log.WithField("record", r.ID)

	if run.catchAll == CatchAllYes {
		if addr, ok := f.crawlFor(ctx, run, r); ok {
			r.choose(addr, SourceWebsiteCrawl, false)
			return
		}
		if guess := f.bestGuess(run.domain, r, candidates); guess != "" {
			r.choose(guess, SourceCatchAllUnverified, false)
			return
		}
		f.keepProvidedOr(run, r, OutcomeNotFound, "no candidates")
		return
	}

	progress := &recordProgress{rejected: make(map[string]bool)}

	if proposal, ok := f.learner.Propose(run.domain, r.FirstName, r.LastName); ok {
		res := f.verify(ctx, run, proposal.Address)
		if f.track(progress, proposal.Address, res) {
			r.choose(proposal.Address, SourcePatternLearned, true)
			return
		}
	}

	for _, c := range candidates {
		if progress.rejected[c.Address] {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		res := f.verify(ctx, run, c.Address)
		if f.track(progress, c.Address, res) {
			r.choose(c.Address, SourceSMTPVerified, true)
			f.learner.Learn(run.domain, c.Address, r.FirstName, r.LastName, EvidenceProbeConfirmed)
			log.WithField("pattern", c.Pattern.String()).Debug("candidate accepted")
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	if addr, ok := f.crawlFor(ctx, run, r); ok {
		if f.acceptCrawlHit(ctx, run, r, progress, addr) {
			return
		}
	}

	if progress.inconclusive {
		if guess := f.bestGuess(run.domain, r, candidates); guess != "" && !progress.rejected[guess] {
			r.choose(guess, SourceGeneratedPattern, false)
			return
		}
	}
	f.keepProvidedOr(run, r, OutcomeNotFound, "all candidates rejected")
}

// acceptCrawlHit probes a crawled address when it lives on this domain. An
// off-domain address cannot be checked against this exchanger and is kept
// unverified.
func (f *Finder) acceptCrawlHit(ctx context.Context, run *domainRun, r *ContactRecord, progress *recordProgress, addr string) bool {
	_, addrDomain, _ := splitAddress(addr)
	if NormalizeDomain(addrDomain) != run.domain {
		r.choose(addr, SourceWebsiteCrawl, false)
		return true
	}
	if progress.rejected[addr] {
		return false
	}
	res := f.verify(ctx, run, addr)
	switch {
	case f.track(progress, addr, res):
		r.choose(addr, SourceWebsiteCrawl, true)
		f.learner.Learn(run.domain, addr, r.FirstName, r.LastName, EvidenceProbeConfirmed)
		return true
	case res.Outcome == Rejected:
		return false
	default:
		r.choose(addr, SourceWebsiteCrawl, false)
		return true
	}
}

// track records a probe result and reports acceptance.
func (f *Finder) track(p *recordProgress, address string, res VerificationResult) bool {
	switch res.Outcome {
	case Accepted:
		return true
	case Rejected:
		p.rejected[strings.ToLower(address)] = true
	default:
		p.inconclusive = true
	}
	return false
}

func (f *Finder) verify(ctx context.Context, run *domainRun, address string) VerificationResult {
	if run.probes > 0 {
		_ = sleepCtx(ctx, jitter(f.politeMin, f.politeMax))
	}
	run.probes++
	res := f.probe.Verify(ctx, run.mx, address)
	if res.Outcome == Rejected {
		run.stats.Rejected++
		run.rejected[strings.ToLower(address)] = true
	}
	run.log.WithFields(logrus.Fields{
		"address": address,
		"outcome": res.Outcome.String(),
		"code":    res.ResponseCode,
	}).Debug("probe")
	return res
}

func (f *Finder) crawlFor(ctx context.Context, run *domainRun, r *ContactRecord) (string, bool) {
	if f.crawler == nil || strings.TrimSpace(r.Website) == "" || ctx.Err() != nil {
		return "", false
	}
	run.stats.Crawled++
	result, err := f.crawler.Crawl(ctx, r.Website)
	if err != nil {
		run.log.WithFields(logrus.Fields{"record": r.ID, "website": r.Website, "error": err}).Warn("crawl failed")
		return "", false
	}
	addr, _, ok := BestAddress(result.Emails, r.FirstName, r.LastName, run.domain, f.rules)
	return addr, ok
}

// bestGuess is the learned pattern rendered for the person, else the
// top-priority candidate.
func (f *Finder) bestGuess(domain string, r *ContactRecord, candidates []Candidate) string {
	if proposal, ok := f.learner.Propose(domain, r.FirstName, r.LastName); ok {
		return proposal.Address
	}
	if len(candidates) > 0 {
		return candidates[0].Address
	}
	return ""
}

// keepProvidedOr falls back to an unverified upstream address the exchanger
// has not refused, else clears the record.
func (f *Finder) keepProvidedOr(run *domainRun, r *ContactRecord, outcome RecordOutcome, note string) {
	provided := strings.ToLower(strings.TrimSpace(r.ProvidedAddress))
	if _, _, ok := splitAddress(provided); ok && !run.rejected[provided] && AcceptableAddress(provided, f.rules) {
		r.choose(provided, SourceProvided, false)
		return
	}
	r.clear(outcome, note)
}

func (f *Finder) persist(ctx context.Context, run *domainRun) {
	if err := f.states.Persist(context.WithoutCancel(ctx), run.domain); err != nil {
		run.stats.Errors++
		run.log.WithError(err).Warn("saving domain state failed")
	}
}
