// discovery/orchestrator.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Stats aggregates a run. Processed counts every record seen, skipped ones
// included; Rejected and Crawled count probes and crawl attempts.
type Stats struct {
	Processed int                   `json:"processed"`
	Verified  int                   `json:"verified"`
	Rejected  int                   `json:"rejected"`
	CatchAll  int                   `json:"catch_all"`
	NoMX      int                   `json:"no_mx"`
	Crawled   int                   `json:"crawled"`
	Skipped   int                   `json:"skipped"`
	Errors    int                   `json:"errors"`
	Domains   int                   `json:"domains"`
	BySource  map[AddressSource]int `json:"by_source"`
}

func NewStats() Stats {
	return Stats{BySource: make(map[AddressSource]int)}
}

// record folds a finished record into the outcome counters.
func (s *Stats) record(r *ContactRecord) {
	switch r.Outcome {
	case OutcomeSkipped:
		s.Skipped++
		return
	case OutcomeNoMX:
		s.NoMX++
	}
	if r.Verified {
		s.Verified++
	}
	if r.AddressSource != "" {
		s.BySource[r.AddressSource]++
	}
}

// Add merges o into s.
func (s *Stats) Add(o Stats) {
	s.Processed += o.Processed
	s.Verified += o.Verified
	s.Rejected += o.Rejected
	s.CatchAll += o.CatchAll
	s.NoMX += o.NoMX
	s.Crawled += o.Crawled
	s.Skipped += o.Skipped
	s.Errors += o.Errors
	s.Domains += o.Domains
	if s.BySource == nil {
		s.BySource = make(map[AddressSource]int, len(o.BySource))
	}
	for k, v := range o.BySource {
		s.BySource[k] += v
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Stats) Clone() Stats {
	c := s
	c.BySource = make(map[AddressSource]int, len(s.BySource))
	for k, v := range s.BySource {
		c.BySource[k] = v
	}
	return c
}

// Sink receives completed records in batches.
type Sink interface {
	Flush(ctx context.Context, records []*ContactRecord) error
}

type OrchestratorConfig struct {
	Workers    int
	FlushEvery int
	// OnDomainDone is called after each domain with a snapshot of the run totals.
	OnDomainDone func(domain string, totals Stats)
}

// Orchestrator spreads domains over a fixed worker pool. A domain is owned
// by exactly one worker, so every probe to one exchanger is sequential.
type Orchestrator struct {
	finder *Finder
	sink   Sink
	cfg    OrchestratorConfig
	log    *logrus.Entry

	mu      sync.Mutex
	totals  Stats
	pending []*ContactRecord
	flushed int
	errs    []error
}

func NewOrchestrator(finder *Finder, sink Sink, cfg OrchestratorConfig, log *logrus.Entry) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 10
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{finder: finder, sink: sink, cfg: cfg, log: log}
}

// DomainGroup is every record sharing one mail domain.
type DomainGroup struct {
	Domain  string
	Records []*ContactRecord
}

// GroupByDomain buckets records by mail domain in first-seen order. Records
// with no derivable domain are returned separately.
func GroupByDomain(records []*ContactRecord) (groups []DomainGroup, orphans []*ContactRecord) {
	index := make(map[string]int)
	for _, r := range records {
		d := RecordDomain(r)
		if d == "" {
			orphans = append(orphans, r)
			continue
		}
		i, ok := index[d]
		if !ok {
			i = len(groups)
			index[d] = i
			groups = append(groups, DomainGroup{Domain: d})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups, orphans
}

// Run processes every record and returns the run totals. Cancellation stops
// the workers at the next domain or record boundary; whatever finished is
// still flushed. Flush failures do not stop the run and are returned joined.
func (o *Orchestrator) Run(ctx context.Context, records []*ContactRecord) (Stats, error) {
	o.mu.Lock()
	o.totals = NewStats()
	o.pending = nil
	o.flushed = 0
	o.errs = nil
	o.mu.Unlock()

	groups, orphans := GroupByDomain(records)

	if len(orphans) > 0 {
		skipped := NewStats()
		for _, r := range orphans {
			skipped.Processed++
			r.CandidateAddresses = nil
			r.clear(OutcomeSkipped, ErrSkipped.Error())
			skipped.record(r)
		}
		o.mu.Lock()
		o.totals.Add(skipped)
		o.pending = append(o.pending, orphans...)
		o.mu.Unlock()
	}

	o.log.WithFields(logrus.Fields{
		"records": len(records),
		"domains": len(groups),
		"workers": o.cfg.Workers,
	}).Info("finder run started")

	queue := make(chan DomainGroup)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, grp := range groups {
			select {
			case queue <- grp:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error {
			for grp := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}
				stats, err := o.finder.ProcessDomain(gctx, grp.Domain, grp.Records)
				stats.Domains = 1
				o.complete(gctx, grp, stats)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	runErr := g.Wait()

	o.flush(context.WithoutCancel(ctx), true)

	o.mu.Lock()
	totals := o.totals.Clone()
	errs := append([]error(nil), o.errs...)
	o.mu.Unlock()

	if runErr != nil {
		errs = append([]error{fmt.Errorf("finder run interrupted: %w", runErr)}, errs...)
	}
	o.log.WithFields(logrus.Fields{
		"processed": totals.Processed,
		"verified":  totals.Verified,
		"no_mx":     totals.NoMX,
		"skipped":   totals.Skipped,
		"errors":    totals.Errors,
	}).Info("finder run finished")
	return totals, errors.Join(errs...)
}

func (o *Orchestrator) complete(ctx context.Context, grp DomainGroup, stats Stats) {
	o.mu.Lock()
	o.totals.Add(stats)
	// Records cut off by cancellation stay out of the sink so they can be retried.
	for _, r := range grp.Records {
		if r.Finished() {
			o.pending = append(o.pending, r)
		}
	}
	o.flushed++
	due := o.flushed%o.cfg.FlushEvery == 0
	snapshot := o.totals.Clone()
	o.mu.Unlock()

	if due {
		o.flush(context.WithoutCancel(ctx), false)
	}
	if o.cfg.OnDomainDone != nil {
		o.cfg.OnDomainDone(grp.Domain, snapshot)
	}
}

func (o *Orchestrator) flush(ctx context.Context, final bool) {
	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	if len(batch) == 0 || o.sink == nil {
		return
	}
	if err := o.sink.Flush(ctx, batch); err != nil {
		o.log.WithFields(logrus.Fields{
			"records": len(batch),
			"final":   final,
			"error":   err,
		}).Error("flushing results failed")
		o.mu.Lock()
		o.totals.Errors++
		o.errs = append(o.errs, fmt.Errorf("flush %d records: %w", len(batch), err))
		o.mu.Unlock()
	}
}
