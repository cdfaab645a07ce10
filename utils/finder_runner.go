package utils

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"mailfinder/config"
	"mailfinder/discovery"
	"mailfinder/models"
	"mailfinder/store"
)

// FinderRunner owns the long-lived engine collaborators (prober, resolver,
// crawler cache) and starts one orchestrated run per batch. Each run gets a
// fresh state cache hydrated from Store.
type FinderRunner struct {
	DB       *gorm.DB
	Config   config.FinderConfig
	Rules    discovery.Rules
	Lookup   discovery.MXLookup
	Probe    discovery.Probe
	Crawler  discovery.SiteCrawler
	Store    discovery.StateStore
	Progress *ProgressHub
	Logger   *log.Logger

	// batches run one at a time so two runs never probe a domain concurrently
	batch sync.Mutex
}

func NewFinderRunner(db *gorm.DB, cfg config.FinderConfig, rules discovery.Rules, states discovery.StateStore, logger *log.Logger) *FinderRunner {
	if logger == nil {
		logger = log.Default()
	}
	r := &FinderRunner{
		DB:       db,
		Config:   cfg,
		Rules:    rules,
		Lookup:   discovery.NewDNSLookup(cfg.DNSTimeout),
		Probe:    discovery.NewProber(cfg.ProberConfig(), EngineLogger("prober")),
		Store:    states,
		Progress: NewProgressHub(),
		Logger:   logger,
	}
	if cfg.CrawlEnabled {
		r.Crawler = discovery.NewCrawler(cfg.CrawlerConfig(), rules, EngineLogger("crawler"))
	}
	return r
}

func (r *FinderRunner) newFinder() *discovery.Finder {
	return discovery.NewFinder(discovery.FinderConfig{
		Rules:          r.Rules,
		States:         discovery.NewStateCache(r.Store),
		Lookup:         r.Lookup,
		Probe:          r.Probe,
		Crawler:        r.Crawler,
		PoliteDelayMin: r.Config.PoliteMin,
		PoliteDelayMax: r.Config.PoliteMax,
		Log:            EngineLogger("finder"),
	})
}

// FindOne resolves a single record synchronously. The domain snapshot is
// saved when a database is configured; the record itself is not.
func (r *FinderRunner) FindOne(ctx context.Context, record *discovery.ContactRecord) (discovery.Stats, error) {
	finder := r.newFinder()
	var sink discovery.Sink
	if r.DB != nil {
		sink = store.NewGormSink(r.DB, finder.States())
	}
	o := discovery.NewOrchestrator(finder, sink, discovery.OrchestratorConfig{Workers: 1}, EngineLogger("orchestrator"))
	return o.Run(ctx, []*discovery.ContactRecord{record})
}

// RunContacts pushes a persisted batch through the engine, keeping the run
// row and progress subscribers current as domains finish.
func (r *FinderRunner) RunContacts(ctx context.Context, run *models.FinderRun, contacts []models.Contact) (discovery.Stats, error) {
	r.batch.Lock()
	defer r.batch.Unlock()

	records := make([]*discovery.ContactRecord, len(contacts))
	for i := range contacts {
		records[i] = contacts[i].ToRecord()
	}

	finder := r.newFinder()
	var sink discovery.Sink
	if r.DB != nil {
		sink = store.NewGormSink(r.DB, finder.States())
	}

	startedAt := time.Now()
	r.updateRun(run.ID, map[string]interface{}{
		"status":     models.RunProcessing,
		"started_at": startedAt,
		"total":      len(records),
	})
	r.Progress.Publish(RunProgress{RunID: run.ID, Status: models.RunProcessing, Total: len(records), Stats: discovery.NewStats()})

	var mu sync.Mutex
	lastProcessed := -1
	ocfg := r.Config.OrchestratorConfig()
	ocfg.OnDomainDone = func(domain string, totals discovery.Stats) {
		mu.Lock()
		defer mu.Unlock()
		// workers finish out of order; never write an older snapshot over a newer one
		if totals.Processed < lastProcessed {
			return
		}
		lastProcessed = totals.Processed
		progress := models.FinderRun{}
		progress.ApplyStats(totals)
		r.updateRun(run.ID, progress.StatsColumns())
		r.Progress.Publish(RunProgress{RunID: run.ID, Status: models.RunProcessing, Domain: domain, Total: len(records), Stats: totals})
	}

	runLog := EngineLogger("orchestrator").WithField("run_id", run.ID)
	stats, err := discovery.NewOrchestrator(finder, sink, ocfg, runLog).Run(ctx, records)

	final := models.FinderRun{}
	final.ApplyStats(stats)
	columns := final.StatsColumns()
	columns["status"] = models.RunCompleted
	columns["completed_at"] = time.Now()
	status := models.RunCompleted
	if err != nil {
		status = models.RunFailed
		columns["status"] = status
		columns["last_error"] = err.Error()
		LogError("finder_run_failed", err, map[string]interface{}{
			"run_id":    run.ID,
			"processed": stats.Processed,
		})
	}
	r.updateRun(run.ID, columns)
	r.Progress.Publish(RunProgress{RunID: run.ID, Status: status, Total: len(records), Stats: stats})

	LogEvent("finder_run_finished", map[string]interface{}{
		"run_id":   run.ID,
		"status":   status,
		"verified": stats.Verified,
		"duration": FormatDuration(time.Since(startedAt)),
	})
	return stats, err
}

func (r *FinderRunner) updateRun(runID uint, columns map[string]interface{}) {
	if r.DB == nil || runID == 0 {
		return
	}
	if err := r.DB.Model(&models.FinderRun{}).Where("id = ?", runID).Updates(columns).Error; err != nil {
		r.Logger.Printf("Failed to update run %d: %v", runID, err)
	}
}
