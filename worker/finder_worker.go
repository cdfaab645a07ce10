package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailfinder/models"
	"mailfinder/utils"
)

// FinderWorker picks up contacts inserted with status pending (imports, other
// services writing to the table) and runs them in batches.
type FinderWorker struct {
	DB           *gorm.DB
	Runner       *utils.FinderRunner
	Logger       *log.Logger
	BatchSize    int
	PollInterval time.Duration
	StartDelay   time.Duration
}

func NewFinderWorker(db *gorm.DB, runner *utils.FinderRunner, batchSize int, pollInterval time.Duration, logger *log.Logger) *FinderWorker {
	if batchSize <= 0 {
		batchSize = 200
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &FinderWorker{
		DB:           db,
		Runner:       runner,
		Logger:       logger,
		BatchSize:    batchSize,
		PollInterval: pollInterval,
		StartDelay:   10 * time.Second,
	}
}

func (fw *FinderWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	select {
	case <-ctx.Done():
		return
	case <-time.After(fw.StartDelay):
	}

	if n, err := models.ResetStaleContacts(fw.DB); err != nil {
		fw.Logger.Printf("Error resetting stale contacts: %v", err)
	} else if n > 0 {
		fw.Logger.Printf("Returned %d interrupted contacts to the queue", n)
	}

	fw.Logger.Println("Finder worker started")

	ticker := time.NewTicker(fw.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fw.Logger.Println("Finder worker shutting down...")
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for {
				n, err := fw.processPending(ctx)
				if err != nil {
					fw.Logger.Printf("Error processing pending contacts: %v", err)
					break
				}
				if n < fw.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// processPending claims one batch and runs it. It returns the batch size.
func (fw *FinderWorker) processPending(ctx context.Context) (int, error) {
	run, contacts, err := fw.claimBatch()
	if err != nil || len(contacts) == 0 {
		return 0, err
	}

	fw.Logger.Printf("Processing %d pending contacts as run %d", len(contacts), run.ID)
	stats, err := fw.Runner.RunContacts(ctx, run, contacts)
	if err != nil {
		return len(contacts), fmt.Errorf("run %d: %w", run.ID, err)
	}
	fw.Logger.Printf("Run %d done: %d processed, %d verified, %d no MX", run.ID, stats.Processed, stats.Verified, stats.NoMX)
	return len(contacts), nil
}

// claimBatch moves up to BatchSize pending contacts into a new run. Row locks
// with SKIP LOCKED keep two instances from claiming the same contacts.
func (fw *FinderWorker) claimBatch() (*models.FinderRun, []models.Contact, error) {
	var run models.FinderRun
	var contacts []models.Contact

	err := fw.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.ContactPending).
			Order("id").
			Limit(fw.BatchSize).
			Find(&contacts).Error; err != nil {
			return fmt.Errorf("fetch pending contacts: %w", err)
		}
		if len(contacts) == 0 {
			return nil
		}

		run = models.FinderRun{
			Name:   "Worker batch " + time.Now().Format("2006-01-02 15:04"),
			Status: models.RunPending,
			Total:  len(contacts),
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("create run: %w", err)
		}

		ids := make([]uint, len(contacts))
		for i := range contacts {
			ids[i] = contacts[i].ID
			contacts[i].RunID = &run.ID
			contacts[i].Status = models.ContactProcessing
		}
		return tx.Model(&models.Contact{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"status": models.ContactProcessing,
			"run_id": run.ID,
		}).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &run, contacts, nil
}
