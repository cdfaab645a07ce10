package worker

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailfinder/models"
)

func TestStartStopsDuringDelay(t *testing.T) {
	fw := NewFinderWorker(nil, nil, 0, 0, log.New(io.Discard, "", 0))
	if fw.BatchSize != 200 || fw.PollInterval != time.Minute {
		t.Fatalf("defaults = %d %s", fw.BatchSize, fw.PollInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		fw.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on a cancelled context")
	}
}

// Runs against a scratch database when POSTGRES_TEST_DSN is set.
func TestClaimBatchLive(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.FinderRun{}, &models.Contact{}, &models.DomainRecord{}); err != nil {
		t.Fatal(err)
	}
	db.Exec("DELETE FROM contacts")

	for _, name := range []string{"Ann", "Bo", "Cy"} {
		db.Create(&models.Contact{FirstName: name, LastName: "Lee", Domain: "acme.com", Status: models.ContactPending})
	}

	fw := NewFinderWorker(db, nil, 2, time.Minute, log.New(io.Discard, "", 0))
	run, contacts, err := fw.claimBatch()
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 || run.Total != 2 {
		t.Fatalf("claimed %d contacts, run total %d", len(contacts), run.Total)
	}

	var pending int64
	db.Model(&models.Contact{}).Where("status = ?", models.ContactPending).Count(&pending)
	if pending != 1 {
		t.Fatalf("%d contacts still pending", pending)
	}

	n, err := models.ResetStaleContacts(db)
	if err != nil || n != 2 {
		t.Fatalf("reset %d: %v", n, err)
	}
}
