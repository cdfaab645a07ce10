package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailfinder/discovery"
	"mailfinder/models"
)

// GormSink writes finished contacts back to postgres, one transaction per
// flush. When States is set the batch's domain snapshots are upserted too.
type GormSink struct {
	DB     *gorm.DB
	States *discovery.StateCache
}

func NewGormSink(db *gorm.DB, states *discovery.StateCache) *GormSink {
	return &GormSink{DB: db, States: states}
}

func (s *GormSink) Flush(ctx context.Context, records []*discovery.ContactRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			if r.ID == 0 || !r.Finished() {
				continue
			}
			var contact models.Contact
			contact.ApplyRecord(r)
			if err := tx.Model(&models.Contact{}).
				Where("id = ?", r.ID).
				Select(models.ResultColumns).
				Updates(&contact).Error; err != nil {
				return fmt.Errorf("update contact %d: %w", r.ID, err)
			}
		}

		domains := DomainRecords(s.States, records)
		if len(domains) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			DoUpdates: clause.AssignmentColumns([]string{"mx_host", "mx_resolved", "catch_all", "pattern", "last_checked_at", "updated_at"}),
		}).CreateInBatches(domains, 100).Error
	})
}

// DomainRecords returns one snapshot per distinct domain in records that the
// state cache knows about.
func DomainRecords(states *discovery.StateCache, records []*discovery.ContactRecord) []models.DomainRecord {
	if states == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []models.DomainRecord
	for _, r := range records {
		domain := discovery.RecordDomain(r)
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		if st, ok := states.Get(domain); ok && st.MXResolved {
			out = append(out, models.NewDomainRecord(st))
		}
	}
	return out
}

// SaveContacts inserts new contacts in batches, attaching them to a run.
func SaveContacts(db *gorm.DB, runID *uint, clientID string, contacts []models.Contact) error {
	for i := range contacts {
		contacts[i].RunID = runID
		contacts[i].ClientID = clientID
		contacts[i].Domain = strings.TrimSpace(contacts[i].Domain)
		if contacts[i].Status == "" {
			contacts[i].Status = models.ContactPending
		}
	}
	return db.CreateInBatches(contacts, 100).Error
}
