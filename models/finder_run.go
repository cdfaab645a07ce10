package models

import (
	"time"

	"gorm.io/gorm"

	"mailfinder/discovery"
)

// FinderRun tracks one batch of contacts pushed through the finder.
type FinderRun struct {
	gorm.Model
	ClientID string `gorm:"index" json:"client_id"`

	Name        string     `json:"name"`
	Status      string     `gorm:"default:'pending'" json:"status"` // pending, processing, completed, failed
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	LastError   string     `json:"last_error,omitempty"`

	// Counters
	Total     int `gorm:"default:0" json:"total"`
	Processed int `gorm:"default:0" json:"processed"`
	Verified  int `gorm:"default:0" json:"verified"`
	Rejected  int `gorm:"default:0" json:"rejected"`
	CatchAll  int `gorm:"default:0" json:"catch_all"`
	NoMX      int `gorm:"default:0" json:"no_mx"`
	Crawled   int `gorm:"default:0" json:"crawled"`
	Skipped   int `gorm:"default:0" json:"skipped"`
	Errors    int `gorm:"default:0" json:"errors"`
	Domains   int `gorm:"default:0" json:"domains"`

	// Relations
	Contacts []Contact `gorm:"foreignKey:RunID" json:"contacts,omitempty"`
}

// ApplyStats copies the orchestrator totals onto the run.
func (r *FinderRun) ApplyStats(s discovery.Stats) {
	r.Processed = s.Processed
	r.Verified = s.Verified
	r.Rejected = s.Rejected
	r.CatchAll = s.CatchAll
	r.NoMX = s.NoMX
	r.Crawled = s.Crawled
	r.Skipped = s.Skipped
	r.Errors = s.Errors
	r.Domains = s.Domains
}

// StatsColumns returns the counter columns for an Updates call.
func (r *FinderRun) StatsColumns() map[string]interface{} {
	return map[string]interface{}{
		"processed": r.Processed,
		"verified":  r.Verified,
		"rejected":  r.Rejected,
		"catch_all": r.CatchAll,
		"no_mx":     r.NoMX,
		"crawled":   r.Crawled,
		"skipped":   r.Skipped,
		"errors":    r.Errors,
		"domains":   r.Domains,
	}
}
