package models

import (
	"time"

	"mailfinder/discovery"
)

// DomainRecord is the last known verification state of a domain.
type DomainRecord struct {
	Domain        string    `gorm:"primaryKey" json:"domain"`
	MXHost        string    `json:"mx_host"`
	MXResolved    bool      `json:"mx_resolved"`
	CatchAll      string    `json:"catch_all"`
	Pattern       string    `json:"pattern"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewDomainRecord(s discovery.DomainState) DomainRecord {
	return DomainRecord{
		Domain:        s.Domain,
		MXHost:        s.MXHost,
		MXResolved:    s.MXResolved,
		CatchAll:      s.TrustedCatchAll().String(),
		Pattern:       s.TrustedPattern().String(),
		LastCheckedAt: s.LastCheckedAt,
	}
}
