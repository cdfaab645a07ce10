package models

import (
	"strings"

	"gorm.io/gorm"

	"mailfinder/discovery"
)

// Contact is a person whose business address the finder resolves.
type Contact struct {
	gorm.Model
	ClientID string `gorm:"index" json:"client_id"`
	RunID    *uint  `gorm:"index" json:"run_id"`

	FirstName       string `gorm:"not null" json:"first_name"`
	LastName        string `gorm:"not null" json:"last_name"`
	Domain          string `gorm:"index" json:"domain"`
	Website         string `json:"website"`
	ProvidedAddress string `json:"provided_address"`

	// Results
	CandidateAddresses string `gorm:"type:text" json:"candidate_addresses"` // comma separated
	ChosenAddress      string `gorm:"index" json:"chosen_address"`
	AddressSource      string `gorm:"default:'none'" json:"address_source"`
	Verified           bool   `gorm:"default:false" json:"verified"`
	Outcome            string `json:"outcome"`
	Note               string `json:"note"`

	Status string `gorm:"default:'pending';index" json:"status"` // pending, processing, done
}

// ToRecord copies the contact into the engine's unit of work.
func (c *Contact) ToRecord() *discovery.ContactRecord {
	r := &discovery.ContactRecord{
		ID:              c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Domain:          c.Domain,
		Website:         c.Website,
		ProvidedAddress: c.ProvidedAddress,
		ChosenAddress:   c.ChosenAddress,
		AddressSource:   discovery.AddressSource(c.AddressSource),
		Verified:        c.Verified,
	}
	if c.CandidateAddresses != "" {
		r.CandidateAddresses = strings.Split(c.CandidateAddresses, ",")
	}
	return r
}

// ApplyRecord copies the engine's results back and marks the contact done.
// A record the engine never reached leaves the contact untouched.
func (c *Contact) ApplyRecord(r *discovery.ContactRecord) {
	if !r.Finished() {
		return
	}
	c.CandidateAddresses = strings.Join(r.CandidateAddresses, ",")
	c.ChosenAddress = r.ChosenAddress
	c.AddressSource = string(r.AddressSource)
	c.Verified = r.Verified
	c.Outcome = string(r.Outcome)
	c.Note = r.Note
	c.Status = ContactDone
}

// ResultColumns are the columns ApplyRecord touches.
var ResultColumns = []string{
	"candidate_addresses", "chosen_address", "address_source",
	"verified", "outcome", "note", "status",
}
