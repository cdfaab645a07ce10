package models

import (
	"testing"

	"mailfinder/discovery"
)

func TestApplyRecordMarksDone(t *testing.T) {
	c := Contact{Status: ContactProcessing}
	c.ApplyRecord(&discovery.ContactRecord{
		CandidateAddresses: []string{"jsmith@acme.com", "john.smith@acme.com"},
		ChosenAddress:      "jsmith@acme.com",
		AddressSource:      discovery.SourceSMTPVerified,
		Verified:           true,
		Outcome:            discovery.OutcomeFound,
	})
	if c.Status != ContactDone || c.ChosenAddress != "jsmith@acme.com" || !c.Verified {
		t.Fatalf("contact = %+v", c)
	}
	if c.CandidateAddresses != "jsmith@acme.com,john.smith@acme.com" {
		t.Fatalf("candidates = %q", c.CandidateAddresses)
	}
}

func TestApplyRecordLeavesUnfinishedContact(t *testing.T) {
	c := Contact{Status: ContactProcessing}
	c.ApplyRecord(&discovery.ContactRecord{FirstName: "Mary", LastName: "Jones", Domain: "acme.com"})
	if c.Status != ContactProcessing || c.Outcome != "" {
		t.Fatalf("unfinished record changed the contact: %+v", c)
	}
}
