// discovery/types.go
package discovery

import (
	"errors"
	"strings"
)

// AddressSource records where a contact's chosen address came from.
type AddressSource string

const (
	SourceNone               AddressSource = "none"
	SourceGeneratedPattern   AddressSource = "generated_pattern"
	SourceSMTPVerified       AddressSource = "smtp_verified"
	SourceWebsiteCrawl       AddressSource = "website_crawl"
	SourcePatternLearned     AddressSource = "pattern_learned"
	SourceCatchAllUnverified AddressSource = "catch_all_unverified"
	// SourceProvided marks an upstream address that was kept but could not be verified.
	SourceProvided AddressSource = "provided"
)

// RecordOutcome summarizes what happened to a single record during a run.
type RecordOutcome string

const (
	OutcomeFound    RecordOutcome = "found"
	OutcomeNotFound RecordOutcome = "not_found"
	OutcomeSkipped  RecordOutcome = "skipped"
	OutcomeNoMX     RecordOutcome = "no_mx"
	OutcomeError    RecordOutcome = "error"
)

var (
	ErrNoMX     = errors.New("domain has no MX records")
	ErrSkipped  = errors.New("record is missing a name part or a usable domain")
	ErrFreeMail = errors.New("free-mail provider domains are not verified")
)

// ContactRecord is the unit of work. Upstream collaborators create it; the
// engine fills in the address fields in place.
type ContactRecord struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Domain    string `json:"domain"`
	Website   string `json:"website,omitempty"`

	// ProvidedAddress is an address obtained upstream (a directory listing,
	// a CRM export) rather than guessed by this engine.
	ProvidedAddress string `json:"provided_address,omitempty"`

	CandidateAddresses []string      `json:"candidate_addresses,omitempty"`
	ChosenAddress      string        `json:"chosen_address,omitempty"`
	AddressSource      AddressSource `json:"address_source"`
	Verified           bool          `json:"verified"`
	Outcome            RecordOutcome `json:"outcome,omitempty"`
	Note               string        `json:"note,omitempty"`
}

// Finished reports whether the engine reached a verdict for the record.
func (r *ContactRecord) Finished() bool {
	return r.Outcome != ""
}

func (r *ContactRecord) choose(address string, source AddressSource, verified bool) {
	r.ChosenAddress = strings.ToLower(address)
	r.AddressSource = source
	r.Verified = verified
	r.Outcome = OutcomeFound
}

func (r *ContactRecord) clear(outcome RecordOutcome, note string) {
	r.ChosenAddress = ""
	r.AddressSource = SourceNone
	r.Verified = false
	r.Outcome = outcome
	r.Note = note
}

// Outcome of a single mailbox probe.
type Outcome int

const (
	Inconclusive Outcome = iota
	Accepted
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "inconclusive"
	}
}

// VerificationResult is produced by the prober and consumed immediately by the caller.
type VerificationResult struct {
	Address      string     `json:"address"`
	Outcome      Outcome    `json:"outcome"`
	ResponseCode int        `json:"response_code"`
	Message      string     `json:"message"`
	State        ProbeState `json:"state"`
	RateLimited  bool       `json:"rate_limited"`
}

func splitAddress(address string) (local, domain string, ok bool) {
	i := strings.LastIndexByte(address, '@')
	if i <= 0 || i == len(address)-1 {
		return "", "", false
	}
	return address[:i], address[i+1:], true
}
