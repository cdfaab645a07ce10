// discovery/domains.go
package discovery

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain reduces a host to its eTLD+1 ("mail.smithlaw.co.uk" ->
// "smithlaw.co.uk"). Hosts the suffix list cannot handle come back normalized.
func RegistrableDomain(host string) string {
	h := NormalizeDomain(host)
	if h == "" {
		return ""
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(h); err == nil {
		return etld1
	}
	return h
}

// DomainFromWebsite extracts the registrable domain from a website value that
// may or may not carry a scheme.
func DomainFromWebsite(website string) string {
	host := websiteHost(website)
	if host == "" || !ValidDomain(host) {
		return ""
	}
	return RegistrableDomain(host)
}

// RecordDomain is the mail domain a record is grouped under: the explicit
// domain when usable, otherwise the website's registrable domain.
func RecordDomain(r *ContactRecord) string {
	if d := NormalizeDomain(r.Domain); d != "" {
		if strings.Contains(d, "@") {
			_, d, _ = splitAddress(d)
		}
		if ValidDomain(d) {
			return NormalizeDomain(d)
		}
	}
	if r.Website != "" {
		return DomainFromWebsite(r.Website)
	}
	return ""
}

var errNoHost = errors.New("website has no host")

func websiteHost(website string) string {
	u, err := parseWebsite(website)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

func parseWebsite(website string) (*url.URL, error) {
	w := strings.TrimSpace(website)
	if w == "" {
		return nil, errNoHost
	}
	if !strings.Contains(w, "://") {
		w = "https://" + w
	}
	u, err := url.Parse(w)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errNoHost
	}
	return u, nil
}
