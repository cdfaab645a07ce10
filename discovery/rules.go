// discovery/rules.go
package discovery

import (
	"regexp"
	"strings"
)

var (
	// Major free email providers. Addresses on these are never generated or probed.
	DefaultFreeMailProviders = []string{
		"gmail.com", "googlemail.com", "yahoo.com", "ymail.com", "outlook.com",
		"hotmail.com", "live.com", "msn.com", "aol.com", "protonmail.com",
		"proton.me", "icloud.com", "me.com", "mac.com", "mail.com", "yandex.com",
		"zoho.com", "gmx.com", "gmx.net", "comcast.net", "att.net", "verizon.net",
	}

	DefaultRoleAddresses = []string{
		"info", "admin", "administrator", "support", "contact", "contactus",
		"office", "hello", "sales", "marketing", "help", "billing", "accounts",
		"accounting", "noreply", "no-reply", "donotreply", "webmaster",
		"postmaster", "hostmaster", "abuse", "hr", "jobs", "careers", "press",
		"media", "team", "mail", "email", "enquiries", "inquiries", "enquiry",
		"inquiry", "reception", "frontdesk", "privacy", "legal", "intake",
		"service", "newsletter", "feedback", "general", "staff",
	}

	// Infrastructure, analytics, site-builder and placeholder domains that
	// show up in markup but never belong to a person at the organization.
	DefaultIgnoreDomains = []string{
		"example.com", "example.org", "example.net", "domain.com", "yourdomain.com",
		"email.com", "company.com", "sentry.io", "sentry-next.wixpress.com",
		"wixpress.com", "wix.com", "squarespace.com", "wordpress.com",
		"wordpress.org", "godaddy.com", "google-analytics.com",
		"googletagmanager.com", "googleapis.com", "gstatic.com", "cloudflare.com",
		"cloudfront.net", "jsdelivr.net", "unpkg.com", "w3.org", "schema.org",
		"hubspot.com", "mailchimp.com", "sendgrid.net", "amazonaws.com",
		"facebook.com", "twitter.com", "linkedin.com", "instagram.com",
		"weebly.com", "shopify.com", "sentry.wixpress.com", "lawyers.com",
		"martindale.com", "findlaw.com", "justia.com", "avvo.com",
	}

	domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
)

// Rules holds the configurable filter sets. Build with NewRules.
type Rules struct {
	FreeMail      map[string]struct{}
	RoleAddresses map[string]struct{}
	IgnoreDomains map[string]struct{}
}

// NewRules builds lookup sets, falling back to the defaults for empty lists.
func NewRules(freeMail, roles, ignore []string) Rules {
	if len(freeMail) == 0 {
		freeMail = DefaultFreeMailProviders
	}
	if len(roles) == 0 {
		roles = DefaultRoleAddresses
	}
	if len(ignore) == 0 {
		ignore = DefaultIgnoreDomains
	}
	return Rules{
		FreeMail:      toSet(freeMail),
		RoleAddresses: toSet(roles),
		IgnoreDomains: toSet(ignore),
	}
}

// IsFreeMail reports whether the domain is a shared consumer provider.
func (r Rules) IsFreeMail(domain string) bool {
	_, ok := r.FreeMail[NormalizeDomain(domain)]
	return ok
}

// IsRole reports whether the local-part is a non-personal mailbox.
func (r Rules) IsRole(localPart string) bool {
	local := strings.ToLower(localPart)
	if i := strings.IndexByte(local, '+'); i > 0 {
		local = local[:i]
	}
	_, ok := r.RoleAddresses[local]
	return ok
}

// IsIgnoredDomain matches the domain and any of its subdomains.
func (r Rules) IsIgnoredDomain(domain string) bool {
	d := NormalizeDomain(domain)
	for d != "" {
		if _, ok := r.IgnoreDomains[d]; ok {
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			return false
		}
		d = d[i+1:]
	}
	return false
}

// NormalizeDomain lowercases and strips "www.", surrounding whitespace and a trailing dot.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")
	return d
}

// ValidDomain is a syntactic check only; it does not touch DNS.
func ValidDomain(domain string) bool {
	d := NormalizeDomain(domain)
	return len(d) <= 253 && domainRegex.MatchString(d)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}
