// discovery/resolver.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// MXLookup resolves the raw MX set for a domain. An empty slice with a nil
// error means the domain publishes no exchanger.
type MXLookup interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

var defaultNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// DNSLookup queries nameservers directly with miekg/dns.
type DNSLookup struct {
	Servers []string
	Timeout time.Duration
}

// NewDNSLookup reads nameservers from /etc/resolv.conf, falling back to public resolvers.
func NewDNSLookup(timeout time.Duration) *DNSLookup {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	servers := defaultNameservers
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		servers = make([]string, 0, len(cfg.Servers))
		for _, s := range cfg.Servers {
			servers = append(servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return &DNSLookup{Servers: servers, Timeout: timeout}
}

func (l *DNSLookup) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	udp := &dns.Client{Timeout: l.Timeout}
	var lastErr error
	for _, server := range l.Servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, _, err := udp.ExchangeContext(ctx, msg, server)
		if err == nil && resp != nil && resp.Truncated {
			tcp := &dns.Client{Net: "tcp", Timeout: l.Timeout}
			resp, _, err = tcp.ExchangeContext(ctx, msg, server)
		}
		if err != nil {
			lastErr = fmt.Errorf("query %s: %w", server, err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("query %s: rcode %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		var records []*net.MX
		for _, rr := range resp.Answer {
			if mx, ok := rr.(*dns.MX); ok {
				records = append(records, &net.MX{Host: mx.Mx, Pref: mx.Preference})
			}
		}
		return records, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, lastErr
}

// MXResolver memoizes the best exchanger per domain in the run's StateCache.
type MXResolver struct {
	lookup  MXLookup
	states  *StateCache
	log     *logrus.Entry
	lookups atomic.Int64
}

func NewMXResolver(lookup MXLookup, states *StateCache, log *logrus.Entry) *MXResolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MXResolver{lookup: lookup, states: states, log: log}
}

// MXHost returns the lowest-preference exchanger. Both success and failure
// are memoized; a domain without MX is never queried again this run.
func (r *MXResolver) MXHost(ctx context.Context, domain string) (string, bool) {
	if s, ok := r.states.Get(domain); ok && s.MXResolved {
		return s.MXHost, s.MXHost != ""
	}

	r.lookups.Add(1)
	records, err := r.lookup.LookupMX(ctx, domain)
	if err != nil && ctx.Err() != nil {
		// The run is stopping; leave the domain unresolved.
		return "", false
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{"domain": domain, "error": err}).Warn("MX lookup failed")
	}

	host := bestMX(records)
	r.states.Update(domain, func(s *DomainState) {
		s.MXResolved = true
		s.MXHost = host
	})
	return host, host != ""
}

// Lookups counts DNS queries issued, for tests and run stats.
func (r *MXResolver) Lookups() int64 {
	return r.lookups.Load()
}

func bestMX(records []*net.MX) string {
	usable := make([]*net.MX, 0, len(records))
	for _, mx := range records {
		if mx == nil {
			continue
		}
		// A null MX ("." per RFC 7505) explicitly declares no mail service.
		if host := strings.TrimSuffix(mx.Host, "."); host != "" {
			usable = append(usable, mx)
		}
	}
	if len(usable) == 0 {
		return ""
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Pref < usable[j].Pref })
	return strings.ToLower(strings.TrimSuffix(usable[0].Host, "."))
}
