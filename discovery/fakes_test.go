package discovery

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeLookup struct {
	mu      sync.Mutex
	records map[string][]*net.MX
	calls   map[string]int
}

func newFakeLookup(mx map[string]string) *fakeLookup {
	l := &fakeLookup{records: map[string][]*net.MX{}, calls: map[string]int{}}
	for domain, host := range mx {
		l.records[domain] = []*net.MX{{Host: host + ".", Pref: 10}}
	}
	return l
}

func (l *fakeLookup) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[domain]++
	return l.records[domain], nil
}

func (l *fakeLookup) count(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[domain]
}

// fakeProbe answers from a verdict function and records every call.
type fakeProbe struct {
	mu      sync.Mutex
	verdict func(address string) Outcome
	calls   []string
}

// acceptOnly accepts the listed addresses and rejects everything else.
func acceptOnly(addresses ...string) *fakeProbe {
	set := map[string]bool{}
	for _, a := range addresses {
		set[a] = true
	}
	return &fakeProbe{verdict: func(address string) Outcome {
		if set[address] {
			return Accepted
		}
		return Rejected
	}}
}

func acceptAll() *fakeProbe {
	return &fakeProbe{verdict: func(string) Outcome { return Accepted }}
}

func inconclusiveAll() *fakeProbe {
	return &fakeProbe{verdict: func(string) Outcome { return Inconclusive }}
}

func (p *fakeProbe) Verify(ctx context.Context, mxHost, address string) VerificationResult {
	p.mu.Lock()
	p.calls = append(p.calls, address)
	p.mu.Unlock()
	o := p.verdict(address)
	res := VerificationResult{Address: address, Outcome: o, State: StateTerminal}
	switch o {
	case Accepted:
		res.ResponseCode = 250
	case Rejected:
		res.ResponseCode = 550
	}
	return res
}

func (p *fakeProbe) callsTo(domain string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if strings.HasSuffix(c, "@"+domain) {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProbe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeCrawler struct {
	mu    sync.Mutex
	sites map[string][]string
	calls int
}

func (c *fakeCrawler) Crawl(ctx context.Context, website string) (CrawlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	emails, ok := c.sites[website]
	if !ok {
		return CrawlResult{}, ErrFetch
	}
	return CrawlResult{Domain: website, Emails: emails}, nil
}

type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]DomainState
	loads  int
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: map[string]DomainState{}}
}

func (s *memoryStateStore) Load(ctx context.Context, domain string) (DomainState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	st, ok := s.states[domain]
	return st, ok, nil
}

func (s *memoryStateStore) Save(ctx context.Context, st DomainState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.Domain] = st
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]*ContactRecord
	fail    bool
}

func (s *recordingSink) Flush(ctx context.Context, records []*ContactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	if s.fail {
		return errors.New("database unavailable")
	}
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}
