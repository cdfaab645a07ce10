// discovery/cache.go
package discovery

import (
	"sync"
	"time"
)

// CrawlResult is what a site crawl yielded, cached per site.
type CrawlResult struct {
	Domain       string    `json:"domain"`
	Emails       []string  `json:"emails"`
	CrawledPages []string  `json:"crawled_pages"`
	Timestamp    time.Time `json:"timestamp"`
}

// DomainEmailCache is a bounded FIFO map: when full, inserting a new key
// evicts the oldest-inserted key. Reads do not refresh position.
type DomainEmailCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]CrawlResult
	order   []string
}

func NewDomainEmailCache(max int) *DomainEmailCache {
	if max <= 0 {
		max = 1
	}
	return &DomainEmailCache{max: max, entries: make(map[string]CrawlResult, max)}
}

func (c *DomainEmailCache) Get(domain string) (CrawlResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[domain]
	return r, ok
}

// Put stores a result. Updating an existing key keeps its insertion position.
func (c *DomainEmailCache) Put(domain string, r CrawlResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[domain]; ok {
		c.entries[domain] = r
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[domain] = r
	c.order = append(c.order, domain)
}

func (c *DomainEmailCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
