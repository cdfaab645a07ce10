// discovery/crawl.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

var ErrFetch = errors.New("page fetch failed")

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxRedirects     = 5
)

// CrawlerConfig bounds a site visit.
type CrawlerConfig struct {
	PageLimit      int
	Timeout        time.Duration
	PoliteDelayMin time.Duration
	PoliteDelayMax time.Duration
	// RateLimitRPS is a global fetch limit across workers. <=0 disables it.
	RateLimitRPS float64
	MaxBodyBytes int
	UserAgent    string
	CacheSize    int
}

// Crawler visits an organization's homepage and its contact-like pages.
type Crawler struct {
	cfg     CrawlerConfig
	rules   Rules
	client  *fasthttp.Client
	cache   *DomainEmailCache
	limiter *rate.Limiter
	log     *logrus.Entry
	fetches atomic.Int64
}

func NewCrawler(cfg CrawlerConfig, rules Rules, log *logrus.Entry) *Crawler {
	if cfg.PageLimit < 0 {
		cfg.PageLimit = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 500
	}
	if cfg.PoliteDelayMax < cfg.PoliteDelayMin {
		cfg.PoliteDelayMax = cfg.PoliteDelayMin
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	timeout := cfg.Timeout
	client := &fasthttp.Client{
		ReadTimeout:                   timeout,
		WriteTimeout:                  timeout,
		MaxResponseBodySize:           cfg.MaxBodyBytes,
		NoDefaultUserAgentHeader:      true,
		DisableHeaderNamesNormalizing: false,
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, timeout)
		},
	}

	c := &Crawler{
		cfg:    cfg,
		rules:  rules,
		client: client,
		cache:  NewDomainEmailCache(cfg.CacheSize),
		log:    log,
	}
	if cfg.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return c
}

// Fetches counts HTTP requests issued, for tests and stats.
func (c *Crawler) Fetches() int64 {
	return c.fetches.Load()
}

// Cache exposes the per-site result cache.
func (c *Crawler) Cache() *DomainEmailCache {
	return c.cache
}

// Crawl visits the homepage and up to PageLimit discovered pages, returning
// every acceptable address found. Results are cached per site host.
func (c *Crawler) Crawl(ctx context.Context, website string) (CrawlResult, error) {
	home, err := parseWebsite(website)
	if err != nil {
		return CrawlResult{}, fmt.Errorf("%w: %s: %v", ErrFetch, website, err)
	}
	key := NormalizeDomain(home.Host)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	log := c.log.WithField("site", key)
	result := CrawlResult{Domain: key, Timestamp: time.Now()}
	found := newAddressSet()

	homeURL := home.String()
	body, finalURL, err := c.fetch(ctx, homeURL)
	if err != nil && !strings.Contains(website, "://") && home.Scheme == "https" {
		// Bare hosts are tried over https first; plenty of small sites only answer http.
		home.Scheme = "http"
		homeURL = home.String()
		body, finalURL, err = c.fetch(ctx, homeURL)
	}
	if err != nil {
		log.WithError(err).Warn("homepage fetch failed")
		return CrawlResult{}, err
	}
	result.CrawledPages = append(result.CrawledPages, finalURL)

	page, err := ExtractPage(body, finalURL, c.rules)
	if err != nil {
		log.WithError(err).Warn("homepage parse failed")
	}
	for _, e := range page.Emails {
		found.add(e)
	}

	for i, link := range page.Links {
		if i >= c.cfg.PageLimit {
			break
		}
		if err := c.politeDelay(ctx); err != nil {
			break
		}
		body, finalURL, err := c.fetch(ctx, link)
		if err != nil {
			log.WithFields(logrus.Fields{"url": link, "error": err}).Warn("page fetch failed")
			continue
		}
		result.CrawledPages = append(result.CrawledPages, finalURL)
		sub, err := ExtractPage(body, finalURL, c.rules)
		if err != nil {
			log.WithFields(logrus.Fields{"url": link, "error": err}).Warn("page parse failed")
			continue
		}
		for _, e := range sub.Emails {
			found.add(e)
		}
	}

	result.Emails = found.order
	c.cache.Put(key, result)
	log.WithFields(logrus.Fields{
		"pages":  len(result.CrawledPages),
		"emails": len(result.Emails),
	}).Info("site crawled")
	return result, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}
	c.fetches.Add(1)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(pageURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if err := c.client.DoRedirects(req, resp, maxRedirects); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrFetch, pageURL, err)
	}
	if code := resp.StatusCode(); code >= 400 {
		return nil, "", fmt.Errorf("%w: %s: status %d", ErrFetch, pageURL, code)
	}

	var (
		body []byte
		err  error
	)
	switch strings.ToLower(string(resp.Header.ContentEncoding())) {
	case "gzip":
		body, err = resp.BodyGunzip()
	case "deflate":
		body, err = resp.BodyInflate()
	case "br":
		body, err = resp.BodyUnbrotli()
	default:
		body = resp.Body()
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: decode body: %v", ErrFetch, pageURL, err)
	}

	// resp is released on return; copy what we keep.
	return append([]byte(nil), body...), req.URI().String(), nil
}

func (c *Crawler) politeDelay(ctx context.Context) error {
	return sleepCtx(ctx, jitter(c.cfg.PoliteDelayMin, c.cfg.PoliteDelayMax))
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
