// discovery/extract.go
package discovery

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/badoux/checkmail"
	emailaddress "github.com/mcnijman/go-emailaddress"
)

var (
	obfuscatedAt  = regexp.MustCompile(`(?i)\s*[\[\(\{<]\s*at\s*[\]\)\}>]\s*`)
	obfuscatedDot = regexp.MustCompile(`(?i)\s*[\[\(\{<]\s*dot\s*[\]\)\}>]\s*`)

	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js", ".ico"}

	// Link keywords, strongest first. Matched against link text and path.
	pageKeywords = []string{
		"contact", "team", "people", "staff", "attorney", "lawyer",
		"professionals", "our-firm", "about", "bio",
	}
)

// PageExtract is everything pulled out of one HTML page.
type PageExtract struct {
	Emails []string
	Links  []string
}

// ExtractPage parses a page and returns filtered addresses plus same-site
// links worth following, ranked by keyword strength then document order.
func ExtractPage(body []byte, pageURL string, rules Rules) (PageExtract, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return PageExtract{}, err
	}
	base, _ := url.Parse(pageURL)

	found := newAddressSet()

	// mailto: links
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(strings.ToLower(href), "mailto:") {
			found.addMailto(href)
		}
	})

	// Cloudflare email obfuscation
	doc.Find("[data-cfemail]").Each(func(_ int, s *goquery.Selection) {
		if encoded, ok := s.Attr("data-cfemail"); ok {
			found.add(decodeCFEmail(encoded))
		}
	})
	doc.Find("a[href*='/cdn-cgi/l/email-protection#']").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if i := strings.LastIndexByte(href, '#'); i >= 0 {
			found.add(decodeCFEmail(href[i+1:]))
		}
	})

	// metadata
	doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		found.addText(content)
	})

	// structured data
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err == nil {
			walkJSONStrings(v, found.addText)
		}
	})

	links := rankLinks(doc, base)

	// rendered text, then the raw markup for addresses tucked into attributes
	doc.Find("script, style, noscript").Remove()
	found.addText(visibleText(doc))
	found.addText(html.UnescapeString(string(body)))

	return PageExtract{Emails: found.filtered(rules), Links: links}, nil
}

// visibleText joins text nodes with spaces so adjacent elements do not run
// together into one token.
func visibleText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			b.WriteString(s.Text())
			b.WriteByte(' ')
		}
	})
	return b.String()
}

type addressSet struct {
	seen  map[string]struct{}
	order []string
}

func newAddressSet() *addressSet {
	return &addressSet{seen: make(map[string]struct{})}
}

func (a *addressSet) add(address string) {
	address = strings.ToLower(strings.Trim(strings.TrimSpace(address), ".,;:<>\"'()[]"))
	local, domain, ok := splitAddress(address)
	if !ok {
		return
	}
	// URL and query fragments ("//user@host", "?ref=jane@firm.com") bleed into the local-part.
	if i := strings.LastIndexAny(local, "/=?"); i >= 0 {
		local = local[i+1:]
		if local == "" {
			return
		}
		address = local + "@" + domain
	}
	if _, ok := a.seen[address]; ok {
		return
	}
	a.seen[address] = struct{}{}
	a.order = append(a.order, address)
}

func (a *addressSet) addMailto(href string) {
	raw := href[len("mailto:"):]
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	for _, part := range strings.Split(raw, ",") {
		a.add(part)
	}
}

func (a *addressSet) addText(text string) {
	if text == "" {
		return
	}
	text = obfuscatedAt.ReplaceAllString(text, "@")
	text = obfuscatedDot.ReplaceAllString(text, ".")
	if !strings.Contains(text, "@") {
		return
	}
	for _, e := range emailaddress.FindWithIcannSuffix([]byte(text), false) {
		a.add(e.String())
	}
}

// filtered applies syntax, asset, ignore-domain and role checks, in that order.
func (a *addressSet) filtered(rules Rules) []string {
	out := make([]string, 0, len(a.order))
	for _, address := range a.order {
		if AcceptableAddress(address, rules) {
			out = append(out, address)
		}
	}
	return out
}

// AcceptableAddress is the pre-scoring filter for extracted addresses.
func AcceptableAddress(address string, rules Rules) bool {
	if err := checkmail.ValidateFormat(address); err != nil {
		return false
	}
	local, domain, ok := splitAddress(address)
	if !ok {
		return false
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return false
		}
	}
	if rules.IsIgnoredDomain(domain) || rules.IsRole(local) {
		return false
	}
	return true
}

func walkJSONStrings(v any, visit func(string)) {
	switch t := v.(type) {
	case string:
		visit(strings.TrimPrefix(t, "mailto:"))
	case []any:
		for _, item := range t {
			walkJSONStrings(item, visit)
		}
	case map[string]any:
		for _, item := range t {
			walkJSONStrings(item, visit)
		}
	}
}

// decodeCFEmail reverses Cloudflare's XOR encoding: first byte is the key.
func decodeCFEmail(encoded string) string {
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) < 2 {
		return ""
	}
	key := raw[0]
	out := make([]byte, len(raw)-1)
	for i, b := range raw[1:] {
		out[i] = b ^ key
	}
	return string(out)
}

func rankLinks(doc *goquery.Document, base *url.URL) []string {
	if base == nil {
		return nil
	}
	type link struct {
		url    string
		weight int
		pos    int
	}

	seen := map[string]struct{}{normalizePageURL(base): {}}
	var links []link
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		if (u.Scheme != "http" && u.Scheme != "https") || !sameSite(u.Hostname(), base.Hostname()) {
			return
		}
		weight := keywordWeight(strings.ToLower(s.Text()), strings.ToLower(u.Path))
		if weight == 0 {
			return
		}
		key := normalizePageURL(u)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, link{url: key, weight: weight, pos: i})
	})

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].weight != links[j].weight {
			return links[i].weight > links[j].weight
		}
		return links[i].pos < links[j].pos
	})
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.url
	}
	return out
}

func keywordWeight(text, path string) int {
	for i, kw := range pageKeywords {
		if strings.Contains(text, strings.ReplaceAll(kw, "-", " ")) || strings.Contains(path, kw) {
			return len(pageKeywords) - i
		}
	}
	return 0
}

func sameSite(a, b string) bool {
	return NormalizeDomain(a) == NormalizeDomain(b)
}

func normalizePageURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawQuery = ""
	if len(c.Path) > 1 {
		c.Path = strings.TrimSuffix(c.Path, "/")
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}
