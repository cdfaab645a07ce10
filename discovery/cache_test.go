package discovery

import "testing"

func TestDomainEmailCacheEvictsOldestInserted(t *testing.T) {
	c := NewDomainEmailCache(2)
	c.Put("a.com", CrawlResult{Domain: "a.com"})
	c.Put("b.com", CrawlResult{Domain: "b.com"})

	// Reads do not refresh position.
	if _, ok := c.Get("a.com"); !ok {
		t.Fatal("a.com missing")
	}
	c.Put("c.com", CrawlResult{Domain: "c.com"})

	if _, ok := c.Get("a.com"); ok {
		t.Fatal("a.com should have been evicted")
	}
	for _, d := range []string{"b.com", "c.com"} {
		if _, ok := c.Get(d); !ok {
			t.Fatalf("%s missing", d)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestDomainEmailCacheUpdateKeepsPosition(t *testing.T) {
	c := NewDomainEmailCache(2)
	c.Put("a.com", CrawlResult{Emails: []string{"old@a.com"}})
	c.Put("b.com", CrawlResult{})
	c.Put("a.com", CrawlResult{Emails: []string{"new@a.com"}})

	got, _ := c.Get("a.com")
	if len(got.Emails) != 1 || got.Emails[0] != "new@a.com" {
		t.Fatalf("update lost: %v", got.Emails)
	}

	c.Put("c.com", CrawlResult{})
	if _, ok := c.Get("a.com"); ok {
		t.Fatal("updated key should still be evicted first")
	}
}
