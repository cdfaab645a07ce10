package config

import (
	"testing"
	"time"
)

func TestParseRulesExtendsDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(`
free_mail:
  entries: [fastmail.com]
role_addresses:
  entries: [partners]
`))
	if err != nil {
		t.Fatal(err)
	}
	if !rules.IsFreeMail("fastmail.com") || !rules.IsFreeMail("gmail.com") {
		t.Fatal("free-mail defaults not extended")
	}
	if !rules.IsRole("partners") || !rules.IsRole("info") {
		t.Fatal("role defaults not extended")
	}
	if !rules.IsIgnoredDomain("example.com") {
		t.Fatal("ignore defaults missing")
	}
}

func TestParseRulesReplace(t *testing.T) {
	rules, err := ParseRules([]byte(`
ignore_domains:
  replace: true
  entries: [placeholder.test]
`))
	if err != nil {
		t.Fatal(err)
	}
	if rules.IsIgnoredDomain("example.com") {
		t.Fatal("defaults kept despite replace")
	}
	if !rules.IsIgnoredDomain("placeholder.test") {
		t.Fatal("replacement entry missing")
	}
}

func TestParseRulesInvalid(t *testing.T) {
	if _, err := ParseRules([]byte("free_mail: [")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadFinderConfigFromEnv(t *testing.T) {
	t.Setenv("FINDER_WORKERS", "5")
	t.Setenv("FINDER_PROBE_TIMEOUT", "2s")
	t.Setenv("FINDER_POLITE_MIN", "bogus")
	t.Setenv("FINDER_CRAWL_ENABLED", "false")
	t.Setenv("FINDER_CRAWL_RPS", "0.5")

	f := LoadFinderConfig()
	if f.Workers != 5 || f.ProbeTimeout != 2*time.Second {
		t.Fatalf("finder config = %+v", f)
	}
	if f.PoliteMin != 500*time.Millisecond {
		t.Fatalf("invalid duration not defaulted: %s", f.PoliteMin)
	}
	if f.CrawlEnabled || f.CrawlRPS != 0.5 {
		t.Fatalf("crawl settings = %t %v", f.CrawlEnabled, f.CrawlRPS)
	}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if f.ProberConfig().Timeout != 2*time.Second || f.OrchestratorConfig().Workers != 5 {
		t.Fatal("engine configs not derived")
	}
}

func TestFinderConfigValidate(t *testing.T) {
	f := LoadFinderConfig()
	f.PoliteMax = f.PoliteMin - time.Millisecond
	if err := f.Validate(); err == nil {
		t.Fatal("inverted polite delay accepted")
	}

	cases := map[int]bool{-1: false, 0: true, 1: true, 2: false, 50: false}
	for retries, ok := range cases {
		f := LoadFinderConfig()
		f.ProbeRetries = retries
		if err := f.Validate(); (err == nil) != ok {
			t.Errorf("retries=%d: err = %v", retries, err)
		}
	}
}
