package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mailfinder/discovery"
)

// RulesFile is the on-disk shape of the filter lists. A list marked with
// replace: true drops the built-in defaults; otherwise entries are added.
type RulesFile struct {
	FreeMail      RuleList `yaml:"free_mail"`
	RoleAddresses RuleList `yaml:"role_addresses"`
	IgnoreDomains RuleList `yaml:"ignore_domains"`
}

type RuleList struct {
	Replace bool     `yaml:"replace"`
	Entries []string `yaml:"entries"`
}

func (l RuleList) merge(defaults []string) []string {
	if l.Replace && len(l.Entries) > 0 {
		return l.Entries
	}
	out := make([]string, 0, len(defaults)+len(l.Entries))
	out = append(out, defaults...)
	return append(out, l.Entries...)
}

// LoadRules returns the default rules, or the defaults merged with the file
// at path when one is given.
func LoadRules(path string) (discovery.Rules, error) {
	if path == "" {
		return discovery.NewRules(nil, nil, nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return discovery.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (discovery.Rules, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return discovery.Rules{}, fmt.Errorf("parse rules file: %w", err)
	}
	return discovery.NewRules(
		file.FreeMail.merge(discovery.DefaultFreeMailProviders),
		file.RoleAddresses.merge(discovery.DefaultRoleAddresses),
		file.IgnoreDomains.merge(discovery.DefaultIgnoreDomains),
	), nil
}
