// Package policy decides whether a diagnostic is managed by the filter and
// whether it bypasses the dedup cache.
package policy

import "github.com/ethpandaops/errorfilter/pkg/filter/event"

// Config holds the classification settings. It is loaded once at startup.
type Config struct {
	FilterNotices    bool     `yaml:"filterNotices" toml:"filterNotices" default:"true"`
	FilterWarnings   bool     `yaml:"filterWarnings" toml:"filterWarnings" default:"true"`
	FilterDeprecated bool     `yaml:"filterDeprecated" toml:"filterDeprecated" default:"true"`
	Whitelist        []string `yaml:"whitelist" toml:"whitelist"`
	Blacklist        []string `yaml:"blacklist" toml:"blacklist"`
}

// Validate validates the policy configuration. Bad patterns are not an
// error: they are treated as non-matching.
func (c *Config) Validate() error {
	return nil
}

// Severities returns the set of severities the filter manages.
func (c *Config) Severities() map[event.Severity]struct{} {
	set := map[event.Severity]struct{}{}

	if c.FilterNotices {
		set[event.SeverityNotice] = struct{}{}
		set[event.SeverityUserNotice] = struct{}{}
	}

	if c.FilterWarnings {
		set[event.SeverityWarning] = struct{}{}
		set[event.SeverityUserWarning] = struct{}{}
	}

	if c.FilterDeprecated {
		set[event.SeverityDeprecated] = struct{}{}
		set[event.SeverityUserDeprecated] = struct{}{}
	}

	return set
}
