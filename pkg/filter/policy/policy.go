package policy

import (
	"github.com/ethpandaops/errorfilter/pkg/filter/event"
	"github.com/sirupsen/logrus"
)

// Verdict is the policy outcome for a single event.
type Verdict int

const (
	// VerdictIgnore means the event is not managed by the filter at all.
	VerdictIgnore Verdict = iota
	// VerdictPass means the event matched the whitelist and skips the cache.
	VerdictPass
	// VerdictSuppress means the event matched the blacklist and is dropped.
	VerdictSuppress
	// VerdictDefer means the dedup cache decides.
	VerdictDefer
)

func (v Verdict) String() string {
	switch v {
	case VerdictIgnore:
		return "ignore"
	case VerdictPass:
		return "pass"
	case VerdictSuppress:
		return "suppress"
	case VerdictDefer:
		return "defer"
	default:
		return "unknown"
	}
}

// Policy is the immutable classification engine built from Config.
type Policy struct {
	severities map[event.Severity]struct{}
	whitelist  []pattern
	blacklist  []pattern
}

// New compiles the configured pattern lists. Patterns that fail to compile
// are kept as never-matching entries and reported at debug level.
func New(log logrus.FieldLogger, config *Config) *Policy {
	log = log.WithField("component", "policy")

	p := &Policy{
		severities: config.Severities(),
		whitelist:  compileList(log, "whitelist", config.Whitelist),
		blacklist:  compileList(log, "blacklist", config.Blacklist),
	}

	// uncoverable classes always belong to the host
	for sev := range p.severities {
		if sev.Uncoverable() {
			delete(p.severities, sev)
		}
	}

	return p
}

func compileList(log logrus.FieldLogger, list string, raw []string) []pattern {
	patterns := make([]pattern, 0, len(raw))

	for _, r := range raw {
		re, err := compilePattern(r)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"list":    list,
				"pattern": r,
			}).Debug("invalid pattern, it will never match")
		}

		patterns = append(patterns, pattern{raw: r, re: re})
	}

	return patterns
}

// ShouldConsider reports whether the filter manages this event's severity.
func (p *Policy) ShouldConsider(ev event.Event) bool {
	_, ok := p.severities[ev.Severity]

	return ok
}

// Decide classifies the event. The first matching rule wins and the
// whitelist is checked before the blacklist.
func (p *Policy) Decide(ev event.Event) Verdict {
	if !p.ShouldConsider(ev) {
		return VerdictIgnore
	}

	if matchAny(p.whitelist, ev.Message) {
		return VerdictPass
	}

	if matchAny(p.blacklist, ev.Message) {
		return VerdictSuppress
	}

	return VerdictDefer
}

func matchAny(patterns []pattern, s string) bool {
	for _, p := range patterns {
		if p.match(s) {
			return true
		}
	}

	return false
}
