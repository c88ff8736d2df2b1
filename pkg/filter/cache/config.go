// Package cache provides the expiring fingerprint cache used to deduplicate
// diagnostics, and its on-disk snapshot.
package cache

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDurationRequired is returned when the dedup window is not positive.
	ErrDurationRequired = errors.New("cache duration must be positive")
	// ErrMaxEntriesRequired is returned when the entry bound is not positive.
	ErrMaxEntriesRequired = errors.New("cache maxEntries must be positive")
	// ErrInvalidFlushEvery is returned for a negative flushEvery.
	ErrInvalidFlushEvery = errors.New("cache flushEvery must not be negative")
	// ErrInvalidDuration is returned when a duration value cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Duration is a dedup window. A bare number is read as seconds ("86400"),
// anything else as a Go duration string ("24h").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler. It is used by the TOML
// decoder and when applying defaults.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > math.MaxInt64/float64(time.Second) {
			return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}

		*d = Duration(secs * float64(time.Second))

		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	*d = Duration(parsed)

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	return d.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the dedup cache configuration.
//
// Duration accepts seconds or a duration string; see Duration.
//
// FlushEvery controls durability: 1 persists on every novel event, N > 1
// persists every N mutations and 0 leaves persistence to FlushInterval and
// shutdown. Anything above 1 can lose the most recent entries on an unclean
// shutdown.
type Config struct {
	Duration        Duration      `yaml:"duration" toml:"duration" default:"86400"`
	MaxEntries      int           `yaml:"maxEntries" toml:"maxEntries" default:"1000"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" toml:"cleanupInterval" default:"1h"`
	SnapshotPath    string        `yaml:"snapshotPath" toml:"snapshotPath" default:"debug-cache.json"`
	FlushEvery      int           `yaml:"flushEvery" toml:"flushEvery" default:"1"`
	FlushInterval   time.Duration `yaml:"flushInterval" toml:"flushInterval" default:"10s"`
}

// Validate validates the cache configuration.
func (c *Config) Validate() error {
	if c.Duration <= 0 {
		return ErrDurationRequired
	}

	if c.MaxEntries <= 0 {
		return ErrMaxEntriesRequired
	}

	if c.FlushEvery < 0 {
		return ErrInvalidFlushEvery
	}

	return nil
}
