// Package sink appends accepted diagnostics to the destination log.
package sink

import (
	"errors"
	"time"
)

// ErrPathRequired is returned when an enabled sink has no destination.
var ErrPathRequired = errors.New("log path is required when the log is enabled")

// Config holds the destination log configuration.
type Config struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled" default:"true"`
	Path     string `yaml:"path" toml:"path" default:"debug.log"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
	Timezone string `yaml:"timezone" toml:"timezone" default:"Local"`
}

// Validate validates the sink configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Path == "" {
		return ErrPathRequired
	}

	return nil
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}

	return loc, nil
}
