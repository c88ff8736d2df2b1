package filter

import (
	"fmt"

	"github.com/ethpandaops/errorfilter/pkg/filter/cache"
	"github.com/ethpandaops/errorfilter/pkg/filter/policy"
	"github.com/ethpandaops/errorfilter/pkg/filter/sink"
)

type Config struct {
	LoggingLevel string        `yaml:"logging" toml:"logging" default:"info"`
	Debug        bool          `yaml:"debug" toml:"debug"`
	MetricsAddr  string        `yaml:"metricsAddr" toml:"metricsAddr"`
	Cache        cache.Config  `yaml:"cache" toml:"cache"`
	Policy       policy.Config `yaml:"policy" toml:"policy"`
	Log          sink.Config   `yaml:"log" toml:"log"`
}

func (c *Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return nil
}
