// Package config loads the mboxfwd configuration from a YAML file, the environment and
// command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

// EnvPrefix prefixes environment overrides, e.g. MBOXFWD_BATCH_WORKERS.
const EnvPrefix = "MBOXFWD"

// Config holds top-level application configuration groups.
type Config struct {
	Segmenter SegmenterConfig `mapstructure:"segmenter" yaml:"segmenter"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// SegmenterConfig configures forward detection.
type SegmenterConfig struct {
	MaxDepth     int      `mapstructure:"max_depth" yaml:"max_depth"`
	Markers      []string `mapstructure:"markers" yaml:"markers"`
	FallbackFrom bool     `mapstructure:"fallback_from" yaml:"fallback_from"`

	// Locales replaces the shipped locales when set. An entry with only a name
	// selects the shipped locale of that name.
	Locales []LocaleConfig `mapstructure:"locales" yaml:"locales"`
}

// LocaleConfig is one locale. Labels is keyed by field name: from, to, cc, bcc,
// subject, date.
type LocaleConfig struct {
	Name   string              `mapstructure:"name" yaml:"name"`
	Labels map[string][]string `mapstructure:"labels" yaml:"labels"`
	Inline *InlineConfig       `mapstructure:"inline" yaml:"inline"`
}

// InlineConfig is the "on ... wrote:" sentence of a locale.
type InlineConfig struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Lead    string `mapstructure:"lead" yaml:"lead"`
	Tail    string `mapstructure:"tail" yaml:"tail"`
}

// BatchConfig controls the worker pool.
type BatchConfig struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RecordTimeout time.Duration `mapstructure:"record_timeout" yaml:"record_timeout"`
	Pattern       string        `mapstructure:"pattern" yaml:"pattern"` // file glob for json input
	Format        string        `mapstructure:"format" yaml:"format"`   // "json" or "mbox"
}

// LoggingConfig controls application logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // "info", "debug", etc.
	Format string `mapstructure:"format" yaml:"format"` // "json" or "text"
}

// LedgerConfig locates the run ledger. An empty path disables it.
type LedgerConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig names the textfile metrics are written to. Empty disables metrics.
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// flagKeys maps configuration keys to the command line flags overriding them.
var flagKeys = map[string]string{
	"segmenter.max_depth":  "max-depth",
	"batch.workers":        "workers",
	"batch.record_timeout": "record-timeout",
	"batch.pattern":        "pattern",
	"batch.format":         "format",
	"logging.level":        "log-level",
	"logging.format":       "log-format",
	"ledger.path":          "ledger",
	"metrics.file":         "metrics-file",
}

// Load reads the configuration. With an empty path, mboxfwd.yaml is searched in the
// working directory and /etc/mboxfwd, and a missing file means defaults. Flags in
// flags that were set on the command line take precedence over everything else.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mboxfwd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mboxfwd")
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults establishes default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("segmenter.max_depth", fwdsplit.DefaultMaxDepth)
	v.SetDefault("segmenter.markers", fwdsplit.DefaultMarkers)
	v.SetDefault("segmenter.fallback_from", true)

	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.record_timeout", "30s")
	v.SetDefault("batch.pattern", "*.json")
	v.SetDefault("batch.format", "json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("ledger.path", "")
	v.SetDefault("metrics.file", "")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	if c.Batch.RecordTimeout < 0 {
		return fmt.Errorf("batch.record_timeout must not be negative")
	}
	switch c.Batch.Format {
	case "json", "mbox":
	default:
		return fmt.Errorf("batch.format must be json or mbox, got %q", c.Batch.Format)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if _, err := c.Segmenter.Rules(); err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}
	return nil
}

// Rules compiles the segmenter configuration.
func (c SegmenterConfig) Rules() (*fwdsplit.Rules, error) {
	fc := fwdsplit.Config{
		MaxDepth:     c.MaxDepth,
		Markers:      c.Markers,
		FallbackFrom: c.FallbackFrom,
	}
	if len(c.Locales) == 0 {
		fc.Locales = fwdsplit.DefaultConfig().Locales
	}
	for _, lc := range c.Locales {
		loc, err := lc.locale()
		if err != nil {
			return nil, err
		}
		fc.Locales = append(fc.Locales, loc)
	}
	return fwdsplit.NewRules(fc)
}

func (lc LocaleConfig) locale() (fwdsplit.Locale, error) {
	if len(lc.Labels) == 0 && lc.Inline == nil {
		loc, ok := fwdsplit.LookupLocale(lc.Name)
		if !ok {
			return fwdsplit.Locale{}, fmt.Errorf("unknown locale %q", lc.Name)
		}
		return loc, nil
	}

	loc := fwdsplit.Locale{
		Name:   lc.Name,
		Labels: map[fwdsplit.CanonicalField][]string{},
	}
	for name, labels := range lc.Labels {
		f, err := fwdsplit.ParseField(name)
		if err != nil {
			return fwdsplit.Locale{}, fmt.Errorf("locale %s: %w", lc.Name, err)
		}
		loc.Labels[f] = append(loc.Labels[f], labels...)
	}
	if lc.Inline != nil {
		loc.Inline = &fwdsplit.InlineTemplate{
			Pattern: lc.Inline.Pattern,
			Lead:    lc.Inline.Lead,
			Tail:    lc.Inline.Tail,
		}
	}
	return loc, nil
}
