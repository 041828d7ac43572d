package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/indicator"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/tier"
)

// Prefix is the environment variable prefix, e.g. ETF_WORKERS.
const Prefix = "ETF"

// Config holds all application configuration. Scalars come from environment
// variables; families and tiers come from an optional YAML file.
type Config struct {
	// Paths
	SourceDir    string `envconfig:"SOURCE_DIR" default:"data/daily"`
	SourceExt    string `envconfig:"SOURCE_EXT" default:"csv"`
	CacheDir     string `envconfig:"CACHE_DIR" default:"data/cache"`
	OutputDir    string `envconfig:"OUTPUT_DIR" default:"data/indicators"`
	AllowListDir string `envconfig:"ALLOWLIST_DIR"`     // read: restricts tier membership
	AllowListOut string `envconfig:"ALLOWLIST_OUT_DIR"` // write: computed membership, empty disables
	ConfigFile   string `envconfig:"CONFIG_FILE"`

	// Batch
	Workers            int           `envconfig:"WORKERS" default:"8"`
	Precision          int32         `envconfig:"PRECISION" default:"8"`
	Format             string        `envconfig:"FORMAT" default:"csv"`
	FreshnessTolerance time.Duration `envconfig:"FRESHNESS_TOLERANCE" default:"720h"`
	MinSuccessRatio    float64       `envconfig:"MIN_SUCCESS_RATIO" default:"0.95"`
	TurnoverWindow     int           `envconfig:"TURNOVER_WINDOW" default:"60"`
	Families           string        `envconfig:"FAMILIES"` // compact form, overrides the file

	// Exchange calendar
	MIC            string `envconfig:"MIC" default:"xshg"`
	MaxLagSessions int    `envconfig:"MAX_LAG_SESSIONS" default:"3"`

	// Infrastructure; empty disables the sink
	SQLitePath      string        `envconfig:"SQLITE_PATH" default:"data/runs.db"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	RedisLatestTTL  time.Duration `envconfig:"REDIS_LATEST_TTL" default:"168h"`
	PostgresDSN     string        `envconfig:"POSTGRES_DSN"`
	PostgresTable   string        `envconfig:"POSTGRES_TABLE" default:"etf_indicator_values"`
	MetricsAddr     string        `envconfig:"METRICS_ADDR"`
	MetricsTextfile string        `envconfig:"METRICS_TEXTFILE"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	FamilySpecs []indicator.FamilySpec `ignored:"true"`
	Tiers       []tier.Tier            `ignored:"true"`
}

// File is the YAML layout of ETF_CONFIG_FILE.
type File struct {
	Families []indicator.FamilySpec `yaml:"families"`
	Tiers    []tier.Tier            `yaml:"tiers"`
}

// Load reads the environment, then the YAML file if one is named, fills in
// default families and tiers and validates the result.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, apperr.NewConfig("read environment", err)
	}
	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile merges families and tiers from a YAML file.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return apperr.NewConfig("read config file", err).With("path", path)
	}
	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return apperr.NewConfig("parse config file", err).With("path", path)
	}
	if len(f.Families) > 0 {
		c.FamilySpecs = f.Families
	}
	if len(f.Tiers) > 0 {
		c.Tiers = f.Tiers
	}
	return nil
}

func (c *Config) finish() error {
	if c.Families != "" {
		specs, err := indicator.ParseSpecs(c.Families)
		if err != nil {
			return apperr.NewConfig("ETF_FAMILIES", err)
		}
		c.FamilySpecs = specs
	}
	if len(c.FamilySpecs) == 0 {
		c.FamilySpecs = indicator.DefaultSpecs()
	}
	if len(c.Tiers) == 0 {
		c.Tiers = tier.DefaultTiers()
	}
	return c.Validate()
}

// Validate rejects configurations the batch cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.SourceDir == "":
		return apperr.NewConfig("source directory is required", nil)
	case c.CacheDir == "" || c.OutputDir == "":
		return apperr.NewConfig("cache and output directories are required", nil)
	case filepath.Clean(c.CacheDir) == filepath.Clean(c.OutputDir):
		// both lay files out as <tier>/<family>/<code>.csv
		return apperr.NewConfig("cache and output directories must differ", nil)
	case c.Workers <= 0:
		return apperr.NewConfig(fmt.Sprintf("workers must be positive, got %d", c.Workers), nil)
	case c.Precision < 0 || c.Precision > 15:
		return apperr.NewConfig(fmt.Sprintf("precision %d out of range 0..15", c.Precision), nil)
	case c.Format != "csv" && c.Format != "parquet":
		return apperr.NewConfig(fmt.Sprintf("unknown output format %q", c.Format), nil)
	case c.MinSuccessRatio < 0 || c.MinSuccessRatio > 1:
		return apperr.NewConfig(fmt.Sprintf("min success ratio %v out of range 0..1", c.MinSuccessRatio), nil)
	case c.FreshnessTolerance < 0:
		return apperr.NewConfig("freshness tolerance must not be negative", nil)
	case c.TurnoverWindow <= 0:
		return apperr.NewConfig("turnover window must be positive", nil)
	case c.AllowListOut != "" && filepath.Clean(c.AllowListOut) == filepath.Clean(c.AllowListDir):
		return apperr.NewConfig("allow-list output must not overwrite the allow-lists it filters by", nil)
	}
	if err := indicator.ValidateSpecs(c.FamilySpecs); err != nil {
		return apperr.NewConfig("families", err)
	}
	if err := tier.Validate(c.Tiers); err != nil {
		return apperr.NewConfig("tiers", err)
	}
	return nil
}
