package sql

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/graphorm/dialect"
)

// Config is the YAML configuration of a SQL backend.
//
//	dialect: sqlite
//	dsn: "file:cats.db?_pragma=foreign_keys(1)"
//	slow_threshold: 250ms
//	debug: false
//	version: 3
type Config struct {
	// Dialect is one of sqlite, postgres or mysql.
	Dialect string `yaml:"dialect"`
	// Driver is the database/sql driver name. Defaults to the dialect.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// SlowThreshold marks statements as slow. Defaults to 100ms.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// SlowLog logs slow statements at WARN level.
	SlowLog bool `yaml:"slow_log"`
	Debug   bool `yaml:"debug"`
	// Version is the application schema version. Zero disables versioning.
	Version int `yaml:"version"`
}

// LoadConfig reads the configuration from a YAML file. Values from the
// environment (GRAPHORM_DIALECT, GRAPHORM_DRIVER, GRAPHORM_DSN) take
// precedence over the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Dialect:       dialect.SQLite,
		SlowThreshold: 100 * time.Millisecond,
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAPHORM_DIALECT"); v != "" {
		cfg.Dialect = v
	}
	if v := os.Getenv("GRAPHORM_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("GRAPHORM_DSN"); v != "" {
		cfg.DSN = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string
	switch c.Dialect {
	case dialect.SQLite, dialect.Postgres, dialect.MySQL:
	default:
		errs = append(errs, fmt.Sprintf("dialect %q is not one of sqlite, postgres, mysql", c.Dialect))
	}
	if c.DSN == "" {
		errs = append(errs, "dsn is required (set GRAPHORM_DSN environment variable)")
	}
	if c.SlowThreshold < 0 {
		errs = append(errs, "slow_threshold must not be negative")
	}
	if c.Version < 0 {
		errs = append(errs, "version must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Backend returns a backend for the configuration. Options are applied
// after the configured ones.
func (c *Config) Backend(opts ...Option) *Backend {
	base := []Option{WithSlowThreshold(c.SlowThreshold)}
	if c.Driver != "" {
		base = append(base, WithDriverName(c.Driver))
	}
	if c.SlowLog {
		base = append(base, WithSlowQueryLog())
	}
	if c.Debug {
		base = append(base, WithDebug())
	}
	return New(c.Dialect, c.DSN, append(base, opts...)...)
}
