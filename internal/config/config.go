// ABOUTME: Configuration loading and parsing for the messenger backend
// ABOUTME: YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete messenger configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Retention  RetentionConfig  `yaml:"retention"`
	Statuspage StatuspageConfig `yaml:"statuspage"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatabaseConfig holds the database file path and the log persistence
// threshold (0..5, UNSET..CRITICAL).
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	LogLevel int    `yaml:"log_level"`
}

// RetentionConfig holds the two sweep jobs plus the shared retry delay for
// failed iterations.
type RetentionConfig struct {
	Messages SweepConfig `yaml:"messages"`
	Logs     SweepConfig `yaml:"logs"`

	RetryDelay    time.Duration `yaml:"-"`
	RetryDelayRaw string        `yaml:"retry_delay"`
}

// SweepConfig describes one retention sweep job.
type SweepConfig struct {
	MaxAge       time.Duration `yaml:"-"`
	Interval     time.Duration `yaml:"-"`
	InitialDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	MaxAgeRaw       string `yaml:"max_age"`
	IntervalRaw     string `yaml:"interval"`
	InitialDelayRaw string `yaml:"initial_delay"`
}

// StatuspageConfig holds the latency probe settings.
type StatuspageConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIBase    string `yaml:"api_base"`
	APIVersion string `yaml:"api_version"`
	APIKey     string `yaml:"api_key"`
	PageID     string `yaml:"page_id"`
	MetricID   string `yaml:"metric_id"`
	Target     string `yaml:"target"`

	Interval     time.Duration `yaml:"-"`
	InitialDelay time.Duration `yaml:"-"`

	IntervalRaw     string `yaml:"interval"`
	InitialDelayRaw string `yaml:"initial_delay"`
}

// AuthConfig holds session-token configuration.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	SessionTTL    time.Duration `yaml:"-"`
	SessionTTLRaw string        `yaml:"session_ttl"`
}

// LoggingConfig holds process logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the optional Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Defaults applied when the file leaves fields unset.
const (
	defaultMessageMaxAge  = 30 * 24 * time.Hour
	defaultLogMaxAge      = 90 * 24 * time.Hour
	defaultSweepInterval  = 24 * time.Hour
	defaultInitialDelay   = time.Minute
	defaultRetryDelay     = time.Minute
	defaultProbeInterval  = 5 * time.Minute
	defaultProbeDelay     = 10 * time.Second
	defaultSessionTTL     = 24 * time.Hour
	defaultStatuspageBase = "https://api.statuspage.io"
)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.LogLevel < 0 || c.Database.LogLevel > 5 {
		return fmt.Errorf("database.log_level must be between 0 and 5, got %d", c.Database.LogLevel)
	}

	if c.Statuspage.Enabled {
		if c.Statuspage.APIKey == "" {
			return fmt.Errorf("statuspage.api_key is required when statuspage is enabled")
		}
		if c.Statuspage.PageID == "" || c.Statuspage.MetricID == "" {
			return fmt.Errorf("statuspage.page_id and statuspage.metric_id are required when statuspage is enabled")
		}
		if c.Statuspage.Target == "" {
			return fmt.Errorf("statuspage.target is required when statuspage is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics is enabled")
	}

	return nil
}

// parseDuration parses raw into dst when raw is non-empty.
func parseDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// parseDurations converts the raw duration strings into time.Duration
// values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		dst  *time.Duration
		raw  string
		name string
	}{
		{&cfg.Retention.Messages.MaxAge, cfg.Retention.Messages.MaxAgeRaw, "retention.messages.max_age"},
		{&cfg.Retention.Messages.Interval, cfg.Retention.Messages.IntervalRaw, "retention.messages.interval"},
		{&cfg.Retention.Messages.InitialDelay, cfg.Retention.Messages.InitialDelayRaw, "retention.messages.initial_delay"},
		{&cfg.Retention.Logs.MaxAge, cfg.Retention.Logs.MaxAgeRaw, "retention.logs.max_age"},
		{&cfg.Retention.Logs.Interval, cfg.Retention.Logs.IntervalRaw, "retention.logs.interval"},
		{&cfg.Retention.Logs.InitialDelay, cfg.Retention.Logs.InitialDelayRaw, "retention.logs.initial_delay"},
		{&cfg.Retention.RetryDelay, cfg.Retention.RetryDelayRaw, "retention.retry_delay"},
		{&cfg.Statuspage.Interval, cfg.Statuspage.IntervalRaw, "statuspage.interval"},
		{&cfg.Statuspage.InitialDelay, cfg.Statuspage.InitialDelayRaw, "statuspage.initial_delay"},
		{&cfg.Auth.SessionTTL, cfg.Auth.SessionTTLRaw, "auth.session_ttl"},
	}

	for _, f := range fields {
		if err := parseDuration(f.dst, f.raw, f.name); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults fills unset durations and endpoints.
func applyDefaults(cfg *Config) {
	if cfg.Retention.Messages.MaxAge == 0 {
		cfg.Retention.Messages.MaxAge = defaultMessageMaxAge
	}
	if cfg.Retention.Messages.Interval == 0 {
		cfg.Retention.Messages.Interval = defaultSweepInterval
	}
	if cfg.Retention.Messages.InitialDelay == 0 {
		cfg.Retention.Messages.InitialDelay = defaultInitialDelay
	}
	if cfg.Retention.Logs.MaxAge == 0 {
		cfg.Retention.Logs.MaxAge = defaultLogMaxAge
	}
	if cfg.Retention.Logs.Interval == 0 {
		cfg.Retention.Logs.Interval = defaultSweepInterval
	}
	if cfg.Retention.Logs.InitialDelay == 0 {
		cfg.Retention.Logs.InitialDelay = defaultInitialDelay
	}
	if cfg.Retention.RetryDelay == 0 {
		cfg.Retention.RetryDelay = defaultRetryDelay
	}
	if cfg.Statuspage.APIBase == "" {
		cfg.Statuspage.APIBase = defaultStatuspageBase
	}
	if cfg.Statuspage.APIVersion == "" {
		cfg.Statuspage.APIVersion = "v1"
	}
	if cfg.Statuspage.Interval == 0 {
		cfg.Statuspage.Interval = defaultProbeInterval
	}
	if cfg.Statuspage.InitialDelay == 0 {
		cfg.Statuspage.InitialDelay = defaultProbeDelay
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = defaultSessionTTL
	}
}
