// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PARKALERTS_"

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // SQLite file
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Debug    bool   `yaml:"debug"`
}

type AlertSourceConfig struct {
	CurrentURL string        `yaml:"current_url"`
	FutureURL  string        `yaml:"future_url"`
	TimeoutStr string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

type ReserveSourceConfig struct {
	URL               string        `yaml:"url"`
	PageSize          int           `yaml:"page_size"`
	MaxPages          int           `yaml:"max_pages"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	TimeoutStr        string        `yaml:"timeout"`
	Timeout           time.Duration `yaml:"-"`
}

type SourcesConfig struct {
	Alerts   AlertSourceConfig   `yaml:"alerts"`
	Reserves ReserveSourceConfig `yaml:"reserves"`
}

type OverridesConfig struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url"` // optional; Path then holds the last downloaded copy
}

type SyncConfig struct {
	Schedule                 string        `yaml:"schedule"` // five-field cron expression
	RunOnStartup             bool          `yaml:"run_on_startup"`
	KeepAlertsOnFetchFailure bool          `yaml:"keep_alerts_on_fetch_failure"`
	ShutdownGraceStr         string        `yaml:"shutdown_grace"`
	ShutdownGrace            time.Duration `yaml:"-"`
}

// LocationRule matches parks that belong to a catalog-wide placeholder reserve.
type LocationRule struct {
	Pattern     string `yaml:"pattern"`
	Placeholder string `yaml:"placeholder"`
}

type MatchingConfig struct {
	SuffixPatterns []string       `yaml:"suffix_patterns"`
	LocationRules  []LocationRule `yaml:"location_rules"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type APIConfig struct {
	CacheTTLStr string        `yaml:"cache_ttl"`
	CacheTTL    time.Duration `yaml:"-"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Sources   SourcesConfig   `yaml:"sources"`
	Overrides OverridesConfig `yaml:"overrides"`
	Sync      SyncConfig      `yaml:"sync"`
	Matching  MatchingConfig  `yaml:"matching"`
	Logging   LoggingConfig   `yaml:"logging"`
	API       APIConfig       `yaml:"api"`
}

// DefaultSuffixPatterns strip cosmetic qualifiers from park names before matching.
var DefaultSuffixPatterns = []string{
	`\s*\([^)]*\)\s*$`,
	`\s+[-–]\s+[^-–]+\s+(precinct|area|section|zone)\s*$`,
}

// DefaultLocationRules cover reserves catalogued under a shared placeholder name.
var DefaultLocationRules = []LocationRule{
	{Pattern: `^(.+?)\s+Karst Conservation Reserve$`, Placeholder: "Karst Conservation Reserve"},
}

// Default returns a configuration with every optional field populated.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/parkalerts.db",
			Port:   "3306",
		},
		Sources: SourcesConfig{
			Alerts: AlertSourceConfig{TimeoutStr: "30s"},
			Reserves: ReserveSourceConfig{
				PageSize:          1000,
				MaxPages:          50,
				RequestsPerSecond: 2,
				TimeoutStr:        "60s",
			},
		},
		Overrides: OverridesConfig{Path: "data/park_overrides.csv"},
		Sync: SyncConfig{
			Schedule:         "0 * * * *",
			RunOnStartup:     true,
			ShutdownGraceStr: "2m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		API: APIConfig{CacheTTLStr: "60s"},
	}
}

// LoadConfig reads configuration from a YAML file, a .env file and PARKALERTS_*
// environment variables, in that order of increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath == "" {
		configPath = findConfigFile()
	}

	cfg := Default()
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" && cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for SQLite database: %w", err)
		}
	}
	return &cfg, nil
}

// findConfigFile returns the first config file found in the usual locations,
// or "" to run on defaults and environment alone.
func findConfigFile() string {
	for _, p := range []string{"config/config.yaml", "config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	setString("PORT", &cfg.Server.Port)
	setString("DB_DRIVER", &cfg.Database.Driver)
	setString("DB_PATH", &cfg.Database.Path)
	setString("DB_HOST", &cfg.Database.Host)
	setString("DB_PORT", &cfg.Database.Port)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.DBName)
	setString("ALERTS_CURRENT_URL", &cfg.Sources.Alerts.CurrentURL)
	setString("ALERTS_FUTURE_URL", &cfg.Sources.Alerts.FutureURL)
	setString("RESERVES_URL", &cfg.Sources.Reserves.URL)
	setString("OVERRIDES_PATH", &cfg.Overrides.Path)
	setString("OVERRIDES_URL", &cfg.Overrides.URL)
	setString("SCHEDULE", &cfg.Sync.Schedule)
	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)
	setString("LOG_FILE", &cfg.Logging.File)

	if v, ok := os.LookupEnv(envPrefix + "RUN_ON_STARTUP"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync.RunOnStartup = b
		}
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Port == "" {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Sources.Reserves.PageSize <= 0 {
		cfg.Sources.Reserves.PageSize = def.Sources.Reserves.PageSize
	}
	if cfg.Sources.Reserves.MaxPages <= 0 {
		cfg.Sources.Reserves.MaxPages = def.Sources.Reserves.MaxPages
	}
	if cfg.Sources.Reserves.RequestsPerSecond <= 0 {
		cfg.Sources.Reserves.RequestsPerSecond = def.Sources.Reserves.RequestsPerSecond
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = def.Sync.Schedule
	}
	if cfg.Matching.SuffixPatterns == nil {
		cfg.Matching.SuffixPatterns = DefaultSuffixPatterns
	}
	if cfg.Matching.LocationRules == nil {
		cfg.Matching.LocationRules = DefaultLocationRules
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

// parseDurations converts the *Str fields, keeping the defaults for empty values.
func (c *Config) parseDurations() error {
	def := Default()
	fields := []struct {
		name string
		raw  string
		fall string
		dst  *time.Duration
	}{
		{"sources.alerts.timeout", c.Sources.Alerts.TimeoutStr, def.Sources.Alerts.TimeoutStr, &c.Sources.Alerts.Timeout},
		{"sources.reserves.timeout", c.Sources.Reserves.TimeoutStr, def.Sources.Reserves.TimeoutStr, &c.Sources.Reserves.Timeout},
		{"sync.shutdown_grace", c.Sync.ShutdownGraceStr, def.Sync.ShutdownGraceStr, &c.Sync.ShutdownGrace},
		{"api.cache_ttl", c.API.CacheTTLStr, def.API.CacheTTLStr, &c.API.CacheTTL},
	}
	for _, f := range fields {
		raw := f.raw
		if raw == "" {
			raw = f.fall
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("database.host and database.dbname are required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q (use sqlite or mysql)", c.Database.Driver)
	}
	for _, rule := range c.Matching.LocationRules {
		if rule.Pattern == "" || rule.Placeholder == "" {
			return fmt.Errorf("matching.location_rules entries need both pattern and placeholder")
		}
	}
	return nil
}

// ValidateSources checks the upstream URLs needed to run a sync.
func (c *Config) ValidateSources() error {
	if c.Sources.Alerts.CurrentURL == "" || c.Sources.Alerts.FutureURL == "" {
		return fmt.Errorf("sources.alerts.current_url and sources.alerts.future_url are required")
	}
	if c.Sources.Reserves.URL == "" {
		return fmt.Errorf("sources.reserves.url is required")
	}
	return nil
}
