// Package config loads StockHelper configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML file,
// then STOCKHELPER_* environment variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOCKHELPER_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	I18n     I18nConfig     `yaml:"i18n"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	// Driver is one of memory, sqlite or postgres.
	Driver string `yaml:"driver"`
	// DSN is passed to the driver unchanged. Ignored by the memory driver.
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Migrate applies embedded migrations on startup.
	Migrate bool `yaml:"migrate"`
}

// AuthConfig tunes the permission and user services.
type AuthConfig struct {
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	IDAttempts   int           `yaml:"id_attempts"`
	PasswordMode string        `yaml:"password_mode"`
	// SeedCatalog creates the built-in patents and the Administrator family on startup.
	SeedCatalog bool `yaml:"seed_catalog"`
}

// LogConfig mirrors obs.LogConfig so this package stays free of service imports.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	JSON    bool   `yaml:"json"`
	File    string `yaml:"file"`
}

// HTTPConfig configures the admin API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	RateBurst       int           `yaml:"rate_burst"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// I18nConfig locates the culture files.
type I18nConfig struct {
	Dir            string `yaml:"dir"`
	Base           string `yaml:"base"`
	DefaultCulture string `yaml:"default_culture"`
	RecordMissing  bool   `yaml:"record_missing"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverMemory,
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			CacheTTL:     30 * time.Minute,
			IDAttempts:   10,
			PasswordMode: "bcrypt",
			SeedCatalog:  true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RatePerSecond:   50,
			RateBurst:       100,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		I18n: I18nConfig{
			Dir:            "i18n",
			Base:           "strings",
			DefaultCulture: "en-US",
		},
	}
}

// Load builds the configuration from path (optional) and the process environment.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	integer("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	boolean("DB_MIGRATE", &c.Database.Migrate)

	duration("CACHE_TTL", &c.Auth.CacheTTL)
	integer("ID_ATTEMPTS", &c.Auth.IDAttempts)
	str("PASSWORD_MODE", &c.Auth.PasswordMode)
	boolean("SEED_CATALOG", &c.Auth.SeedCatalog)

	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_CONSOLE", &c.Log.Console)
	boolean("LOG_JSON", &c.Log.JSON)
	str("LOG_FILE", &c.Log.File)

	str("HTTP_ADDR", &c.HTTP.Addr)
	integer("HTTP_RATE_BURST", &c.HTTP.RateBurst)
	if v, ok := lookup(EnvPrefix + "HTTP_RATE_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sHTTP_RATE_PER_SECOND: %w", EnvPrefix, err))
		} else {
			c.HTTP.RatePerSecond = f
		}
	}

	str("I18N_DIR", &c.I18n.Dir)
	str("I18N_DEFAULT_CULTURE", &c.I18n.DefaultCulture)
	boolean("I18N_RECORD_MISSING", &c.I18n.RecordMissing)

	return errors.Join(errs...)
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config: database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.IDAttempts <= 0 {
		return errors.New("config: auth.id_attempts must be positive")
	}
	if c.Auth.CacheTTL < 0 {
		return errors.New("config: auth.cache_ttl must not be negative")
	}
	switch c.Auth.PasswordMode {
	case "bcrypt", "plaintext":
	default:
		return fmt.Errorf("config: unknown password mode %q", c.Auth.PasswordMode)
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("config: http.max_body_bytes must be positive")
	}
	if c.I18n.Base == "" {
		c.I18n.Base = "strings"
	}
	return nil
}
