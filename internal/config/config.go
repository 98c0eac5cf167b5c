// Package config loads runtime settings from the environment through viper.
// Command-line flags bound by cmd override the values loaded here.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"librarydesk/internal/fines"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DatabaseDriver    string
	DatabaseURL       string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	ServerAddr        string
	JWTSecret         string
	TokenTTL          time.Duration
	LogLevel          string
	LogFormat         string
	Fines             fines.Policy
	OverdueSweepEvery time.Duration
}

// Keys double as environment variable names once upper-cased.
const (
	keyDatabaseDriver  = "database_driver"
	keyDatabaseURL     = "database_url"
	keyMaxOpenConns    = "db_max_open_conns"
	keyMaxIdleConns    = "db_max_idle_conns"
	keyConnMaxLifetime = "db_conn_max_lifetime"
	keyServerAddr      = "server_addr"
	keyJWTSecret       = "jwt_secret"
	keyTokenTTL        = "token_ttl"
	keyLogLevel        = "log_level"
	keyLogFormat       = "log_format"
	keyFineGraceDays   = "fine_grace_days"
	keyFinePerDay      = "fine_per_day"
	keySweepInterval   = "overdue_sweep_interval"
)

// FlagKeys maps the command-line flags cmd registers to the settings they override.
var FlagKeys = map[string]string{
	"database-driver": keyDatabaseDriver,
	"database-url":    keyDatabaseURL,
	"addr":            keyServerAddr,
	"log-level":       keyLogLevel,
	"log-format":      keyLogFormat,
}

func defaults(v *viper.Viper) {
	v.SetDefault(keyDatabaseDriver, DriverPostgres)
	v.SetDefault(keyMaxOpenConns, 20)
	v.SetDefault(keyMaxIdleConns, 10)
	v.SetDefault(keyConnMaxLifetime, time.Hour)
	v.SetDefault(keyServerAddr, ":8080")
	v.SetDefault(keyTokenTTL, 24*time.Hour)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "json")
	v.SetDefault(keyFineGraceDays, fines.DefaultGraceDays)
	v.SetDefault(keyFinePerDay, fines.DefaultRatePerDay)
	v.SetDefault(keySweepInterval, time.Duration(0))
}

// Load reads the environment, applying defaults for anything unset. Flags in
// flags that were set explicitly win over the environment; flags may be nil.
// Malformed numbers and durations are reported together.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var errs []error
	cfg := &Config{
		DatabaseDriver:    getString(v, keyDatabaseDriver),
		DatabaseURL:       getString(v, keyDatabaseURL),
		MaxOpenConns:      getInt(v, keyMaxOpenConns, &errs),
		MaxIdleConns:      getInt(v, keyMaxIdleConns, &errs),
		ConnMaxLifetime:   getDuration(v, keyConnMaxLifetime, &errs),
		ServerAddr:        getString(v, keyServerAddr),
		JWTSecret:         v.GetString(keyJWTSecret),
		TokenTTL:          getDuration(v, keyTokenTTL, &errs),
		LogLevel:          getString(v, keyLogLevel),
		LogFormat:         getString(v, keyLogFormat),
		OverdueSweepEvery: getDuration(v, keySweepInterval, &errs),
		Fines: fines.Policy{
			GraceDays:  getInt(v, keyFineGraceDays, &errs),
			RatePerDay: getInt(v, keyFinePerDay, &errs),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ValidateDatabase checks the settings every command needs.
func (c *Config) ValidateDatabase() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want %s or %s)", c.DatabaseDriver, DriverPostgres, DriverSQLite)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 1, got %d", c.MaxOpenConns)
	}
	return c.Fines.Validate()
}

// ValidateServer checks the settings the HTTP server needs on top of the database ones.
func (c *Config) ValidateServer() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.OverdueSweepEvery < 0 {
		return fmt.Errorf("OVERDUE_SWEEP_INTERVAL must not be negative, got %s", c.OverdueSweepEvery)
	}
	return nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// getInt and getDuration use cast directly because viper's typed getters
// turn malformed input into zero values.
func getInt(v *viper.Viper, key string, errs *[]error) int {
	n, err := cast.ToIntE(trimmed(v.Get(key)))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
	}
	return n
}

func getDuration(v *viper.Viper, key string, errs *[]error) time.Duration {
	d, err := cast.ToDurationE(trimmed(v.Get(key)))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
	}
	return d
}

func trimmed(raw interface{}) interface{} {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	return raw
}
