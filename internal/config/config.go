// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

// Package config loads the server configuration. Sources are applied in
// order, later ones winning: built-in defaults, an optional YAML file, the
// SNAKE_* environment variables, then explicitly set command-line flags.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/snakesurvival/snakesurvival/internal/auth"
)

// Environment variables holding secrets. Secrets are never read from flags.
const (
	EnvDatabaseURL = "SNAKE_DATABASE_URL"
	EnvTokenSecret = "SNAKE_TOKEN_SECRET"
)

// Config is the full server configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Sweep    SweepConfig    `koanf:"sweep"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// HTTPConfig configures the request dispatcher.
type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	BodyLimit    int           `koanf:"body_limit"`
	// TrustProxy makes the dispatcher take the client address from
	// X-Forwarded-For.
	TrustProxy bool `koanf:"trust_proxy"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// AuthConfig mirrors auth.Config in loadable form.
type AuthConfig struct {
	TokenSecret          string        `koanf:"token_secret"`
	Issuer               string        `koanf:"issuer"`
	AccessTokenTTL       time.Duration `koanf:"access_token_ttl"`
	SessionTTL           time.Duration `koanf:"session_ttl"`
	PersistentSessionTTL time.Duration `koanf:"persistent_session_ttl"`
	LockoutThreshold     int           `koanf:"lockout_threshold"`
	LockoutMin           time.Duration `koanf:"lockout_min"`
	LockoutMax           time.Duration `koanf:"lockout_max"`
}

// SweepConfig configures the expiry sweeper.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			ConnectAttempts: 6,
			ConnectBackoff:  500 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			BodyLimit:    64 * 1024,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Auth: AuthConfig{
			Issuer:               auth.DefaultIssuer,
			AccessTokenTTL:       auth.DefaultAccessTokenTTL,
			SessionTTL:           auth.DefaultSessionTTL,
			PersistentSessionTTL: auth.DefaultPersistentSessionTTL,
			LockoutThreshold:     auth.DefaultLockoutThreshold,
			LockoutMin:           auth.DefaultLockoutMin,
			LockoutMax:           auth.DefaultLockoutMax,
		},
		Sweep: SweepConfig{Interval: auth.DefaultSweepInterval},
	}
}

// RegisterFlags adds the overridable settings to fs, using the defaults as
// flag defaults. Flag names are the dotted config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http.addr", d.HTTP.Addr, "HTTP listen address")
	fs.Bool("http.trust_proxy", d.HTTP.TrustProxy, "take the client address from X-Forwarded-For")
	fs.String("metrics.addr", d.Metrics.Addr, "metrics/health listen address (empty disables)")
	fs.String("log.format", d.Log.Format, "log format (json or text)")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.Int32("database.max_conns", d.Database.MaxConns, "maximum pool connections (0 = pgx default)")
	fs.Bool("database.auto_migrate", d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.Duration("sweep.interval", d.Sweep.Interval, "interval between expiry sweeps")
}

// Load builds the configuration. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	for key, env := range map[string]string{
		"database.url":      EnvDatabaseURL,
		"auth.token_secret": EnvTokenSecret,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

// AuthCore converts the auth settings to an auth.Config.
func (c Config) AuthCore() auth.Config {
	return auth.Config{
		Secret:               []byte(c.Auth.TokenSecret),
		Issuer:               c.Auth.Issuer,
		AccessTokenTTL:       c.Auth.AccessTokenTTL,
		SessionTTL:           c.Auth.SessionTTL,
		PersistentSessionTTL: c.Auth.PersistentSessionTTL,
		Lockout: auth.LockoutPolicy{
			Threshold:   c.Auth.LockoutThreshold,
			MinDuration: c.Auth.LockoutMin,
			MaxDuration: c.Auth.LockoutMax,
		},
	}
}

// ValidateServe checks what the serve command needs.
func (c Config) ValidateServe() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http.addr is required")
	}
	if c.HTTP.BodyLimit <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("http.body_limit must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("format", c.Log.Format).
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return c.AuthCore().Validate()
}

// ValidateDatabase checks that a database URL is configured.
func (c Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("env", EnvDatabaseURL).
			Errorf("database URL is required (set %s)", EnvDatabaseURL)
	}
	return nil
}
