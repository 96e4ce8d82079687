// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

// Package config loads campusauth settings from defaults, a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/internal/store"
	"github.com/campusauth/campusauth/internal/xdg"
)

// EnvPrefix namespaces environment overrides. CAMPUSAUTH_AUTH__SESSION_TTL
// sets auth.session_ttl.
const EnvPrefix = "CAMPUSAUTH_"

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Auth    AuthConfig    `koanf:"auth"`
	Storage StorageConfig `koanf:"storage"`
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig controls the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// AuthConfig holds token and hashing settings.
type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	Issuer     string        `koanf:"issuer"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	ResetTTL   time.Duration `koanf:"reset_ttl"`
	Argon2     Argon2Config  `koanf:"argon2"`
}

// Argon2Config is the password hashing work factor.
type Argon2Config struct {
	Time    uint32 `koanf:"time"`
	Memory  uint32 `koanf:"memory"`
	Threads uint8  `koanf:"threads"`
}

// Params converts the work factor, keeping the default salt and key sizes.
func (a Argon2Config) Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params
	p.Time = a.Time
	p.Memory = a.Memory
	p.Threads = a.Threads
	return p
}

// StorageConfig selects and tunes the user store.
type StorageConfig struct {
	Driver          string `koanf:"driver"`
	DatabaseURL     string `koanf:"database_url"`
	MaxConns        int32  `koanf:"max_conns"`
	MinConns        int32  `koanf:"min_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	// AutoMigrate applies pending migrations when serve starts.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// Pool converts the pool settings.
func (s StorageConfig) Pool() store.PoolConfig {
	return store.PoolConfig{
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		ConnectAttempts: s.ConnectAttempts,
		RetryBase:       store.DefaultPoolConfig.RetryBase,
	}
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":                ":5000",
		"server.read_header_timeout": "10s",
		"server.shutdown_timeout":    "15s",
		"metrics.addr":               "127.0.0.1:9100",
		"log.format":                 "json",
		"log.level":                  "info",
		"auth.issuer":                "campusauth",
		"auth.session_ttl":           "720h",
		"auth.reset_ttl":             "15m",
		"auth.argon2.time":           1,
		"auth.argon2.memory":         64 * 1024,
		"auth.argon2.threads":        4,
		"storage.driver":             StoragePostgres,
		"storage.max_conns":          10,
		"storage.min_conns":          0,
		"storage.connect_attempts":   5,
		"storage.auto_migrate":       false,
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"storage":      "storage.driver",
	"database-url": "storage.database_url",
}

// unprefixedEnv are conventional variable names honoured without the prefix.
var unprefixedEnv = map[string]string{
	"JWT_SECRET":   "auth.jwt_secret",
	"DATABASE_URL": "storage.database_url",
	"PORT":         "server.addr",
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is an explicit config path. It must exist when set. When empty,
	// the XDG default is read if present.
	File string
	// Flags, when set, override everything else for flags the user changed.
	Flags *pflag.FlagSet
}

// Load builds a Config from all sources and validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.In(auth.KindConfiguration).Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if err := loadFile(k, opts.File); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue("", ".", unprefixedValue), nil); err != nil {
		return nil, oops.In(auth.KindConfiguration).Code("CONFIG_ENV_FAILED").Wrap(err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", prefixedKey), nil); err != nil {
		return nil, oops.In(auth.KindConfiguration).Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagValue), nil); err != nil {
			return nil, oops.In(auth.KindConfiguration).Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In(auth.KindConfiguration).Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.In(auth.KindConfiguration).Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.In(auth.KindConfiguration).Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// prefixedKey turns CAMPUSAUTH_SECTION__KEY into section.key.
func prefixedKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

func unprefixedValue(name, value string) (string, any) {
	key, ok := unprefixedEnv[name]
	if !ok || value == "" {
		return "", nil
	}
	if name == "PORT" {
		return key, ":" + value
	}
	return key, value
}

func flagValue(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok {
		return "", nil
	}
	return key, f.Value.String()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.In(auth.KindConfiguration).Code("CONFIG_INVALID").
			With("key", key).
			With("value", value).
			Errorf(format, args...)
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return invalid("server.addr", c.Server.Addr, "server.addr must be host:port")
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return invalid("metrics.addr", c.Metrics.Addr, "metrics.addr must be host:port or empty")
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", c.Server.ShutdownTimeout, "server.shutdown_timeout must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level", c.Log.Level, "log.level must be debug, info, warn or error")
	}
	if c.Auth.SessionTTL <= 0 {
		return invalid("auth.session_ttl", c.Auth.SessionTTL, "auth.session_ttl must be positive")
	}
	if c.Auth.ResetTTL <= 0 {
		return invalid("auth.reset_ttl", c.Auth.ResetTTL, "auth.reset_ttl must be positive")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return invalid("storage.database_url", "", "storage.database_url (or DATABASE_URL) is required for the postgres driver")
		}
	default:
		return invalid("storage.driver", c.Storage.Driver, "storage.driver must be %q or %q", StoragePostgres, StorageMemory)
	}
	return nil
}
