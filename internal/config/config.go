// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package config loads accountd settings from flags, an optional YAML file
// and the environment.
package config

import (
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

	"github.com/accountd/accountd/internal/logging"
)

// Keys.
const (
	KeyHTTPAddr               = "http_addr"
	KeyMetricsAddr            = "metrics_addr"
	KeyDatabaseURL            = "database_url"
	KeyJWTSecret              = "jwt_secret"
	KeySessionTTL             = "session_ttl"
	KeyResetExpirationMinutes = "reset_expiration_minutes"
	KeyRedisAddr              = "redis_addr"
	KeyRedisDB                = "redis_db"
	KeyLogFormat              = "log_format"
	KeyLogLevel               = "log_level"
	KeyRequestTimeout         = "request_timeout"
	KeyShutdownTimeout        = "shutdown_timeout"
	KeyAutoMigrate            = "auto_migrate"
	KeyServiceName            = "service_name"
	KeyWorkerConcurrency      = "worker_concurrency"
)

// EnvPrefix selects environment variables that map onto any key,
// e.g. ACCOUNTD_HTTP_ADDR.
const EnvPrefix = "ACCOUNTD_"

// MinSecretLength is the minimum jwt_secret length in bytes.
const MinSecretLength = 32

// plainEnv lists the unprefixed variables honored for compatibility.
var plainEnv = map[string]string{
	"DATABASE_URL":             KeyDatabaseURL,
	"JWT_SECRET":               KeyJWTSecret,
	"RESET_EXPIRATION_MINUTES": KeyResetExpirationMinutes,
	"REDIS_ADDR":               KeyRedisAddr,
}

var knownKeys = map[string]struct{}{
	KeyHTTPAddr: {}, KeyMetricsAddr: {}, KeyDatabaseURL: {}, KeyJWTSecret: {},
	KeySessionTTL: {}, KeyResetExpirationMinutes: {}, KeyRedisAddr: {}, KeyRedisDB: {},
	KeyLogFormat: {}, KeyLogLevel: {}, KeyRequestTimeout: {}, KeyShutdownTimeout: {},
	KeyAutoMigrate: {}, KeyServiceName: {}, KeyWorkerConcurrency: {},
}

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr               string        `koanf:"http_addr"`
	MetricsAddr            string        `koanf:"metrics_addr"`
	DatabaseURL            string        `koanf:"database_url"`
	JWTSecret              string        `koanf:"jwt_secret"`
	SessionTTL             time.Duration `koanf:"session_ttl"`
	ResetExpirationMinutes int           `koanf:"reset_expiration_minutes"`
	RedisAddr              string        `koanf:"redis_addr"`
	RedisDB                int           `koanf:"redis_db"`
	LogFormat              string        `koanf:"log_format"`
	LogLevel               string        `koanf:"log_level"`
	RequestTimeout         time.Duration `koanf:"request_timeout"`
	ShutdownTimeout        time.Duration `koanf:"shutdown_timeout"`
	AutoMigrate            bool          `koanf:"auto_migrate"`
	ServiceName            string        `koanf:"service_name"`
	WorkerConcurrency      int           `koanf:"worker_concurrency"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:               ":8080",
		MetricsAddr:            "127.0.0.1:9100",
		SessionTTL:             24 * time.Hour,
		ResetExpirationMinutes: 5,
		RedisAddr:              "127.0.0.1:6379",
		LogFormat:              "json",
		LogLevel:               "info",
		RequestTimeout:         30 * time.Second,
		ShutdownTimeout:        10 * time.Second,
		AutoMigrate:            true,
		ServiceName:            "accountd",
		WorkerConcurrency:      5,
	}
}

// ResetExpiration returns the reset token lifetime.
func (c *Config) ResetExpiration() time.Duration {
	return time.Duration(c.ResetExpirationMinutes) * time.Minute
}

// QueueEnabled reports whether reset notices go through Redis.
func (c *Config) QueueEnabled() bool {
	return c.RedisAddr != ""
}

// RegisterFlags defines one flag per key on fs, named with dashes
// (http_addr becomes --http-addr).
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagName(KeyHTTPAddr), d.HTTPAddr, "HTTP API listen address")
	fs.String(flagName(KeyMetricsAddr), d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String(flagName(KeyDatabaseURL), "", "PostgreSQL connection URL")
	fs.String(flagName(KeyJWTSecret), "", "HMAC secret for signing tokens (at least 32 bytes)")
	fs.Duration(flagName(KeySessionTTL), d.SessionTTL, "session token lifetime")
	fs.Int(flagName(KeyResetExpirationMinutes), d.ResetExpirationMinutes, "password reset token lifetime in minutes")
	fs.String(flagName(KeyRedisAddr), d.RedisAddr, "Redis address for the notification queue (empty = deliver inline)")
	fs.Int(flagName(KeyRedisDB), d.RedisDB, "Redis database number")
	fs.String(flagName(KeyLogFormat), d.LogFormat, "log format (json or text)")
	fs.String(flagName(KeyLogLevel), d.LogLevel, "log level (debug, info, warn, error)")
	fs.Duration(flagName(KeyRequestTimeout), d.RequestTimeout, "per-request handler timeout")
	fs.Duration(flagName(KeyShutdownTimeout), d.ShutdownTimeout, "graceful shutdown deadline")
	fs.Bool(flagName(KeyAutoMigrate), d.AutoMigrate, "apply pending migrations on startup")
	fs.String(flagName(KeyServiceName), d.ServiceName, "service name attached to logs and health reports")
	fs.Int(flagName(KeyWorkerConcurrency), d.WorkerConcurrency, "number of concurrent notification workers")
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func keyName(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// Load resolves the configuration. Precedence from lowest to highest:
// defaults, the YAML file at path (skipped when empty), unprefixed
// environment variables, ACCOUNTD_* variables, and flags set explicitly
// on fs. fs may be nil.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read config file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return plainEnv[s]
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read environment").Wrap(err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read prefixed environment").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key := keyName(f.Name)
			if _, ok := knownKeys[key]; !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode configuration").Wrap(err)
	}
	return &cfg, nil
}

// LoadFile is Load without flags, used by tools and tests.
func LoadFile(path string) (*Config, error) {
	return Load(nil, path)
}

// Validate checks every set value and that each key in required is present.
// It reports the first problem found.
func (c *Config) Validate(required ...string) error {
	for _, key := range required {
		if c.isEmpty(key) {
			return invalid(key, "%s is required", key)
		}
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < MinSecretLength {
		return invalid(KeyJWTSecret, "jwt_secret must be at least %d bytes", MinSecretLength)
	}
	if c.SessionTTL <= 0 {
		return invalid(KeySessionTTL, "session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.ResetExpirationMinutes <= 0 {
		return invalid(KeyResetExpirationMinutes, "reset_expiration_minutes must be positive, got %d", c.ResetExpirationMinutes)
	}
	if c.RedisDB < 0 {
		return invalid(KeyRedisDB, "redis_db must not be negative, got %d", c.RedisDB)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid(KeyLogFormat, "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid(KeyLogLevel, "log_level %q is not a known level", c.LogLevel)
	}
	if c.RequestTimeout <= 0 {
		return invalid(KeyRequestTimeout, "request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return invalid(KeyShutdownTimeout, "shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.WorkerConcurrency <= 0 {
		return invalid(KeyWorkerConcurrency, "worker_concurrency must be positive, got %d", c.WorkerConcurrency)
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return invalid(KeyServiceName, "service_name must not be empty")
	}
	return nil
}

func (c *Config) isEmpty(key string) bool {
	switch key {
	case KeyHTTPAddr:
		return c.HTTPAddr == ""
	case KeyMetricsAddr:
		return c.MetricsAddr == ""
	case KeyDatabaseURL:
		return c.DatabaseURL == ""
	case KeyJWTSecret:
		return c.JWTSecret == ""
	case KeyRedisAddr:
		return c.RedisAddr == ""
	default:
		return false
	}
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}
