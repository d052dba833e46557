// Package config loads the opsdash process configuration from OPSDASH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends accepted for the token and general stores.
const (
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendBigcache  = "bigcache"
	BackendRistretto = "ristretto"
)

var (
	backends     = []string{BackendSQLite, BackendRedis, BackendBigcache, BackendRistretto}
	logBackends  = []string{"zap", "logrus", "slog"}
	sessionCodec = []string{"json", "cbor", "msgpack", "protobuf"}
)

// Config is the full process configuration.
type Config struct {
	// The process holds a single user's session; keep it on loopback.
	Addr       string `env:"OPSDASH_ADDR"        envDefault:"127.0.0.1:8080"`
	LogBackend string `env:"OPSDASH_LOG_BACKEND" envDefault:"zap"`
	LogLevel   string `env:"OPSDASH_LOG_LEVEL"   envDefault:"info"`

	// OTLP/HTTP traces URL; empty disables tracing.
	OTELEndpoint string `env:"OPSDASH_OTEL_ENDPOINT"`

	// Namespace prefixes every durable key and revision counter.
	Namespace      string        `env:"OPSDASH_NAMESPACE"       envDefault:"opsdash"`
	SessionTTL     time.Duration `env:"OPSDASH_SESSION_TTL"     envDefault:"3h"`
	SessionCodec   string        `env:"OPSDASH_SESSION_CODEC"   envDefault:"json"`
	TokenBackend   string        `env:"OPSDASH_TOKEN_BACKEND"   envDefault:"sqlite"`
	GeneralBackend string        `env:"OPSDASH_GENERAL_BACKEND" envDefault:"sqlite"`
	SQLitePath     string        `env:"OPSDASH_SQLITE_PATH"     envDefault:"opsdash.db"`
	RedisAddr      string        `env:"OPSDASH_REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisDB        int           `env:"OPSDASH_REDIS_DB"        envDefault:"0"`

	ConfirmURL     string        `env:"OPSDASH_CONFIRM_URL"`
	ConfirmTimeout time.Duration `env:"OPSDASH_CONFIRM_TIMEOUT" envDefault:"5s"`
	LoginPath      string        `env:"OPSDASH_LOGIN_PATH"      envDefault:"/login"`

	ShopInfoURL  string        `env:"OPSDASH_SHOP_INFO_URL"`
	FetchTimeout time.Duration `env:"OPSDASH_FETCH_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(backends, c.TokenBackend) {
		errs = append(errs, fmt.Errorf("OPSDASH_TOKEN_BACKEND: unknown backend %q", c.TokenBackend))
	}
	if !slices.Contains(backends, c.GeneralBackend) {
		errs = append(errs, fmt.Errorf("OPSDASH_GENERAL_BACKEND: unknown backend %q", c.GeneralBackend))
	}
	if !slices.Contains(logBackends, c.LogBackend) {
		errs = append(errs, fmt.Errorf("OPSDASH_LOG_BACKEND: unknown backend %q", c.LogBackend))
	}
	if !slices.Contains(sessionCodec, c.SessionCodec) {
		errs = append(errs, fmt.Errorf("OPSDASH_SESSION_CODEC: unknown codec %q", c.SessionCodec))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("OPSDASH_SESSION_TTL must be positive"))
	}
	if c.Namespace == "" {
		errs = append(errs, errors.New("OPSDASH_NAMESPACE is required"))
	}
	return errors.Join(errs...)
}

// Uses reports whether either store is configured with backend.
func (c Config) Uses(backend string) bool {
	return c.TokenBackend == backend || c.GeneralBackend == backend
}
