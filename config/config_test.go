package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.SessionTTL != 3*time.Hour || cfg.TokenBackend != BackendSQLite {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.LoginPath != "/login" || cfg.Namespace != "opsdash" || cfg.SessionCodec != "json" {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPSDASH_SESSION_TTL", "90m")
	t.Setenv("OPSDASH_TOKEN_BACKEND", "redis")
	t.Setenv("OPSDASH_GENERAL_BACKEND", "bigcache")
	t.Setenv("OPSDASH_REDIS_DB", "3")
	t.Setenv("OPSDASH_SESSION_CODEC", "cbor")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionTTL != 90*time.Minute || cfg.RedisDB != 3 || cfg.SessionCodec != "cbor" {
		t.Fatalf("overrides: %+v", cfg)
	}
	if !cfg.Uses(BackendRedis) || !cfg.Uses(BackendBigcache) || cfg.Uses(BackendSQLite) {
		t.Fatalf("Uses: %+v", cfg)
	}
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("OPSDASH_TOKEN_BACKEND", "etcd")
	t.Setenv("OPSDASH_LOG_BACKEND", "printf")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "OPSDASH_TOKEN_BACKEND") || !strings.Contains(msg, "OPSDASH_LOG_BACKEND") {
		t.Fatalf("error should name every bad variable: %v", err)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("OPSDASH_SESSION_TTL", "three hours")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
