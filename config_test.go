package svckit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if cfg.Cache != DefaultCache || cfg.PubSub != DefaultPubSub || cfg.Blob != DefaultBlob {
		t.Fatalf("storage defaults not applied: %+v", cfg)
	}
	if cfg.Email != DefaultEmail || cfg.SMS != DefaultSMS || cfg.Notify != DefaultNotify {
		t.Fatalf("messaging defaults not applied: %+v", cfg)
	}
	if cfg.Vector != "" {
		t.Fatalf("vector should stay disabled, got %q", cfg.Vector)
	}
	if cfg.RetryAttempts != DefaultRetryAttempts {
		t.Fatalf("retry attempts = %d, want %d", cfg.RetryAttempts, DefaultRetryAttempts)
	}
}

func TestConfigApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{Cache: "redis://localhost:6379/0", RetryAttempts: 2}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if cfg.Cache != "redis://localhost:6379/0" {
		t.Fatalf("explicit cache overwritten: %q", cfg.Cache)
	}
	if cfg.RetryAttempts != 2 {
		t.Fatalf("explicit retry attempts overwritten: %d", cfg.RetryAttempts)
	}
	if cfg.Blob != DefaultBlob {
		t.Fatalf("blob default not applied: %q", cfg.Blob)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.Blob = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for malformed blob URL")
	}
	cfg.Blob = DefaultBlob
	cfg.RetryAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero retry attempts")
	}
}

func TestConfigInstrumented(t *testing.T) {
	cfg := &Config{}
	if cfg.Instrumented() {
		t.Fatalf("empty config should not be instrumented")
	}
	cfg.MetricsListen = "127.0.0.1:0"
	if !cfg.Instrumented() {
		t.Fatalf("metrics listen should enable instrumentation")
	}
	cfg = &Config{OTLPEndpoint: "otel-collector:4317"}
	if !cfg.Instrumented() {
		t.Fatalf("otlp endpoint should enable instrumentation")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SVCKIT_CACHE", "memcached://localhost:11211")
	t.Setenv("SVCKIT_METRICS_LISTEN", "127.0.0.1:9099")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache != "memcached://localhost:11211" {
		t.Fatalf("cache = %q", cfg.Cache)
	}
	if cfg.MetricsListen != "127.0.0.1:9099" {
		t.Fatalf("metrics listen = %q", cfg.MetricsListen)
	}
	if cfg.Blob != DefaultBlob {
		t.Fatalf("blob default not applied: %q", cfg.Blob)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svckit.yaml")
	body := "blob: disk:///var/lib/svckit\nemail: smtp://mailer@mail.example.com:587\nretry_attempts: 6\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blob != "disk:///var/lib/svckit" {
		t.Fatalf("blob = %q", cfg.Blob)
	}
	if cfg.Email != "smtp://mailer@mail.example.com:587" {
		t.Fatalf("email = %q", cfg.Email)
	}
	if cfg.RetryAttempts != 6 {
		t.Fatalf("retry attempts = %d", cfg.RetryAttempts)
	}
	if cfg.Cache != DefaultCache {
		t.Fatalf("cache default not applied: %q", cfg.Cache)
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadConfigRejectsInvalidSetting(t *testing.T) {
	t.Setenv("SVCKIT_SMS", "not a url")
	_, err := LoadConfig("")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "sms") {
		t.Fatalf("error should name the offending setting: %v", err)
	}
}
