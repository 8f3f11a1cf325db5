package svckit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pkt.systems/svckit/fieldpath"
	"pkt.systems/svckit/setting"
)

const (
	// DefaultCache backs the cache with process-local memory.
	DefaultCache = "mem://"
	// DefaultPubSub backs pub/sub with process-local fan-out.
	DefaultPubSub = "mem://"
	// DefaultBlob backs the blob store with process-local memory.
	DefaultBlob = "mem://"
	// DefaultEmail logs outgoing mail instead of delivering it.
	DefaultEmail = "log://"
	// DefaultSMS logs outgoing text messages instead of delivering them.
	DefaultSMS = "log://"
	// DefaultNotify logs push notifications instead of delivering them.
	DefaultNotify = "log://"
	// DefaultVector leaves the vector index disabled until configured.
	DefaultVector = ""
	// DefaultOTLPEndpoint disables trace export unless configured.
	DefaultOTLPEndpoint = ""
	// DefaultMetricsListen is the default metrics endpoint (Prometheus scrape).
	// Empty disables metrics unless explicitly configured.
	DefaultMetricsListen = ""
	// DefaultPprofListen is the default pprof debug listener (empty disables).
	DefaultPprofListen = ""
	// DefaultRetryAttempts bounds how often transient blob errors are retried.
	DefaultRetryAttempts = 4
	// DefaultRetryBaseDelay seeds the exponential backoff between retries.
	DefaultRetryBaseDelay = 50 * time.Millisecond
	// DefaultConfigFileName is the file looked up in the config directory.
	DefaultConfigFileName = "svckit.yaml"
)

// Config holds one settings URL per service plus the telemetry endpoints.
// Zero fields pick up their default tag via ApplyDefaults.
type Config struct {
	// Cache selects the cache driver (mem, redis, memcached, dynamodb).
	Cache string `mapstructure:"cache" default:"mem://"`
	// PubSub selects the pub/sub driver (mem, mqtt).
	PubSub string `mapstructure:"pubsub" default:"mem://"`
	// Blob selects the blob store driver (mem, disk, s3, azure).
	Blob string `mapstructure:"blob" default:"mem://"`
	// Email selects the email driver (log, smtp, ses).
	Email string `mapstructure:"email" default:"log://"`
	// SMS selects the SMS driver (log, twilio, sns).
	SMS string `mapstructure:"sms" default:"log://"`
	// Notify selects the push notification driver (log, fcm).
	Notify string `mapstructure:"notify" default:"log://"`
	// Vector selects the vector index driver (mem, pinecone). Empty disables.
	Vector string `mapstructure:"vector"`
	// OTLPEndpoint points traces at an OTLP collector. Accepts host:port
	// (grpc, insecure) or a grpc://, grpcs://, http://, https:// URL.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// MetricsListen exposes Prometheus metrics on this address when set.
	MetricsListen string `mapstructure:"metrics_listen"`
	// PprofListen exposes the pprof debug handlers on this address when set.
	PprofListen string `mapstructure:"pprof_listen"`
	// RuntimeMetrics adds Go runtime metrics to the metrics endpoint.
	RuntimeMetrics bool `mapstructure:"runtime_metrics"`
	// RetryAttempts bounds transient-error retries on the blob store.
	RetryAttempts int `mapstructure:"retry_attempts" default:"4"`
}

// ApplyDefaults fills zero fields from their default tags.
func (c *Config) ApplyDefaults() error {
	return fieldpath.ApplyDefaults(c)
}

// Instrumented reports whether any telemetry surface is configured.
func (c *Config) Instrumented() bool {
	return strings.TrimSpace(c.OTLPEndpoint) != "" || strings.TrimSpace(c.MetricsListen) != ""
}

// Validate checks that every configured settings URL parses.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		url  string
	}{
		{"cache", c.Cache},
		{"pubsub", c.PubSub},
		{"blob", c.Blob},
		{"email", c.Email},
		{"sms", c.SMS},
		{"notify", c.Notify},
		{"vector", c.Vector},
	}
	for _, check := range checks {
		if strings.TrimSpace(check.url) == "" {
			continue
		}
		if _, err := setting.Parse(check.url); err != nil {
			return fmt.Errorf("config: %s: %w", check.name, err)
		}
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("config: retry_attempts must be at least 1")
	}
	return nil
}

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(base, "svckit"), nil
}

// LoadConfig reads path (YAML) when non-empty, overlays SVCKIT_* environment
// variables, applies defaults and validates. An empty path loads from the
// environment alone.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SVCKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"cache", "pubsub", "blob", "email", "sms", "notify", "vector",
		"otlp_endpoint", "metrics_listen", "pprof_listen", "runtime_metrics",
		"retry_attempts",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
