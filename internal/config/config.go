// Package config loads runtime configuration from a YAML file and
// environment variables. Retry policy overrides live in the same file under
// the "retries" section and are read by the retry package directly.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Externally visible API root, used in command result links
	BaseURL string

	// Shared secret guarding the internal tenant endpoints
	SystemSecret string

	// OTLP collector address for traces
	OTELEndpoint string

	// Per-user throttle for mutating requests; zero disables it
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Orchestrator engine tuning
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration
	HeartbeatInterval   time.Duration
	VisibilityExtension time.Duration
	SignalPollInterval  time.Duration
	MaxDeliveryAttempts int
	MonitorPollInterval time.Duration

	// Timeout for outbound provider command requests
	ProviderTimeout time.Duration
}

// Load reads configuration from the given file (or projectplane.yaml in the
// current directory) plus PROJECTPLANE_* environment variables. Environment
// variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("PROJECTPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_port", 6161)
	v.SetDefault("base_url", "http://localhost:6161")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("rate_limit.per_second", 0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("orchestrator.concurrency", 4)
	v.SetDefault("orchestrator.poll_interval", time.Second)
	v.SetDefault("orchestrator.max_backoff", 10*time.Second)
	v.SetDefault("orchestrator.heartbeat_interval", 15*time.Second)
	v.SetDefault("orchestrator.visibility_extension", time.Minute)
	v.SetDefault("orchestrator.signal_poll_interval", 2*time.Second)
	v.SetDefault("orchestrator.max_delivery_attempts", 5)
	v.SetDefault("orchestrator.monitor_poll_interval", 5*time.Second)
	v.SetDefault("provider.timeout", 60*time.Second)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("projectplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Retry policy overrides are read by the retry package from the global
	// viper instance.
	if retries := v.Get("retries"); retries != nil {
		viper.Set("retries", retries)
	}

	cfg := &Config{
		DatabaseURL:         v.GetString("database_url"),
		HTTPPort:            v.GetInt("http_port"),
		BaseURL:             v.GetString("base_url"),
		SystemSecret:        v.GetString("system_secret"),
		OTELEndpoint:        v.GetString("otel_endpoint"),
		RateLimitPerSecond:  v.GetFloat64("rate_limit.per_second"),
		RateLimitBurst:      v.GetInt("rate_limit.burst"),
		Concurrency:         v.GetInt("orchestrator.concurrency"),
		PollInterval:        v.GetDuration("orchestrator.poll_interval"),
		MaxBackoff:          v.GetDuration("orchestrator.max_backoff"),
		HeartbeatInterval:   v.GetDuration("orchestrator.heartbeat_interval"),
		VisibilityExtension: v.GetDuration("orchestrator.visibility_extension"),
		SignalPollInterval:  v.GetDuration("orchestrator.signal_poll_interval"),
		MaxDeliveryAttempts: v.GetInt("orchestrator.max_delivery_attempts"),
		MonitorPollInterval: v.GetDuration("orchestrator.monitor_poll_interval"),
		ProviderTimeout:     v.GetDuration("provider.timeout"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}

	return cfg, nil
}
