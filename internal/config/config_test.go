package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("PROJECTPLANE_DATABASE_URL", "")

	_, err := Load("")
	if err == nil {
		t.Error("expected error when database_url is missing")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("PROJECTPLANE_DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 6161 {
		t.Errorf("expected HTTPPort 6161, got %d", cfg.HTTPPort)
	}
	if cfg.BaseURL != "http://localhost:6161" {
		t.Errorf("expected BaseURL http://localhost:6161, got %s", cfg.BaseURL)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("expected Concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("expected PollInterval 1s, got %v", cfg.PollInterval)
	}
	if cfg.MaxDeliveryAttempts != 5 {
		t.Errorf("expected MaxDeliveryAttempts 5, got %d", cfg.MaxDeliveryAttempts)
	}
	if cfg.MonitorPollInterval != 5*time.Second {
		t.Errorf("expected MonitorPollInterval 5s, got %v", cfg.MonitorPollInterval)
	}
	if cfg.ProviderTimeout != 60*time.Second {
		t.Errorf("expected ProviderTimeout 60s, got %v", cfg.ProviderTimeout)
	}
	if cfg.OTELEndpoint != "localhost:4317" {
		t.Errorf("expected OTELEndpoint localhost:4317, got %s", cfg.OTELEndpoint)
	}
	if cfg.RateLimitPerSecond != 0 {
		t.Errorf("expected rate limiting off by default, got %v", cfg.RateLimitPerSecond)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("PROJECTPLANE_DATABASE_URL", "postgres://custom/db")
	t.Setenv("PROJECTPLANE_HTTP_PORT", "9999")
	t.Setenv("PROJECTPLANE_ORCHESTRATOR_CONCURRENCY", "8")
	t.Setenv("PROJECTPLANE_ORCHESTRATOR_POLL_INTERVAL", "2s")
	t.Setenv("PROJECTPLANE_SYSTEM_SECRET", "s3cret")
	t.Setenv("PROJECTPLANE_OTEL_ENDPOINT", "otel-collector:4317")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://custom/db" {
		t.Errorf("expected DatabaseURL from env, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 9999 {
		t.Errorf("expected HTTPPort 9999, got %d", cfg.HTTPPort)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected Concurrency 8, got %d", cfg.Concurrency)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("expected PollInterval 2s, got %v", cfg.PollInterval)
	}
	if cfg.SystemSecret != "s3cret" {
		t.Errorf("expected SystemSecret from env, got %s", cfg.SystemSecret)
	}
	if cfg.OTELEndpoint != "otel-collector:4317" {
		t.Errorf("expected OTELEndpoint otel-collector:4317, got %s", cfg.OTELEndpoint)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "projectplane-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	configContent := `
database_url: "postgres://config-file/db"
http_port: 7777
base_url: "https://api.example.com"
orchestrator:
  concurrency: 16
retries:
  cloud:
    max_attempts: 9
`
	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	tmpFile.Close()

	t.Setenv("PROJECTPLANE_DATABASE_URL", "")
	t.Setenv("PROJECTPLANE_HTTP_PORT", "")
	t.Cleanup(func() { viper.Set("retries", nil) })

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://config-file/db" {
		t.Errorf("expected DatabaseURL from config file, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 7777 {
		t.Errorf("expected HTTPPort 7777, got %d", cfg.HTTPPort)
	}
	if cfg.BaseURL != "https://api.example.com" {
		t.Errorf("expected BaseURL from config file, got %s", cfg.BaseURL)
	}
	if cfg.Concurrency != 16 {
		t.Errorf("expected Concurrency 16, got %d", cfg.Concurrency)
	}

	// The retries section lands in the global viper for the retry package.
	if got := viper.GetInt("retries.cloud.max_attempts"); got != 9 {
		t.Errorf("retry override not forwarded: %d", got)
	}
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "projectplane-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	configContent := `
database_url: "postgres://from-file/db"
http_port: 7777
`
	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	tmpFile.Close()

	t.Setenv("PROJECTPLANE_DATABASE_URL", "postgres://from-env/db")
	t.Setenv("PROJECTPLANE_HTTP_PORT", "8888")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://from-env/db" {
		t.Errorf("expected DatabaseURL from env, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 8888 {
		t.Errorf("expected HTTPPort 8888 from env, got %d", cfg.HTTPPort)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	t.Setenv("PROJECTPLANE_DATABASE_URL", "postgres://localhost/test")

	_, err := Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent config file")
	}
}
