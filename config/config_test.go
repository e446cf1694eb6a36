package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
engine:
  upload_endpoint: "https://telemetry.example.com/v1/batches"
  batch_size: 50
  flush_interval: 10s
  sampling_rate: 0.5
  max_retries: 5
  auth:
    mode: apikey
    header: x-api-key
    key_env: TP_API_KEY
server:
  http_port: 9090
  broadcast_interval: 2s
`
	cfg := loadFromString(t, yaml)

	if cfg.Engine.UploadEndpoint != "https://telemetry.example.com/v1/batches" {
		t.Errorf("upload_endpoint: got %q", cfg.Engine.UploadEndpoint)
	}
	if cfg.Engine.BatchSize != 50 {
		t.Errorf("batch_size: got %d", cfg.Engine.BatchSize)
	}
	if cfg.Engine.FlushInterval != 10*time.Second {
		t.Errorf("flush_interval: got %v", cfg.Engine.FlushInterval)
	}
	if cfg.Engine.SamplingRate != 0.5 {
		t.Errorf("sampling_rate: got %v", cfg.Engine.SamplingRate)
	}
	if cfg.Engine.MaxRetries != 5 {
		t.Errorf("max_retries: got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("http_port: got %d", cfg.Server.HTTPPort)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "engine: {}\n")

	if cfg.Engine.BatchSize != DefaultBatchSize {
		t.Errorf("default batch_size: got %d, want %d", cfg.Engine.BatchSize, DefaultBatchSize)
	}
	if cfg.Engine.FlushInterval != DefaultFlushInterval {
		t.Errorf("default flush_interval: got %v, want %v", cfg.Engine.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Engine.SamplingRate != DefaultSamplingRate {
		t.Errorf("default sampling_rate: got %v, want %v", cfg.Engine.SamplingRate, DefaultSamplingRate)
	}
	if cfg.Engine.MinRunsForScore != DefaultMinRunsForScore {
		t.Errorf("default min_runs_for_score: got %d, want %d", cfg.Engine.MinRunsForScore, DefaultMinRunsForScore)
	}
	if cfg.Engine.HistoryCapacity != DefaultHistoryCapacity {
		t.Errorf("default history_capacity: got %d, want %d", cfg.Engine.HistoryCapacity, DefaultHistoryCapacity)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"sampling rate above one", "engine:\n  sampling_rate: 1.5\n"},
		{"negative sampling rate", "engine:\n  sampling_rate: -0.1\n"},
		{"zero batch size", "engine:\n  batch_size: -1\n"},
		{"history smaller than gate", "engine:\n  history_capacity: 5\n"},
		{"unknown engine auth mode", "engine:\n  auth:\n    mode: magictoken\n"},
		{"unknown server auth mode", "server:\n  auth:\n    mode: mtls\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: lowscore\n"},
		{"unknown webhook type", "server:\n  alerts:\n    webhooks:\n      - type: carrierpigeon\n"},
		{"unknown rule severity", "server:\n  alerts:\n    rules:\n      - name: r\n        condition: \"score < 0.5\"\n        severity: meh\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_AlertRules(t *testing.T) {
	yaml := `
server:
  alerts:
    rules:
      - name: low-confidence
        condition: "score < 0.5"
        severity: warning
        cooldown: 30m
    webhooks:
      - type: slack
        url_env: SLACK_URL
`
	cfg := loadFromString(t, yaml)
	if len(cfg.Server.Alerts.Rules) != 1 {
		t.Fatalf("rules: got %d, want 1", len(cfg.Server.Alerts.Rules))
	}
	r := cfg.Server.Alerts.Rules[0]
	if r.Cooldown != 30*time.Minute {
		t.Errorf("cooldown: got %v", r.Cooldown)
	}
	if cfg.Server.Alerts.Webhooks[0].Type != "slack" {
		t.Errorf("webhook type: got %q", cfg.Server.Alerts.Webhooks[0].Type)
	}
}

func TestAuthConfig_SecretsFromEnv(t *testing.T) {
	t.Setenv("TP_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TP_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}

	t.Setenv("TP_TOKEN", "mytoken")
	b := AuthConfig{Mode: "bearer", TokenEnv: "TP_TOKEN"}
	if got := b.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q", got)
	}

	if got := (AuthConfig{Mode: "apikey"}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("SLACK_URL", "https://hooks.slack.example.com/T000")
	w := WebhookConfig{Type: "slack", URLEnv: "SLACK_URL"}
	if got := w.URL(); got != "https://hooks.slack.example.com/T000" {
		t.Errorf("URL(): got %q", got)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
