package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 30 * time.Second
	DefaultSamplingRate     = 1.0
	DefaultMaxRetries       = 3
	DefaultUploadTimeout    = 10 * time.Second
	DefaultMaxPayloadBytes  = 1 << 20 // 1 MiB
	DefaultMinRunsForScore  = 10
	DefaultRecentWindowSize = 50
	DefaultHistoryCapacity  = 100
	DefaultRecomputeEvery   = 5
	DefaultShutdownGrace    = 5 * time.Second
	DefaultHTTPPort         = 8080
	DefaultBroadcastEvery   = 5 * time.Second
)

// Config is the top-level configuration for the engine and the optional
// query server. Fields map 1:1 to config.example.yaml.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Server ServerConfig `yaml:"server"`
}

// EngineConfig holds every knob the collection and scoring core consumes.
type EngineConfig struct {
	// UploadEndpoint is the URL batches are POSTed to. Empty disables the
	// upload path entirely (records still feed history and scoring).
	UploadEndpoint string `yaml:"upload_endpoint"`

	// BatchSize is the buffered-record count that triggers a flush.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval bounds batch staleness: a timer drains the buffer this
	// often even when BatchSize is never reached.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// SamplingRate is the Bernoulli keep-probability applied on the upload
	// path. 1.0 keeps everything. Scoring is unaffected by sampling.
	SamplingRate float64 `yaml:"sampling_rate"`

	// MaxRetries is the per-chunk retry ceiling for transient upload failures.
	MaxRetries int `yaml:"max_retries"`

	// UploadTimeout is the per-attempt deadline; a timeout counts as a
	// transient failure.
	UploadTimeout time.Duration `yaml:"upload_timeout"`

	// MaxPayloadBytes chunks oversized batches into independently retried
	// sub-batches before sending.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// MinRunsForScore gates scoring: below this run count the confidence
	// score is undefined.
	MinRunsForScore int `yaml:"min_runs_for_score"`

	// RecentWindowSize is the most-recent-run slice used for recency
	// weighting once a window exceeds it.
	RecentWindowSize int `yaml:"recent_window_size"`

	// HistoryCapacity is the fixed per-test run window size.
	HistoryCapacity int `yaml:"history_capacity"`

	// RecomputeEvery recomputes a test's score on every Kth observed run
	// (and always when the run count reaches MinRunsForScore).
	RecomputeEvery int `yaml:"recompute_every"`

	// ShutdownGrace bounds the best-effort final flush on Close. Records
	// still unsent when it expires are dropped, never awaited forever.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// Auth configures how the uploader authenticates to the endpoint.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds uploader TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies an authentication mode and its secrets. Secret values
// are resolved from environment variables so the YAML file stays shareable.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields — used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields — used when Mode == "apikey".
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`

	// Bearer token — used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth — used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds uploader TLS options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this against internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFile adds a custom root CA for the upload endpoint.
	CAFile string `yaml:"ca_file"`
}

// ServerConfig holds the optional query-surface settings used by testpulsed.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval is how often the WebSocket hub pushes the current
	// confidence snapshot to connected clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Auth configures REST API authentication.
	Auth ServerAuthConfig `yaml:"auth"`

	// Alerts holds alerting rule and webhook delivery configuration.
	Alerts AlertsConfig `yaml:"alerts"`
}

// ServerAuthConfig configures REST API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the header the key arrives in (default "x-api-key").
	Header string `yaml:"header"`

	// KeyEnv names the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the server API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert over published confidence results.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "score < 0.5" or
	// "trend == significant_degradation".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires per (rule, test) for this duration.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. Embedders that
// construct the engine without a config file start from this.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			BatchSize:        DefaultBatchSize,
			FlushInterval:    DefaultFlushInterval,
			SamplingRate:     DefaultSamplingRate,
			MaxRetries:       DefaultMaxRetries,
			UploadTimeout:    DefaultUploadTimeout,
			MaxPayloadBytes:  DefaultMaxPayloadBytes,
			MinRunsForScore:  DefaultMinRunsForScore,
			RecentWindowSize: DefaultRecentWindowSize,
			HistoryCapacity:  DefaultHistoryCapacity,
			RecomputeEvery:   DefaultRecomputeEvery,
			ShutdownGrace:    DefaultShutdownGrace,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastEvery,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	e := cfg.Engine
	if e.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be positive")
	}
	if e.FlushInterval <= 0 {
		return fmt.Errorf("engine.flush_interval must be positive")
	}
	if e.SamplingRate < 0 || e.SamplingRate > 1 {
		return fmt.Errorf("engine.sampling_rate must be in [0,1], got %v", e.SamplingRate)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if e.UploadTimeout <= 0 {
		return fmt.Errorf("engine.upload_timeout must be positive")
	}
	if e.MaxPayloadBytes <= 0 {
		return fmt.Errorf("engine.max_payload_bytes must be positive")
	}
	if e.MinRunsForScore <= 0 {
		return fmt.Errorf("engine.min_runs_for_score must be positive")
	}
	if e.RecentWindowSize <= 0 {
		return fmt.Errorf("engine.recent_window_size must be positive")
	}
	if e.HistoryCapacity < e.MinRunsForScore {
		return fmt.Errorf("engine.history_capacity (%d) must be at least min_runs_for_score (%d)",
			e.HistoryCapacity, e.MinRunsForScore)
	}
	if e.RecomputeEvery <= 0 {
		return fmt.Errorf("engine.recompute_every must be positive")
	}
	switch e.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("engine.auth: unknown mode %q", e.Auth.Mode)
	}

	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in (0,65535], got %d", s.HTTPPort)
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth: unknown mode %q", s.Auth.Mode)
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "teams", "slack", "pagerduty", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
