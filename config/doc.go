// Package config loads and watches the testpulse configuration file
// (config.yaml).
//
// Top-level types:
//   - Config{Engine, Server} — full config tree parsed from YAML
//   - EngineConfig — upload endpoint, batch_size, flush_interval,
//     sampling_rate, max_retries, upload_timeout, max_payload_bytes,
//     min_runs_for_score, recent_window_size, history_capacity,
//     recompute_every, shutdown_grace, auth, tls
//   - AuthConfig — mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env; Key(), Token() and
//     Password() resolve secrets from environment variables
//   - ServerConfig — http_port, broadcast_interval, auth, alerts
//
// Load(path) reads the YAML file, applies defaults (batch 100, flush 30s,
// sampling 1.0, 10-run score gate, 100-run windows), then validates required
// fields and ranges.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors by re-adding the watch after each reload.
package config
