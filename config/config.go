// Package config handles configuration for the sync engine, including
// defaults, JSON overlay, and environment variables.
package config

import "time"

// Config holds runtime settings for the sync engine.
//
// Fields:
//   - BaseURL: root URL of the SRP backend REST API.
//   - StreamURL: URL of the realtime push channel (SSE endpoint).
//   - DatabaseDSN: SQLite DSN for the local cache (file path or ":memory:").
//   - RequestTimeout: per-call connect/receive deadline for gateway requests.
//   - TransportRetryMax: attempt ceiling for the gateway's in-call retry.
//   - TransportBackoff: linear backoff unit (wait = unit × attempt number).
//   - QueueRetryMax: per-mutation retry ceiling across sync cycles.
//   - SyncWindow: how many recent records a reconciliation pull fetches.
//   - DefaultPageSize: page size used for list reads when callers pass 0.
//   - ProbeInterval: how often the connectivity monitor probes the server.
type Config struct {
	BaseURL           string
	StreamURL         string
	DatabaseDSN       string
	RequestTimeout    time.Duration
	TransportRetryMax int
	TransportBackoff  time.Duration
	QueueRetryMax     int
	SyncWindow        int
	DefaultPageSize   int
	ProbeInterval     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://127.0.0.1:8080"
	c.StreamURL = "http://127.0.0.1:8080/api/v1/events"
	c.DatabaseDSN = "srpsync.db"
	c.RequestTimeout = 15 * time.Second
	c.TransportRetryMax = 3
	c.TransportBackoff = 1 * time.Second
	c.QueueRetryMax = 3
	c.SyncWindow = 50
	c.DefaultPageSize = 20
	c.ProbeInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a JSON file (if jsonPath is non-empty) and environment variables. Later
// sources take precedence over earlier ones.
func LoadConfig(jsonPath string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, jsonPath); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
