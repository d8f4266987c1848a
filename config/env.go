package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// parseEnv populates selected Config fields from environment variables.
//
// Supported variables:
//
//	SRPSYNC_BASE_URL          root URL of the backend API
//	SRPSYNC_STREAM_URL        realtime push channel URL
//	SRPSYNC_DATABASE_DSN      local cache DSN
//	SRPSYNC_REQUEST_TIMEOUT   per-call deadline (e.g. "15s")
//	SRPSYNC_PROBE_INTERVAL    connectivity probe interval (e.g. "30s")
func parseEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("SRPSYNC_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv("SRPSYNC_STREAM_URL"); ok {
		cfg.StreamURL = v
	}
	if v, ok := os.LookupEnv("SRPSYNC_DATABASE_DSN"); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("SRPSYNC_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SRPSYNC_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v, ok := os.LookupEnv("SRPSYNC_PROBE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SRPSYNC_PROBE_INTERVAL: %w", err)
		}
		cfg.ProbeInterval = d
	}
	if v, ok := os.LookupEnv("SRPSYNC_SYNC_WINDOW"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SRPSYNC_SYNC_WINDOW: %w", err)
		}
		cfg.SyncWindow = n
	}
	return nil
}
