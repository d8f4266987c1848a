package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration wraps time.Duration so JSON can specify intervals either as
// strings like "15s" or as integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer fields
// distinguish "absent" from zero values so the overlay only touches keys that
// are actually present in the file.
type JsonConfig struct {
	BaseURL           *string   `json:"base_url"`
	StreamURL         *string   `json:"stream_url"`
	DatabaseDSN       *string   `json:"database_dsn"`
	RequestTimeout    *Duration `json:"request_timeout"`
	TransportRetryMax *int      `json:"transport_retry_max"`
	TransportBackoff  *Duration `json:"transport_backoff"`
	QueueRetryMax     *int      `json:"queue_retry_max"`
	SyncWindow        *int      `json:"sync_window"`
	DefaultPageSize   *int      `json:"default_page_size"`
	ProbeInterval     *Duration `json:"probe_interval"`
}

// parseJson overlays cfg with values loaded from the JSON file at path.
// An empty path is a no-op.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if jc.BaseURL != nil {
		cfg.BaseURL = *jc.BaseURL
	}
	if jc.StreamURL != nil {
		cfg.StreamURL = *jc.StreamURL
	}
	if jc.DatabaseDSN != nil {
		cfg.DatabaseDSN = *jc.DatabaseDSN
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.TransportRetryMax != nil {
		cfg.TransportRetryMax = *jc.TransportRetryMax
	}
	if jc.TransportBackoff != nil {
		cfg.TransportBackoff = jc.TransportBackoff.Duration
	}
	if jc.QueueRetryMax != nil {
		cfg.QueueRetryMax = *jc.QueueRetryMax
	}
	if jc.SyncWindow != nil {
		cfg.SyncWindow = *jc.SyncWindow
	}
	if jc.DefaultPageSize != nil {
		cfg.DefaultPageSize = *jc.DefaultPageSize
	}
	if jc.ProbeInterval != nil {
		cfg.ProbeInterval = jc.ProbeInterval.Duration
	}
	return nil
}
