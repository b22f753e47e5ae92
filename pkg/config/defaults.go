package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/formsync/internal/bytesize"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/objectstore"
)

// DefaultBaseURL is the API used when none is configured.
const DefaultBaseURL = "http://localhost:8080"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyAPIDefaults(&cfg.API)
	applyStorageDefaults(&cfg.Storage)
	applyUploadDefaults(&cfg.Upload)
	applySyncDefaults(&cfg.Sync, cfg.API)
	cfg.Agent.ApplyDefaults()
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

// applyStorageDefaults picks badger under the config directory.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = StorageBadger
	}
	cfg.Type = strings.ToLower(cfg.Type)
	if cfg.Path == "" {
		switch cfg.Type {
		case StorageBadger:
			cfg.Path = filepath.Join(getConfigDir(), "data")
		case StorageSQLite:
			cfg.Path = filepath.Join(getConfigDir(), "formsync.db")
		}
	}
	if cfg.ChunkThreshold == 0 {
		cfg.ChunkThreshold = kvstore.DefaultThreshold
	}
	if cfg.Type == StoragePostgres {
		if cfg.Postgres.Port == 0 {
			cfg.Postgres.Port = 5432
		}
		if cfg.Postgres.SSLMode == "" {
			cfg.Postgres.SSLMode = "disable"
		}
	}
}

func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.PartSize == 0 {
		cfg.PartSize = bytesize.ByteSize(objectstore.DefaultPartSize)
	}
}

func applySyncDefaults(cfg *SyncConfig, api APIConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ProbeURL == "" && api.BaseURL != "" {
		cfg.ProbeURL = api.BaseURL + "/health"
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	cfg.NetworkClass = strings.ToLower(cfg.NetworkClass)
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
