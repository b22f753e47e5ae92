package config

import (
	"fmt"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/kvstore/badger"
	"github.com/marmos91/formsync/pkg/kvstore/memory"
	"github.com/marmos91/formsync/pkg/kvstore/sqlstore"
	"github.com/marmos91/formsync/pkg/objectstore"
)

// OpenStorage opens the key-value provider selected by cfg.
func OpenStorage(cfg StorageConfig) (kvstore.Provider, error) {
	switch cfg.Type {
	case StorageMemory:
		return memory.NewProvider(), nil
	case StorageBadger:
		p, err := badger.Open(badger.Config{Path: cfg.Path})
		if err != nil {
			return nil, err
		}
		return p, nil
	case StorageSQLite:
		return openSQL(sqlstore.Config{
			Type:       sqlstore.DatabaseTypeSQLite,
			SQLitePath: cfg.Path,
		})
	case StoragePostgres:
		pg := cfg.Postgres
		return openSQL(sqlstore.Config{
			Type: sqlstore.DatabaseTypePostgres,
			Postgres: sqlstore.PostgresConfig{
				Host:         pg.Host,
				Port:         pg.Port,
				Database:     pg.Database,
				User:         pg.User,
				Password:     pg.Password,
				SSLMode:      pg.SSLMode,
				MaxOpenConns: pg.MaxOpenConns,
				MaxIdleConns: pg.MaxIdleConns,
			},
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func openSQL(cfg sqlstore.Config) (kvstore.Provider, error) {
	p, err := sqlstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LoggerConfig converts the logging section for logger.Init.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Logging.Level, Format: c.Logging.Format, Output: c.Logging.Output}
}

// TelemetryConfig converts the telemetry section for telemetry.Init.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "formsync",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// S3ClientConfig converts the upload section for the S3 client factory.
func (c *Config) S3ClientConfig() objectstore.ClientConfig {
	return objectstore.ClientConfig{Endpoint: c.Upload.Endpoint, ForcePathStyle: c.Upload.ForcePathStyle}
}

// Probe builds the connectivity probe described by the sync section.
func (c *Config) Probe() environment.Probe {
	return environment.NewHTTPProbe(c.Sync.ProbeURL, c.Sync.ProbeTimeout, environment.ParseNetworkClass(c.Sync.NetworkClass))
}
