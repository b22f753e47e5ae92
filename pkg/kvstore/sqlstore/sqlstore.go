// Package sqlstore provides a kvstore backend on a SQL database through
// GORM. SQLite (pure Go) is the default; PostgreSQL is supported for agents
// that share one queue across processes.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/kvstore"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses a local SQLite file (default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string // disable, require, verify-ca, verify-full
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += " sslmode=" + c.SSLMode
	}
	return dsn
}

// Config contains database configuration.
type Config struct {
	Type DatabaseType

	// SQLitePath is the database file. ":memory:" opens a private
	// in-memory database.
	SQLitePath string

	Postgres PostgresConfig
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLitePath == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.SQLitePath = filepath.Join(configDir, "formsync", "formsync.db")
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 10
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 2
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return errors.New("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return errors.New("postgres database is required")
		}
		if c.Postgres.User == "" {
			return errors.New("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// KVRecord is the table row. Namespace and key form the primary key.
type KVRecord struct {
	Namespace string `gorm:"primaryKey;size:128"`
	Key       string `gorm:"primaryKey;size:512"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName returns the table name for KVRecord.
func (KVRecord) TableName() string {
	return "kv_records"
}

// Provider owns the database connection.
type Provider struct {
	db     *gorm.DB
	dbType DatabaseType
}

// Open connects to the database and migrates the schema.
func Open(cfg Config) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case DatabaseTypeSQLite:
		dsn := cfg.SQLitePath
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			// WAL for concurrent readers; wait on a locked database instead
			// of failing immediately.
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	if cfg.Type == DatabaseTypePostgres {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	} else {
		// A single writer keeps SQLite from returning SQLITE_BUSY and makes
		// ":memory:" databases shared across the pool.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&KVRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Debug("SQL store opened", logger.KeyBackend, string(cfg.Type))
	return &Provider{db: db, dbType: cfg.Type}, nil
}

// Name implements kvstore.Provider.
func (p *Provider) Name() string { return string(p.dbType) }

// Backend returns the namespace view.
func (p *Provider) Backend(namespace string) (kvstore.Backend, error) {
	if namespace == "" {
		return nil, errors.New("sqlstore: namespace is required")
	}
	return &Backend{db: p.db, namespace: namespace}, nil
}

// Close closes the database connection.
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Backend is one namespace of the kv_records table.
type Backend struct {
	db        *gorm.DB
	namespace string
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.db.WithContext(ctx).
		Model(&KVRecord{}).
		Where("namespace = ?", b.namespace).
		Order("key").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

func (b *Backend) GetRecord(ctx context.Context, key string) (*kvstore.Record, error) {
	var row KVRecord
	err := b.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", b.namespace, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return &kvstore.Record{Key: row.Key, Value: row.Value}, nil
}

// PutRecord upserts the row.
func (b *Backend) PutRecord(ctx context.Context, rec kvstore.Record) error {
	row := KVRecord{
		Namespace: b.namespace,
		Key:       rec.Key,
		Value:     rec.Value,
		UpdatedAt: time.Now(),
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return classify(fmt.Errorf("failed to put %q: %w", rec.Key, err))
	}
	return nil
}

func (b *Backend) DeleteRecord(ctx context.Context, key string) error {
	err := b.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", b.namespace, key).
		Delete(&KVRecord{}).Error
	if err != nil {
		return classify(fmt.Errorf("failed to delete %q: %w", key, err))
	}
	return nil
}

// Close is a no-op; the Provider owns the connection.
func (b *Backend) Close() error { return nil }

func classify(err error) error {
	if apperror.IsCapacityMessage(err.Error()) {
		return apperror.Capacity(err)
	}
	return err
}
