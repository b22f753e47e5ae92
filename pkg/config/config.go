package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/formsync/internal/bytesize"
	"github.com/marmos91/formsync/pkg/api"
)

// Config represents the formsync configuration shared by the SDK and the
// formsctl CLI.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FORMSYNC_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the forms platform REST API
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Storage selects the local key-value backend
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Upload configures blob storage uploads
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Sync configures connectivity detection and background runs
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Agent configures the status server of the background agent
	Agent api.ServerConfig `mapstructure:"agent" yaml:"agent"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig controls Prometheus metrics. When enabled, metrics are
// served by the agent's status server on /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the forms platform REST API client.
type APIConfig struct {
	// BaseURL is the API origin, e.g. https://api.example.com
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// Timeout bounds every API request
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0" yaml:"timeout"`
}

// Storage backend types.
const (
	StorageMemory   = "memory"
	StorageBadger   = "badger"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// StorageConfig selects where queued submissions and drafts are kept.
type StorageConfig struct {
	// Type is the backend: memory, badger, sqlite or postgres
	// Default: badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sqlite postgres" yaml:"type"`

	// Path is the badger directory or the sqlite file
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// ChunkThreshold is the string length above which a value is split
	// into child records
	// Default: 25000
	ChunkThreshold int `mapstructure:"chunk_threshold" validate:"gte=0" yaml:"chunk_threshold"`

	// Postgres is used when Type is postgres
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host,omitempty"`
	Port         int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`
	Database     string `mapstructure:"database" yaml:"database,omitempty"`
	User         string `mapstructure:"user" yaml:"user,omitempty"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full" yaml:"sslmode,omitempty"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty"`
}

// UploadConfig configures blob storage uploads.
type UploadConfig struct {
	// PartSize is the multipart threshold and part size
	// Supports human-readable formats: "5MiB", "8MB"
	// Default: 5MiB
	PartSize bytesize.ByteSize `mapstructure:"part_size" yaml:"part_size"`

	// Endpoint overrides the S3 endpoint (MinIO, Localstack)
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint,omitempty"`

	// ForcePathStyle forces path-style addressing
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// SyncConfig configures connectivity detection and the background agent.
type SyncConfig struct {
	// Interval is the time between background drains and syncs
	// Default: 5m
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`

	// ProbeURL is requested to decide whether the device is online
	// Default: <api.base_url>/health
	ProbeURL string `mapstructure:"probe_url" validate:"omitempty,url" yaml:"probe_url,omitempty"`

	// ProbeTimeout bounds the connectivity probe
	// Default: 3s
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"gte=0" yaml:"probe_timeout"`

	// ProbeInterval is how often the agent checks connectivity
	// Default: 15s
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"gte=0" yaml:"probe_interval"`

	// NetworkClass reports the effective connection type to the uploader
	// Valid values: slow-2g, 2g, 3g, 4g or empty (unknown)
	NetworkClass string `mapstructure:"network_class" validate:"omitempty,oneof=slow-2g 2g 3g 4g" yaml:"network_class,omitempty"`

	// FormsAppIDs are the apps whose drafts the agent keeps in sync
	FormsAppIDs []int64 `mapstructure:"forms_app_ids" yaml:"forms_app_ids,omitempty"`
}

// envKeys are bound explicitly so they apply even without a config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"api.base_url",
	"api.timeout",
	"storage.type",
	"storage.path",
	"sync.network_class",
	"metrics.enabled",
	"telemetry.enabled",
	"telemetry.endpoint",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FORMSYNC_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, failing with instructions when an explicit
// config file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  formsctl config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold a database password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: FORMSYNC_API_BASE_URL=https://api.example.com
	v.SetEnvPrefix("FORMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/formsync/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks lets files write "30s" for durations, "8Mi" for sizes
// and "1,2" for id lists. Bare numbers decode natively.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// getConfigDir is $XDG_CONFIG_HOME/formsync, ~/.config/formsync without
// it, or the working directory when there is no home.
func getConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "formsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
