package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/formsync/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"

api:
  base_url: "https://forms.example.com/"
  timeout: 10s

storage:
  type: memory

upload:
  part_size: 8Mi

sync:
  interval: 1m
  forms_app_ids: [12, 34]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.API.BaseURL != "https://forms.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", cfg.API.Timeout)
	}
	if cfg.Storage.Type != StorageMemory {
		t.Errorf("Expected storage 'memory', got %q", cfg.Storage.Type)
	}
	if cfg.Upload.PartSize != 8*bytesize.MiB {
		t.Errorf("Expected part size 8Mi, got %v", cfg.Upload.PartSize)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Expected sync interval 1m, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.ProbeURL != "https://forms.example.com/health" {
		t.Errorf("Expected probe URL derived from base URL, got %q", cfg.Sync.ProbeURL)
	}
	if len(cfg.Sync.FormsAppIDs) != 2 || cfg.Sync.FormsAppIDs[1] != 34 {
		t.Errorf("Expected forms app ids [12 34], got %v", cfg.Sync.FormsAppIDs)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL %q, got %q", DefaultBaseURL, cfg.API.BaseURL)
	}
	if cfg.Agent.Port != 9464 {
		t.Errorf("Expected default agent port 9464, got %d", cfg.Agent.Port)
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, `
storage:
  type: cassandra
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown storage type")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("FORMSYNC_LOGGING_LEVEL", "ERROR")
	t.Setenv("FORMSYNC_API_BASE_URL", "https://env.example.com")
	t.Setenv("FORMSYNC_STORAGE_TYPE", "memory")

	configPath := writeConfig(t, `
logging:
  level: "INFO"

api:
  base_url: "https://file.example.com"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("Expected base URL from env var, got %q", cfg.API.BaseURL)
	}
	if cfg.Storage.Type != StorageMemory {
		t.Errorf("Expected storage type from env var, got %q", cfg.Storage.Type)
	}
}

func TestLoad_EnvironmentWithoutFile(t *testing.T) {
	t.Setenv("FORMSYNC_API_BASE_URL", "https://env.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("Expected base URL from env var, got %q", cfg.API.BaseURL)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Type = StorageMemory
	cfg.Upload.PartSize = 6 * bytesize.MiB
	cfg.Sync.FormsAppIDs = []int64{7}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Upload.PartSize != 6*bytesize.MiB {
		t.Errorf("Expected part size 6Mi, got %v", loaded.Upload.PartSize)
	}
	if len(loaded.Sync.FormsAppIDs) != 1 || loaded.Sync.FormsAppIDs[0] != 7 {
		t.Errorf("Expected forms app ids [7], got %v", loaded.Sync.FormsAppIDs)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := GetConfigDir()
	if filepath.Base(dir) != "formsync" {
		t.Errorf("Expected directory name 'formsync', got %q", filepath.Base(dir))
	}
	if DefaultConfigExists() {
		t.Error("Expected no config in a fresh XDG_CONFIG_HOME")
	}
}

func TestOpenStorage_Memory(t *testing.T) {
	provider, err := OpenStorage(StorageConfig{Type: StorageMemory})
	if err != nil {
		t.Fatalf("OpenStorage failed: %v", err)
	}
	defer func() { _ = provider.Close() }()
}

func TestOpenStorage_Unknown(t *testing.T) {
	if _, err := OpenStorage(StorageConfig{Type: "cassandra"}); err == nil {
		t.Fatal("Expected error for unknown storage type")
	}
}
