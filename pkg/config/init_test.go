package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_DefaultLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if path != GetDefaultConfigPath() {
		t.Errorf("InitConfig wrote %s, want %s", path, GetDefaultConfigPath())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	for _, section := range []string{"# formsync configuration file", "api:", "storage:", "upload:", "sync:", "agent:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("generated config lacks %q", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("generated config is not YAML: %v", err)
	}

	if _, err := InitConfig(false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second InitConfig should refuse to overwrite, got %v", err)
	}
	if _, err := InitConfig(true); err != nil {
		t.Errorf("InitConfig with force failed: %v", err)
	}
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "formsync.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("api: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := InitConfigToPath(path, false); err == nil {
		t.Fatal("expected existing file to be kept without force")
	}

	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) == "api: {}\n" {
		t.Error("force did not replace the file")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := MustLoad(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	defaults := GetDefaultConfig()
	if cfg.API.BaseURL != defaults.API.BaseURL {
		t.Errorf("base URL = %q, want %q", cfg.API.BaseURL, defaults.API.BaseURL)
	}
	if cfg.Storage.Type != defaults.Storage.Type {
		t.Errorf("storage type = %q, want %q", cfg.Storage.Type, defaults.Storage.Type)
	}
	if cfg.Upload.PartSize != defaults.Upload.PartSize {
		t.Errorf("part size = %v, want %v", cfg.Upload.PartSize, defaults.Upload.PartSize)
	}
}

func TestGeneratedConfigIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}
