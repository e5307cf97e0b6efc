package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		DatabasePath:       ".futarchy",
		BindAddr:           "0.0.0.0",
		MetricsPort:        12798,
		ShutdownTimeout:    DefaultShutdownTimeout,
		KeeperIdentity:     "keeper",
		KeeperInterval:     "1s",
		SponsorQuota:       3,
		SponsorQuotaWindow: "168h",
		EarlyResolve:       false,
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
databasePath: "/var/lib/futarchy"
bindAddr: "127.0.0.1"
metricsPort: 8088
shutdownTimeout: "10s"
keeperIdentity: "keeper-1"
keeperInterval: "500ms"
sponsorQuota: 5
sponsorQuotaWindow: "24h"
earlyResolve: true
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-futarchy.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	expected := &Config{
		DatabasePath:       "/var/lib/futarchy",
		BindAddr:           "127.0.0.1",
		MetricsPort:        8088,
		ShutdownTimeout:    "10s",
		KeeperIdentity:     "keeper-1",
		KeeperInterval:     "500ms",
		SponsorQuota:       5,
		SponsorQuotaWindow: "24h",
		EarlyResolve:       true,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	cfg, err := LoadConfig("nonexistent-but-explicit-means-error")
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}

	resetGlobalConfig()
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	expected := &Config{
		DatabasePath:       ".futarchy",
		BindAddr:           "0.0.0.0",
		MetricsPort:        12798,
		ShutdownTimeout:    DefaultShutdownTimeout,
		KeeperIdentity:     "keeper",
		KeeperInterval:     "1s",
		SponsorQuota:       3,
		SponsorQuotaWindow: "168h",
		EarlyResolve:       false,
	}

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			expected,
			cfg,
		)
	}
}

func TestLoad_DaoEntries(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
daos:
  - id: "b3c8f563-6b67-4b5c-8c40-1f6e44154fd1"
    config: "/etc/futarchy/daos/main.yaml"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-daos.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(cfg.Daos) != 1 {
		t.Fatalf("expected 1 DAO entry, got %d", len(cfg.Daos))
	}
	if cfg.Daos[0].Id != "b3c8f563-6b67-4b5c-8c40-1f6e44154fd1" {
		t.Errorf("unexpected DAO id: %s", cfg.Daos[0].Id)
	}
	if cfg.Daos[0].Config != "/etc/futarchy/daos/main.yaml" {
		t.Errorf("unexpected DAO config path: %s", cfg.Daos[0].Config)
	}
}
