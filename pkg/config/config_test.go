package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive, got %d", c.Port)
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_NAME", "from-env")
	path := writeConfig(t, "name: ${TEST_CFG_NAME}\nport: 9000\n")

	cfg := &testConfig{}
	if err := Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q, want env expansion", cfg.Name)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeConfig(t, "name: x\nport: -1\n")

	cfg := &testConfig{}
	if err := Load(path, cfg); err == nil {
		t.Fatal("invalid config should fail Load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := &testConfig{}
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err == nil {
		t.Fatal("missing file should fail Load")
	}
}

func TestLoadIfPresentKeepsDefaults(t *testing.T) {
	cfg := &testConfig{Name: "default", Port: 8080}
	if err := LoadIfPresent(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err != nil {
		t.Fatalf("LoadIfPresent: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 8080 {
		t.Errorf("defaults mutated: %+v", cfg)
	}
}

func TestLoadIfPresentStillValidates(t *testing.T) {
	cfg := &testConfig{Name: "default", Port: 0}
	if err := LoadIfPresent(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err == nil {
		t.Fatal("invalid defaults should fail validation")
	}
}

func TestLoadIfPresentReadsExistingFile(t *testing.T) {
	path := writeConfig(t, "name: from-file\nport: 7000\n")

	cfg := &testConfig{Name: "default", Port: 8080}
	if err := LoadIfPresent(path, cfg); err != nil {
		t.Fatalf("LoadIfPresent: %v", err)
	}
	if cfg.Name != "from-file" || cfg.Port != 7000 {
		t.Errorf("file values not applied: %+v", cfg)
	}
}
