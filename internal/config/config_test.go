package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Backend.Timeout != "30s" {
		t.Errorf("Backend.Timeout = %q, want %q", cfg.Backend.Timeout, "30s")
	}
	if cfg.Tenant.DefaultID != "default" {
		t.Errorf("Tenant.DefaultID = %q, want %q", cfg.Tenant.DefaultID, "default")
	}
	if cfg.Metrics.RingBufferCapacity != 500 {
		t.Errorf("Metrics.RingBufferCapacity = %d, want 500", cfg.Metrics.RingBufferCapacity)
	}
	if cfg.Benchmark.MaxConcurrentSamples != 10 {
		t.Errorf("Benchmark.MaxConcurrentSamples = %d, want 10", cfg.Benchmark.MaxConcurrentSamples)
	}
	if cfg.Benchmark.BatchSize != 50 {
		t.Errorf("Benchmark.BatchSize = %d, want 50", cfg.Benchmark.BatchSize)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:    ServerConfig{HTTPAddr: ":9090"},
		Backend:   BackendConfig{URL: "http://backend:9000/chat", Timeout: "5s"},
		Tenant:    TenantConfig{DefaultID: "acme"},
		Benchmark: BenchmarkConfig{MaxConcurrentSamples: 4, BatchSize: 25},
	}

	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Backend.Timeout != "5s" {
		t.Errorf("Backend.Timeout was overwritten: got %q, want %q", cfg.Backend.Timeout, "5s")
	}
	if cfg.Tenant.DefaultID != "acme" {
		t.Errorf("Tenant.DefaultID was overwritten: got %q, want %q", cfg.Tenant.DefaultID, "acme")
	}
	if cfg.Benchmark.MaxConcurrentSamples != 4 {
		t.Errorf("MaxConcurrentSamples was overwritten: got %d, want 4", cfg.Benchmark.MaxConcurrentSamples)
	}
	if cfg.Benchmark.BatchSize != 25 {
		t.Errorf("BatchSize was overwritten: got %d, want 25", cfg.Benchmark.BatchSize)
	}
}

func TestConfig_SetDevDefaults_OnlyAppliesWhenDevMode(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDevDefaults()
	if cfg.Backend.URL != "" {
		t.Errorf("SetDevDefaults() applied defaults outside dev mode: backend.url = %q", cfg.Backend.URL)
	}

	cfg.DevMode = true
	cfg.SetDevDefaults()
	if cfg.Backend.URL == "" {
		t.Error("SetDevDefaults() did not populate backend.url in dev mode")
	}
	if cfg.Tenant.DefaultID == "" {
		t.Error("SetDevDefaults() did not populate tenant.default_id in dev mode")
	}
}

func TestConfig_SetDefaults_ExternalFailOpenDefaultsTrue(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()

	if !cfg.Policy.ExternalFailOpen {
		t.Error("Policy.ExternalFailOpen should default to true when unset")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "firewall.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "firewall.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "firewall" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "firewall"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "firewall.yaml")
	ymlPath := filepath.Join(dir, "firewall.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  http_addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
