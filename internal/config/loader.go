// Package config provides configuration loading for the semantic firewall.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for firewall.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching an extensionless file named "firewall" (such as a
// binary), which Viper's built-in SetConfigName would match.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("firewall")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: FIREWALL_SERVER_HTTP_ADDR, etc.
	viper.SetEnvPrefix("FIREWALL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
	bindTopLevelAliases()
}

// findConfigFile searches standard locations for a firewall config file with
// an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching an extensionless file named "firewall" in the current
// directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".semantic-firewall"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "semantic-firewall"))
		}
	} else {
		paths = append(paths, "/etc/semantic-firewall")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for firewall.yaml or
// .yml. Returns the full path of the first match, or empty string if none
// found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "firewall"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable support under
// the FIREWALL_ prefix. Example: FIREWALL_SERVER_HTTP_ADDR overrides
// server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("backend.url")
	_ = viper.BindEnv("backend.timeout")

	_ = viper.BindEnv("tenant.default_id")

	_ = viper.BindEnv("detectors.prompt_injection_variant")
	_ = viper.BindEnv("detectors.pii_variant")
	_ = viper.BindEnv("detectors.toxicity_variant")
	_ = viper.BindEnv("detectors.model_dir")
	_ = viper.BindEnv("detectors.heuristic_rules_file")

	_ = viper.BindEnv("policy.rules_file")
	_ = viper.BindEnv("policy.external_engine_url")
	_ = viper.BindEnv("policy.external_fail_open")
	_ = viper.BindEnv("policy.analyze_egress_default")

	_ = viper.BindEnv("metrics.ring_buffer_capacity")

	_ = viper.BindEnv("event_bus.queue_size")
	_ = viper.BindEnv("event_bus.send_timeout")
	_ = viper.BindEnv("event_bus.warning_threshold")

	_ = viper.BindEnv("benchmark.db_path")
	_ = viper.BindEnv("benchmark.max_concurrent_samples")
	_ = viper.BindEnv("benchmark.batch_size")
	_ = viper.BindEnv("benchmark.dataset_dir")
	_ = viper.BindEnv("benchmark.builtin_dataset_dir")

	_ = viper.BindEnv("dev_mode")
}

// bindTopLevelAliases binds the unprefixed environment variables the spec
// calls out by name (BACKEND_URL, TENANT_ID, BENCHMARK_DB_PATH), in addition
// to their FIREWALL_-prefixed nested equivalents.
func bindTopLevelAliases() {
	_ = viper.BindEnv("backend.url", "BACKEND_URL")
	_ = viper.BindEnv("tenant.default_id", "TENANT_ID")
	_ = viper.BindEnv("benchmark.db_path", "BENCHMARK_DB_PATH")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config. Note: callers should apply any CLI
// flag overrides (e.g. --dev), then call cfg.SetDevDefaults() and
// cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
