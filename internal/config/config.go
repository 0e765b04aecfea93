// Package config provides configuration types for the semantic firewall.
//
// A typed config struct populated from environment and an optional YAML
// file, validated once at startup — the same Pydantic-BaseSettings-style
// shape the original implementation used, adapted to Viper + validator/v10.
package config

import (
	"github.com/spf13/viper"
)

// Config is the top-level configuration for the semantic firewall.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Backend configures the proxied chat backend.
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// Tenant configures the default tenant identity.
	Tenant TenantConfig `yaml:"tenant" mapstructure:"tenant"`

	// Detectors configures default detector variants and model paths.
	Detectors DetectorsConfig `yaml:"detectors" mapstructure:"detectors"`

	// Policy configures the rule-table evaluator and the external-engine
	// fail-open toggle.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Metrics configures the rolling event ring buffer.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// EventBus configures the dashboard fan-out queue.
	EventBus EventBusConfig `yaml:"event_bus" mapstructure:"event_bus"`

	// Benchmark configures the benchmark engine and its SQLite store.
	Benchmark BenchmarkConfig `yaml:"benchmark" mapstructure:"benchmark"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// BackendConfig configures the proxied chat backend HTTP call.
type BackendConfig struct {
	// URL is the backend's chat endpoint.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`

	// Timeout is the timeout for a single backend call (e.g., "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// TenantConfig configures the default tenant used when a request omits one.
type TenantConfig struct {
	DefaultID string `yaml:"default_id" mapstructure:"default_id" validate:"required"`
}

// DetectorsConfig configures which variant each detector kind defaults to,
// plus filesystem paths to their model weights and the heuristic rules file.
type DetectorsConfig struct {
	PromptInjectionVariant string `yaml:"prompt_injection_variant" mapstructure:"prompt_injection_variant" validate:"omitempty,oneof=custom_onnx deberta llama_guard_86m llama_guard_22m"`
	PIIVariant             string `yaml:"pii_variant" mapstructure:"pii_variant" validate:"omitempty,oneof=presidio onnx mock"`
	ToxicityVariant        string `yaml:"toxicity_variant" mapstructure:"toxicity_variant" validate:"omitempty,oneof=detoxify onnx"`

	ModelDir       string  `yaml:"model_dir" mapstructure:"model_dir"`
	HeuristicRules string  `yaml:"heuristic_rules_file" mapstructure:"heuristic_rules_file"`
	PIIMockScore   float64 `yaml:"pii_mock_score" mapstructure:"pii_mock_score" validate:"omitempty,min=0,max=1"`
}

// PolicyConfig configures the rule-table evaluator.
type PolicyConfig struct {
	// RulesFile is a YAML file of named policies (rule tables). Optional:
	// when empty, a permissive default-allow policy is used.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`

	// ExternalEngineURL, when set, routes evaluation through an HTTP
	// external policy engine instead of the in-process CEL evaluator.
	ExternalEngineURL string `yaml:"external_engine_url" mapstructure:"external_engine_url" validate:"omitempty,url"`

	// ExternalFailOpen controls whether a failing external engine call is
	// treated as an allow (fail-open, logged) rather than a block.
	// Security-relevant: default true per the resolved open question.
	ExternalFailOpen bool `yaml:"external_fail_open" mapstructure:"external_fail_open"`

	// AnalyzeEgressDefault is the default for the per-request
	// analyze_egress override.
	AnalyzeEgressDefault bool `yaml:"analyze_egress_default" mapstructure:"analyze_egress_default"`
}

// MetricsConfig configures the rolling event ring buffer.
type MetricsConfig struct {
	// RingBufferCapacity is the number of recent events retained.
	RingBufferCapacity int `yaml:"ring_buffer_capacity" mapstructure:"ring_buffer_capacity" validate:"omitempty,min=1"`
}

// EventBusConfig configures the dashboard WebSocket fan-out bus.
type EventBusConfig struct {
	QueueSize        int    `yaml:"queue_size" mapstructure:"queue_size" validate:"omitempty,min=1"`
	SendTimeout      string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty"`
	WarningThreshold int    `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`
}

// BenchmarkConfig configures the benchmark engine and its store.
type BenchmarkConfig struct {
	// DBPath is the SQLite database file for benchmark runs/results/metrics.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// MaxConcurrentSamples bounds per-batch sample fan-out.
	MaxConcurrentSamples int `yaml:"max_concurrent_samples" mapstructure:"max_concurrent_samples" validate:"omitempty,min=1"`

	// BatchSize is the number of samples persisted per transaction.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// DatasetDir is where uploaded dataset objects are stored, under
	// datasets/{uuid}.{csv|json}.
	DatasetDir string `yaml:"dataset_dir" mapstructure:"dataset_dir"`

	// BuiltinDatasetDir holds named dataset fixtures under
	// {dir}/{name}/{split}.csv, e.g. jailbreak-bench/test.csv.
	BuiltinDatasetDir string `yaml:"builtin_dataset_dir" mapstructure:"builtin_dataset_dir"`
}

// SetDevDefaults applies permissive defaults for development mode. Applied
// before validation so required fields are satisfied with minimal config.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:8000/chat"
	}
	if c.Tenant.DefaultID == "" {
		c.Tenant.DefaultID = "default"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Backend.Timeout == "" {
		c.Backend.Timeout = "30s"
	}

	if c.Tenant.DefaultID == "" {
		c.Tenant.DefaultID = "default"
	}

	if c.Detectors.PromptInjectionVariant == "" {
		c.Detectors.PromptInjectionVariant = "custom_onnx"
	}
	if c.Detectors.PIIVariant == "" {
		c.Detectors.PIIVariant = "presidio"
	}
	if c.Detectors.ToxicityVariant == "" {
		c.Detectors.ToxicityVariant = "detoxify"
	}

	// External-engine fail-open is a security-relevant toggle; default to
	// fail-open only when the user hasn't explicitly set it.
	if !viper.IsSet("policy.external_fail_open") {
		c.Policy.ExternalFailOpen = true
	}

	if c.Metrics.RingBufferCapacity == 0 {
		c.Metrics.RingBufferCapacity = 500
	}

	if c.EventBus.QueueSize == 0 {
		c.EventBus.QueueSize = 1000
	}
	if c.EventBus.SendTimeout == "" {
		c.EventBus.SendTimeout = "100ms"
	}
	if c.EventBus.WarningThreshold == 0 {
		c.EventBus.WarningThreshold = 80
	}

	if c.Benchmark.DBPath == "" {
		c.Benchmark.DBPath = "benchmarks.db"
	}
	if c.Benchmark.MaxConcurrentSamples == 0 {
		c.Benchmark.MaxConcurrentSamples = 10
	}
	if c.Benchmark.BatchSize == 0 {
		c.Benchmark.BatchSize = 50
	}
	if c.Benchmark.DatasetDir == "" {
		c.Benchmark.DatasetDir = "datasets"
	}
	if c.Benchmark.BuiltinDatasetDir == "" {
		c.Benchmark.BuiltinDatasetDir = "datasets/builtin"
	}
}
