package config

import (
	"fmt"
	"slices"
)

// Retrieval backends
const (
	BackendSQLite   = "sqlite"
	BackendWeaviate = "weaviate"
)

// Config represents the oracle configuration file
type Config struct {
	// Agent is the raw agent definition handed to agentconfig.Resolve.
	Agent map[string]interface{} `json:"agent" yaml:"agent" mapstructure:"agent"`

	// Logging
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`

	// Retrieval backend for the search tool
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level" mapstructure:"level"`
	File      string `json:"file" yaml:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" yaml:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" yaml:"audit_file" mapstructure:"audit_file"`
}

// RetrievalConfig selects and configures the vector index
type RetrievalConfig struct {
	Backend       string `json:"backend" yaml:"backend" mapstructure:"backend"` // sqlite, weaviate
	SQLitePath    string `json:"sqlite_path" yaml:"sqlite_path" mapstructure:"sqlite_path"`
	WeaviateURL   string `json:"weaviate_url" yaml:"weaviate_url" mapstructure:"weaviate_url"`
	OpenAIAPIKey  string `json:"openai_api_key" yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url" yaml:"openai_base_url" mapstructure:"openai_base_url"`
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: map[string]interface{}{},
		Logging: LoggingConfig{
			Level:     "warn",
			Redaction: true,
			Pretty:    true,
		},
		Retrieval: RetrievalConfig{
			Backend: BackendSQLite,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			ServiceName: "oracle",
		},
	}
}

// Validate checks the non-agent sections. The agent section is validated by
// agentconfig.Resolve.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be: trace, debug, info, warn, error)", c.Logging.Level)
	}

	switch c.Retrieval.Backend {
	case BackendSQLite:
		if c.Retrieval.SQLitePath == "" {
			return fmt.Errorf("retrieval.sqlite_path is required for the sqlite backend")
		}
	case BackendWeaviate:
		if c.Retrieval.WeaviateURL == "" {
			return fmt.Errorf("retrieval.weaviate_url is required for the weaviate backend")
		}
	default:
		return fmt.Errorf("invalid retrieval backend: %s (must be: sqlite, weaviate)", c.Retrieval.Backend)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}
