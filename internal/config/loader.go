package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. ORACLE_LOGGING_LEVEL.
	EnvPrefix = "ORACLE"
	// EnvConfigPath names the environment variable holding the config path.
	EnvConfigPath = "ORACLE_CONFIG"

	defaultDir  = ".oracle"
	defaultFile = "oracle.yaml"
)

// ErrConfigNotFound is returned when an explicitly requested config file is missing.
var ErrConfigNotFound = errors.New("config file not found")

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path falls back to
// $ORACLE_CONFIG and then $HOME/.oracle/oracle.yaml.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file and applies environment overrides. A missing
// file at the default location yields the defaults; a missing file that was
// asked for explicitly is an error.
func (l *Loader) Load() (*Config, error) {
	configPath, explicit := l.resolvePath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
	} else {
		v.SetConfigFile(configPath)
		if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Agent == nil {
		cfg.Agent = map[string]interface{}{}
	}

	if cfg.Retrieval.SQLitePath == "" {
		cfg.Retrieval.SQLitePath = filepath.Join(filepath.Dir(l.defaultPath()), "index.db")
	}
	if cfg.Retrieval.OpenAIAPIKey == "" {
		cfg.Retrieval.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path the loader reads.
func (l *Loader) GetConfigPath() string {
	path, _ := l.resolvePath()
	return path
}

func (l *Loader) resolvePath() (string, bool) {
	if l.configPath != "" {
		return l.configPath, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return l.defaultPath(), false
}

func (l *Loader) defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDir, defaultFile)
}

// setDefaults registers every leaf key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.audit_file", cfg.Logging.AuditFile)
	v.SetDefault("retrieval.backend", cfg.Retrieval.Backend)
	v.SetDefault("retrieval.sqlite_path", cfg.Retrieval.SQLitePath)
	v.SetDefault("retrieval.weaviate_url", cfg.Retrieval.WeaviateURL)
	v.SetDefault("retrieval.openai_api_key", cfg.Retrieval.OpenAIAPIKey)
	v.SetDefault("retrieval.openai_base_url", cfg.Retrieval.OpenAIBaseURL)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
