package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator reports likely mistakes that do not stop the config from
// loading. `oracle config validate` prints them as warnings.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return nil // falls back to the provider SDK's environment lookup
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateWeaviateURL checks that the URL has a scheme and a host.
func (v *Validator) ValidateWeaviateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid weaviate_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid weaviate_url scheme: %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid weaviate_url: missing host")
	}
	return nil
}

// ValidateConfig collects every warning for cfg.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	llms, _ := cfg.Agent["llms"].([]interface{})
	for i, raw := range llms {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		provider, _ := entry["provider"].(string)
		args, _ := entry["args"].(map[string]interface{})
		key, _ := args["api_key"].(string)
		if err := v.ValidateAPIKey(key, provider); err != nil {
			errs = append(errs, fmt.Errorf("agent.llms.%d: %w", i, err))
		}
	}

	if cfg.Retrieval.Backend == BackendWeaviate {
		if err := v.ValidateWeaviateURL(cfg.Retrieval.WeaviateURL); err != nil {
			errs = append(errs, fmt.Errorf("retrieval: %w", err))
		}
	}

	if cfg.Retrieval.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("retrieval.openai_api_key is empty; search will fail until OPENAI_API_KEY is set"))
	}

	return errs
}
