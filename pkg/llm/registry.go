package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/harun/oracle/pkg/agenterr"
)

const (
	DefaultMaxTokens = 4096
	TemperatureError = "Temperature must be between 0 and 1"
)

// Args are the provider arguments from an llms[] config entry.
type Args map[string]interface{}

// Factory builds a provider from validated settings and the raw args.
type Factory func(settings Settings, args Args) (Provider, error)

// Registry maps provider ids to factories. It is built once at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the anthropic, openai and scripted
// providers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("anthropic", NewAnthropicProvider)
	_ = r.Register("openai", NewOpenAIProvider)
	_ = r.Register("scripted", NewScriptedFromArgs)
	return r
}

// Register adds a factory under id.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("provider id is required")
	}
	if factory == nil {
		return fmt.Errorf("factory is required for provider %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("provider already registered: %s", id)
	}
	r.factories[id] = factory
	return nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New constructs the provider registered under id. Temperature is validated
// before the factory runs, so no client is built for a bad config.
func (r *Registry) New(id string, args Args) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, agenterr.Domain(agenterr.CodeUnknownLLM, "LLM not found: %s", id)
	}

	settings, err := ParseSettings(args)
	if err != nil {
		return nil, err
	}
	if err := ValidateTemperature(settings.Temperature); err != nil {
		return nil, err
	}

	return factory(settings, args)
}

// ValidateTemperature rejects temperatures outside [0, 1].
func ValidateTemperature(temperature float64) error {
	if temperature < 0 || temperature > 1 {
		return agenterr.Domain(agenterr.CodeInvalidTemperature, TemperatureError)
	}
	return nil
}

// ParseSettings reads the recognised keys out of args.
func ParseSettings(args Args) (Settings, error) {
	settings := Settings{MaxTokens: DefaultMaxTokens}

	var err error
	if settings.Model, err = args.String("model"); err != nil {
		return settings, err
	}
	if settings.APIKey, err = args.String("api_key"); err != nil {
		return settings, err
	}
	if settings.BaseURL, err = args.String("base_url"); err != nil {
		return settings, err
	}
	if v, ok := args["temperature"]; ok && v != nil {
		if settings.Temperature, err = args.Float("temperature"); err != nil {
			return settings, err
		}
		settings.TemperatureSet = true
	}
	if _, ok := args["max_tokens"]; ok {
		if settings.MaxTokens, err = args.Int("max_tokens"); err != nil {
			return settings, err
		}
	}
	return settings, nil
}

// String returns args[key] as a string. A missing key yields "".
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", agenterr.Domain(agenterr.CodeInvalidConfig, "LLM argument %s must be a string", key)
	}
	return s, nil
}

// Float returns args[key] as a float64, accepting any numeric type.
func (a Args) Float(key string) (float64, error) {
	switch v := a[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, nil
	default:
		return 0, agenterr.Domain(agenterr.CodeInvalidConfig, "LLM argument %s must be a number", key)
	}
}

// Int returns args[key] as an int, accepting whole floats.
func (a Args) Int(key string) (int, error) {
	switch v := a[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, agenterr.Domain(agenterr.CodeInvalidConfig, "LLM argument %s must be an integer", key)
		}
		return int(v), nil
	case nil:
		return 0, nil
	default:
		return 0, agenterr.Domain(agenterr.CodeInvalidConfig, "LLM argument %s must be an integer", key)
	}
}

// IsRetryableError checks if an error should fail over to the next provider
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errMsg, "econnreset") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504", "529"} {
		if strings.Contains(errMsg, code) {
			return true
		}
	}

	return false
}
