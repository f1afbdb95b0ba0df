package answer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/harun/oracle/pkg/agenterr"
)

const (
	Default     = "default"
	Thoughtless = "thoughtless"
)

// Payload is the structured final answer produced by the model.
type Payload map[string]interface{}

// Rendered is the caller-visible answer after formatting.
type Rendered map[string]interface{}

// Text returns the "answer" field, or the JSON encoding of the whole answer
// when that field is not a string.
func (r Rendered) Text() string {
	if s, ok := r["answer"].(string); ok {
		return s
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(r))
	}
	return string(data)
}

// Formatter turns a payload into the rendered answer. It must not mutate payload.
type Formatter func(payload Payload) Rendered

// Registry maps formatter names to formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// NewRegistry creates a registry with the default and thoughtless formatters.
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[string]Formatter)}
	r.formatters[Default] = formatDefault
	r.formatters[Thoughtless] = formatThoughtless
	return r
}

// Register adds or replaces a named formatter.
func (r *Registry) Register(name string, f Formatter) error {
	if name == "" || f == nil {
		return fmt.Errorf("formatter name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters[name] = f
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.formatters[name]
	return ok
}

// Names returns the registered formatter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Format renders payload with the named formatter. An empty name selects
// the default formatter.
func (r *Registry) Format(payload Payload, name string) (Rendered, error) {
	if name == "" {
		name = Default
	}

	r.mu.RLock()
	f, ok := r.formatters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, agenterr.Domain(agenterr.CodeUnknownFormatter, "Answer formatter not found: %s", name)
	}

	return f(payload), nil
}

func formatDefault(payload Payload) Rendered {
	out := make(Rendered, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// reasoningFields are dropped by the thoughtless formatter.
var reasoningFields = map[string]bool{
	"thoughts":           true,
	"reasoning":          true,
	"intermediate_steps": true,
	"scratchpad":         true,
}

func formatThoughtless(payload Payload) Rendered {
	out := make(Rendered, len(payload))
	for k, v := range payload {
		if reasoningFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}
