package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/llm"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxOutputSize  = 10 * 1024
	truncateMarker = "\n... [output truncated]"
)

// Trigger is a deterministic override signal mapped to a tool.
type Trigger string

const (
	TriggerNone        Trigger = ""
	TriggerAbort       Trigger = "ABORT"
	TriggerForceSearch Trigger = "RAG_GRAPH_SEARCH"
)

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Default     interface{}   `json:"default,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
}

// Handler is the function signature for tool execution
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Descriptor defines a tool's metadata and handler
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	// Bindings lists parameters filled from conversation state. They are
	// hidden from the model and overwritten before validation.
	Bindings []string `json:"bindings,omitempty"`
	// Parallel marks the tool as safe to run alongside other calls.
	Parallel bool `json:"parallel"`
	// AdditionalProperties accepts arguments not declared in Parameters.
	AdditionalProperties bool          `json:"additional_properties,omitempty"`
	Timeout              time.Duration `json:"timeout,omitempty"`
	Handler              Handler       `json:"-"`
}

// IsBound reports whether key is filled from conversation state.
func (d *Descriptor) IsBound(key string) bool {
	for _, b := range d.Bindings {
		if b == key {
			return true
		}
	}
	return false
}

// Registry maps tool names and triggers to descriptors. It is populated
// once at startup and read concurrently afterwards.
type Registry struct {
	tools    map[string]*Descriptor
	schemas  map[string]*gojsonschema.Schema
	triggers map[Trigger]string
	mu       sync.RWMutex
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		tools:    make(map[string]*Descriptor),
		schemas:  make(map[string]*gojsonschema.Schema),
		triggers: make(map[Trigger]string),
	}
}

// Register registers a new tool
func (r *Registry) Register(def Descriptor) error {
	if err := validateDescriptor(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(def, false)))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Bool("parallel", def.Parallel).Msg("Tool registered")

	return nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return nil, agenterr.Domain(agenterr.CodeUnknownTool, "Tool not found: %s", name)
	}
	return def, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterTrigger maps a trigger to an already registered tool.
func (r *Registry) RegisterTrigger(trigger Trigger, toolName string) error {
	if trigger == TriggerNone {
		return fmt.Errorf("trigger cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[toolName]; !ok {
		return agenterr.Domain(agenterr.CodeUnknownTool, "Tool not found: %s", toolName)
	}
	r.triggers[trigger] = toolName
	return nil
}

// ResolveTrigger returns the tool mapped to trigger.
func (r *Registry) ResolveTrigger(trigger Trigger) (*Descriptor, error) {
	r.mu.RLock()
	name, ok := r.triggers[trigger]
	r.mu.RUnlock()
	if !ok {
		return nil, agenterr.Domain(agenterr.CodeUnknownTool, "No tool mapped to trigger: %s", trigger)
	}
	return r.Resolve(name)
}

// Validate checks args against the tool's schema. The first violation is
// reported with the tool and field name.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	r.mu.RLock()
	_, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return agenterr.Domain(agenterr.CodeUnknownTool, "Tool not found: %s", name)
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return agenterr.WrapDomain(agenterr.CodeInvalidArguments, err, "Invalid arguments for tool %s: %v", name, err)
	}

	if !result.Valid() {
		first := result.Errors()[0]
		field := first.Field()
		if first.Type() == "required" {
			if property, ok := first.Details()["property"].(string); ok {
				field = property
			}
		}
		if first.Type() == "additional_property_not_allowed" {
			if property, ok := first.Details()["property"].(string); ok {
				field = property
			}
		}
		return agenterr.Domain(agenterr.CodeInvalidArguments,
			"Invalid arguments for tool %s: field %s: %s", name, field, first.Description())
	}

	return nil
}

// Execute validates args and runs the tool handler with its timeout.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	startTime := time.Now()

	def, err := r.Resolve(name)
	if err != nil {
		log.Error().Str("tool", name).Msg("Tool not found")
		return "", err
	}

	if err := r.Validate(name, args); err != nil {
		log.Error().Str("tool", name).Err(err).Msg("Parameter validation failed")
		return "", err
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: &agenterr.UnexpectedError{Message: fmt.Sprintf("tool %s panicked: %v", name, p)}}
			}
		}()
		output, err := def.Handler(timeoutCtx, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case res := <-done:
		duration := time.Since(startTime)
		if res.err != nil {
			log.Error().
				Str("tool", name).
				Dur("duration", duration).
				Err(res.err).
				Msg("Tool execution failed")
			if ctx.Err() == nil && timeoutCtx.Err() == context.DeadlineExceeded {
				return "", timeoutError(name, timeout, res.err)
			}
			return "", res.err
		}

		output, truncated := truncateOutput(res.output)
		log.Debug().
			Str("tool", name).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")
		return output, nil

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)

		// Parent cancellation is reported as-is; only the tool's own deadline
		// is a tool failure.
		if ctx.Err() != nil {
			log.Warn().Str("tool", name).Dur("duration", duration).Msg("Tool execution cancelled")
			return "", ctx.Err()
		}

		log.Error().
			Str("tool", name).
			Dur("duration", duration).
			Msg("Tool execution timeout")
		return "", timeoutError(name, timeout, timeoutCtx.Err())
	}
}

// LLMSchemas returns the model-facing schemas for names, with bound
// parameters removed.
func (r *Registry) LLMSchemas(names []string) ([]llm.ToolSchema, error) {
	schemas := make([]llm.ToolSchema, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		def, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schemaMap(*def, true),
		})
	}

	return schemas, nil
}

func timeoutError(name string, timeout time.Duration, cause error) error {
	return agenterr.WrapDomain(agenterr.CodeToolFailed, cause, "Tool %s timed out after %v", name, timeout)
}

func validateDescriptor(def Descriptor) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	declared := make(map[string]bool, len(def.Parameters))
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}

		validTypes := map[string]bool{
			"string": true, "number": true, "boolean": true,
			"object": true, "array": true, "integer": true,
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		declared[param.Name] = true
	}

	for _, binding := range def.Bindings {
		if !declared[binding] {
			return fmt.Errorf("binding %s is not a declared parameter", binding)
		}
	}

	return nil
}

// schemaMap builds the JSON Schema for def. With hideBound set, bound
// parameters are omitted.
func schemaMap(def Descriptor, hideBound bool) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		if hideBound && def.IsBound(param.Name) {
			continue
		}

		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": def.AdditionalProperties,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func truncateOutput(output string) (string, bool) {
	if len(output) <= MaxOutputSize {
		return output, false
	}

	log.Warn().
		Int("original", len(output)).
		Int("truncated", MaxOutputSize).
		Msg("Output truncated")

	return strings.ToValidUTF8(output[:MaxOutputSize], "") + truncateMarker, true
}
