package agentconfig

import (
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/retrieval"
	"github.com/harun/oracle/pkg/tools"
)

const (
	DefaultErrorMessage      = "I'm sorry, I couldn't process your request."
	DefaultVectorResultsTopK = 4
	ToolChoiceAuto           = "auto"
	ToolChoiceAny            = "any"
)

// AgentConfig is the resolved agent configuration. It is immutable after
// Resolve returns.
type AgentConfig struct {
	SystemPrompt         string           `mapstructure:"system_prompt" json:"system_prompt" yaml:"system_prompt" validate:"required"`
	LLMs                 []LLMDescriptor  `mapstructure:"llms" json:"llms" yaml:"llms" validate:"min=1,dive"`
	Tools                []ToolDescriptor `mapstructure:"tools" json:"tools" yaml:"tools" validate:"dive"`
	InitialTools         []string         `mapstructure:"initial_tools" json:"initial_tools" yaml:"initial_tools" validate:"dive,required"`
	MaxIntermediateSteps int              `mapstructure:"max_intermediate_steps" json:"max_intermediate_steps" yaml:"max_intermediate_steps" validate:"gt=0"`
	AnswerFormatters     []string         `mapstructure:"answer_formatters" json:"answer_formatters" yaml:"answer_formatters" validate:"dive,required"`
	DefaultErrorMessage  string           `mapstructure:"default_error_message" json:"default_error_message" yaml:"default_error_message"`
	EmbeddingModelName   string           `mapstructure:"embedding_model_name" json:"embedding_model_name" yaml:"embedding_model_name"`
	VectorResultsTopK    int              `mapstructure:"vector_results_top_k" json:"vector_results_top_k" yaml:"vector_results_top_k" validate:"gte=0"`
	IndexName            string           `mapstructure:"index_name" json:"index_name" yaml:"index_name"`
	ToolChoice           string           `mapstructure:"tool_choice" json:"tool_choice" yaml:"tool_choice" validate:"omitempty,oneof=auto any"`
}

// LLMDescriptor selects a provider and its arguments.
type LLMDescriptor struct {
	Provider string                 `mapstructure:"provider" json:"provider" yaml:"provider" validate:"required"`
	Args     map[string]interface{} `mapstructure:"args" json:"args,omitempty" yaml:"args,omitempty"`
}

// ToolDescriptor enables a registered tool with an opaque config block.
type ToolDescriptor struct {
	Name        string                 `mapstructure:"name" json:"name" yaml:"name" validate:"required"`
	Description string                 `mapstructure:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]interface{} `mapstructure:"config" json:"config,omitempty" yaml:"config,omitempty"`
}

// ToolNames returns the configured tool names in order.
func (c *AgentConfig) ToolNames() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Name
	}
	return names
}

// ToolConfig returns the config block for the named tool, or nil.
func (c *AgentConfig) ToolConfig(name string) map[string]interface{} {
	for _, t := range c.Tools {
		if t.Name == name {
			return t.Config
		}
	}
	return nil
}

// DefaultFormatter is the first configured formatter.
func (c *AgentConfig) DefaultFormatter() string {
	if len(c.AnswerFormatters) == 0 {
		return answer.Default
	}
	return c.AnswerFormatters[0]
}

// HasFormatter reports whether name is one of the configured formatters.
func (c *AgentConfig) HasFormatter(name string) bool {
	for _, f := range c.AnswerFormatters {
		if f == name {
			return true
		}
	}
	return false
}

// Catalog answers reference checks against the process registries.
type Catalog interface {
	HasLLM(id string) bool
	HasTool(name string) bool
	HasFormatter(name string) bool
	HasEmbeddingModel(name string) bool
}

// RegistryCatalog is a Catalog backed by the live registries.
type RegistryCatalog struct {
	LLMs       *llm.Registry
	Tools      *tools.Registry
	Formatters *answer.Registry
}

var _ Catalog = (*RegistryCatalog)(nil)

func (c *RegistryCatalog) HasLLM(id string) bool {
	return c.LLMs != nil && c.LLMs.Has(id)
}

func (c *RegistryCatalog) HasTool(name string) bool {
	return c.Tools != nil && c.Tools.Has(name)
}

func (c *RegistryCatalog) HasFormatter(name string) bool {
	return c.Formatters != nil && c.Formatters.Has(name)
}

func (c *RegistryCatalog) HasEmbeddingModel(name string) bool {
	return retrieval.IsSupportedModel(name)
}
