package agentconfig

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/oracle/pkg/agenterr"
)

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error

	validate = newValidator()

	indexPattern = regexp.MustCompile(`\[(\d+)\]`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(rawSchema))
	})
	return compiledSchema, schemaErr
}

// Resolve validates raw against the config schema, decodes it, checks every
// reference against cat and applies defaults. It performs no I/O.
func Resolve(raw map[string]interface{}, cat Catalog) (*AgentConfig, error) {
	if raw == nil {
		return nil, agenterr.Domain(agenterr.CodeInvalidConfig, "Invalid agent config: configuration is empty")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	if err := checkShape(raw); err != nil {
		return nil, err
	}

	cfg := &AgentConfig{}
	if err := decode(raw, cfg); err != nil {
		return nil, err
	}

	if err := checkConstraints(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := checkReferences(cfg, cat); err != nil {
		return nil, err
	}

	return cfg, nil
}

func checkShape(raw map[string]interface{}) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return agenterr.WrapDomain(agenterr.CodeInvalidConfig, err, "Invalid agent config: %v", err)
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := first.Field()
	if first.Type() == "required" {
		if property, ok := first.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
				field = property
			} else {
				field = field + "." + property
			}
		}
	}
	return agenterr.Domain(agenterr.CodeInvalidConfig, "Invalid agent config: %s: %s", field, first.Description())
}

func decode(raw map[string]interface{}, cfg *AgentConfig) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return agenterr.WrapDomain(agenterr.CodeInvalidConfig, err, "Invalid agent config: %v", err)
	}
	return nil
}

func checkConstraints(cfg *AgentConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return agenterr.WrapDomain(agenterr.CodeInvalidConfig, err, "Invalid agent config: %v", err)
	}

	first := verrs[0]
	return agenterr.Domain(agenterr.CodeInvalidConfig, "Invalid agent config: %s: %s",
		fieldPath(first.Namespace()), describe(first))
}

// fieldPath turns "AgentConfig.llms[0].provider" into "llms.0.provider".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func applyDefaults(cfg *AgentConfig) {
	if cfg.DefaultErrorMessage == "" {
		cfg.DefaultErrorMessage = DefaultErrorMessage
	}
	if cfg.VectorResultsTopK == 0 {
		cfg.VectorResultsTopK = DefaultVectorResultsTopK
	}
	if cfg.ToolChoice == "" {
		cfg.ToolChoice = ToolChoiceAuto
	}
	if len(cfg.AnswerFormatters) == 0 {
		cfg.AnswerFormatters = []string{"default"}
	}
}

func checkReferences(cfg *AgentConfig, cat Catalog) error {
	for _, d := range cfg.LLMs {
		if !cat.HasLLM(d.Provider) {
			return agenterr.Domain(agenterr.CodeUnknownLLM, "LLM not found: %s", d.Provider)
		}
	}

	configured := make(map[string]bool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if !cat.HasTool(t.Name) {
			return agenterr.Domain(agenterr.CodeUnknownTool, "Tool not found: %s", t.Name)
		}
		configured[t.Name] = true
	}

	for _, name := range cfg.InitialTools {
		if !cat.HasTool(name) {
			return agenterr.Domain(agenterr.CodeUnknownTool, "Tool not found: %s", name)
		}
		if !configured[name] {
			return agenterr.Domain(agenterr.CodeInvalidConfig,
				"Invalid agent config: initial_tools: %s is not listed in tools", name)
		}
	}

	for _, name := range cfg.AnswerFormatters {
		if !cat.HasFormatter(name) {
			return agenterr.Domain(agenterr.CodeUnknownFormatter, "Answer formatter not found: %s", name)
		}
	}

	if cfg.EmbeddingModelName != "" && !cat.HasEmbeddingModel(cfg.EmbeddingModelName) {
		return agenterr.Domain(agenterr.CodeUnsupportedEmbeddingModel,
			"Embedding model not supported: %s", cfg.EmbeddingModelName)
	}

	return nil
}
