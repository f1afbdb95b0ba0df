package agentconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/tools"
)

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	reg := tools.New()
	for _, name := range []string{"search", "noop"} {
		require.NoError(t, reg.Register(tools.Descriptor{
			Name:        name,
			Description: name,
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "", nil
			},
		}))
	}
	return &RegistryCatalog{
		LLMs:       llm.DefaultRegistry(),
		Tools:      reg,
		Formatters: answer.NewRegistry(),
	}
}

func validRaw() map[string]interface{} {
	return map[string]interface{}{
		"system_prompt": "You answer course questions.",
		"llms": []interface{}{
			map[string]interface{}{"provider": "anthropic", "args": map[string]interface{}{"temperature": 0.2}},
			map[string]interface{}{"provider": "openai"},
		},
		"tools": []interface{}{
			map[string]interface{}{"name": "search", "config": map[string]interface{}{"collection": "courses"}},
			map[string]interface{}{"name": "noop"},
		},
		"initial_tools":          []interface{}{"search"},
		"max_intermediate_steps": 5,
		"answer_formatters":      []interface{}{"thoughtless", "default"},
		"embedding_model_name":   "text-embedding-3-small",
		"index_name":             "courses",
	}
}

func TestResolve(t *testing.T) {
	cat := testCatalog(t)

	t.Run("should resolve a valid config with defaults", func(t *testing.T) {
		cfg, err := Resolve(validRaw(), cat)
		require.NoError(t, err)

		assert.Equal(t, "You answer course questions.", cfg.SystemPrompt)
		require.Len(t, cfg.LLMs, 2)
		assert.Equal(t, "anthropic", cfg.LLMs[0].Provider)
		assert.Equal(t, 0.2, cfg.LLMs[0].Args["temperature"])
		assert.Equal(t, []string{"search", "noop"}, cfg.ToolNames())
		assert.Equal(t, "courses", cfg.ToolConfig("search")["collection"])
		assert.Nil(t, cfg.ToolConfig("missing"))
		assert.Equal(t, 5, cfg.MaxIntermediateSteps)
		assert.Equal(t, "thoughtless", cfg.DefaultFormatter())
		assert.True(t, cfg.HasFormatter("default"))
		assert.Equal(t, DefaultErrorMessage, cfg.DefaultErrorMessage)
		assert.Equal(t, DefaultVectorResultsTopK, cfg.VectorResultsTopK)
		assert.Equal(t, ToolChoiceAuto, cfg.ToolChoice)
	})

	t.Run("should accept whole floats for integers", func(t *testing.T) {
		raw := validRaw()
		raw["max_intermediate_steps"] = float64(3)
		cfg, err := Resolve(raw, cat)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.MaxIntermediateSteps)
	})

	t.Run("should default formatters when absent", func(t *testing.T) {
		raw := validRaw()
		delete(raw, "answer_formatters")
		cfg, err := Resolve(raw, cat)
		require.NoError(t, err)
		assert.Equal(t, "default", cfg.DefaultFormatter())
	})

	t.Run("should reject empty config", func(t *testing.T) {
		_, err := Resolve(nil, cat)
		assert.True(t, agenterr.HasCode(err, agenterr.CodeInvalidConfig))
	})

	failures := []struct {
		name     string
		mutate   func(map[string]interface{})
		code     agenterr.Code
		contains string
	}{
		{
			name:     "missing system prompt",
			mutate:   func(r map[string]interface{}) { delete(r, "system_prompt") },
			code:     agenterr.CodeInvalidConfig,
			contains: "system_prompt",
		},
		{
			name:     "blank system prompt",
			mutate:   func(r map[string]interface{}) { r["system_prompt"] = "" },
			code:     agenterr.CodeInvalidConfig,
			contains: "system_prompt",
		},
		{
			name:     "empty llms",
			mutate:   func(r map[string]interface{}) { r["llms"] = []interface{}{} },
			code:     agenterr.CodeInvalidConfig,
			contains: "llms",
		},
		{
			name: "llm without provider",
			mutate: func(r map[string]interface{}) {
				r["llms"] = []interface{}{map[string]interface{}{"args": map[string]interface{}{}}}
			},
			code:     agenterr.CodeInvalidConfig,
			contains: "llms.0.provider",
		},
		{
			name:     "zero steps",
			mutate:   func(r map[string]interface{}) { r["max_intermediate_steps"] = 0 },
			code:     agenterr.CodeInvalidConfig,
			contains: "max_intermediate_steps",
		},
		{
			name:     "negative steps",
			mutate:   func(r map[string]interface{}) { r["max_intermediate_steps"] = -2 },
			code:     agenterr.CodeInvalidConfig,
			contains: "max_intermediate_steps",
		},
		{
			name:     "fractional steps",
			mutate:   func(r map[string]interface{}) { r["max_intermediate_steps"] = 2.5 },
			code:     agenterr.CodeInvalidConfig,
			contains: "max_intermediate_steps",
		},
		{
			name:     "negative top k",
			mutate:   func(r map[string]interface{}) { r["vector_results_top_k"] = -1 },
			code:     agenterr.CodeInvalidConfig,
			contains: "vector_results_top_k",
		},
		{
			name:     "bad tool choice",
			mutate:   func(r map[string]interface{}) { r["tool_choice"] = "always" },
			code:     agenterr.CodeInvalidConfig,
			contains: "tool_choice",
		},
		{
			name:     "unknown key",
			mutate:   func(r map[string]interface{}) { r["temperature"] = 0.3 },
			code:     agenterr.CodeInvalidConfig,
			contains: "temperature",
		},
		{
			name: "unknown llm",
			mutate: func(r map[string]interface{}) {
				r["llms"] = []interface{}{map[string]interface{}{"provider": "gemini"}}
			},
			code:     agenterr.CodeUnknownLLM,
			contains: "gemini",
		},
		{
			name: "unknown tool",
			mutate: func(r map[string]interface{}) {
				r["tools"] = []interface{}{map[string]interface{}{"name": "wikipedia"}}
				r["initial_tools"] = []interface{}{}
			},
			code:     agenterr.CodeUnknownTool,
			contains: "wikipedia",
		},
		{
			name:     "initial tool not configured",
			mutate:   func(r map[string]interface{}) { r["tools"] = []interface{}{map[string]interface{}{"name": "noop"}} },
			code:     agenterr.CodeInvalidConfig,
			contains: "search",
		},
		{
			name:     "unknown formatter",
			mutate:   func(r map[string]interface{}) { r["answer_formatters"] = []interface{}{"fancy"} },
			code:     agenterr.CodeUnknownFormatter,
			contains: "fancy",
		},
		{
			name:     "unsupported embedding model",
			mutate:   func(r map[string]interface{}) { r["embedding_model_name"] = "word2vec" },
			code:     agenterr.CodeUnsupportedEmbeddingModel,
			contains: "word2vec",
		},
	}

	for _, tc := range failures {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(raw)

			cfg, err := Resolve(raw, cat)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, agenterr.HasCode(err, tc.code), "got %v", err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "llms.0.provider", fieldPath("AgentConfig.llms[0].provider"))
	assert.Equal(t, "max_intermediate_steps", fieldPath("AgentConfig.max_intermediate_steps"))
}
