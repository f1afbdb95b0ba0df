package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/retrieval"
	"github.com/harun/oracle/pkg/tools"
)

// MockRetriever is a mock implementation of Retriever
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Document, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.([]retrieval.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func boundArgs(query string) map[string]interface{} {
	return map[string]interface{}{
		"query":                query,
		"chat_id":              "chat-1",
		"top_k":                2,
		"embedding_model_name": "text-embedding-3-small",
		"index_name":           "courses",
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register built-ins and the force-search trigger", func(t *testing.T) {
		reg := tools.New()
		require.NoError(t, Register(reg, Dependencies{}))

		assert.Equal(t, []string{"finalAnswer", "noop", "search"}, reg.Names())

		def, err := reg.ResolveTrigger(tools.TriggerForceSearch)
		require.NoError(t, err)
		assert.Equal(t, SearchTool, def.Name)
	})

	t.Run("should fail on double registration", func(t *testing.T) {
		reg := tools.New()
		require.NoError(t, Register(reg, Dependencies{}))
		assert.Error(t, Register(reg, Dependencies{}))
	})
}

func TestSearch(t *testing.T) {
	t.Run("should pass bound arguments to the retriever", func(t *testing.T) {
		retriever := new(MockRetriever)
		retriever.On("Retrieve", mock.Anything, retrieval.Request{
			Query:              "what is go",
			ChatID:             "chat-1",
			TopK:               2,
			EmbeddingModelName: "text-embedding-3-small",
			IndexName:          "courses",
		}).Return([]retrieval.Document{
			{ID: "1", Content: "Go is a language", Source: "go.md", Score: 0.9},
		}, nil)

		reg := tools.New()
		require.NoError(t, Register(reg, Dependencies{Retriever: retriever}))

		out, err := reg.Execute(context.Background(), SearchTool, boundArgs("what is go"))
		require.NoError(t, err)

		var hits []searchHit
		require.NoError(t, json.Unmarshal([]byte(out), &hits))
		require.Len(t, hits, 1)
		assert.Equal(t, "Go is a language", hits[0].Content)
		retriever.AssertExpectations(t)
	})

	t.Run("should filter by configured minimum score", func(t *testing.T) {
		retriever := new(MockRetriever)
		retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]retrieval.Document{
			{Content: "weak", Score: 0.1},
		}, nil)

		handler := Search(retriever).Handler
		ctx := tools.ContextWithExecutionContext(context.Background(), &tools.ExecutionContext{
			Config: map[string]interface{}{"min_score": 0.5},
		})

		out, err := handler(ctx, boundArgs("q"))
		require.NoError(t, err)
		assert.Equal(t, noResults, out)
	})

	t.Run("should report backend failures as tool failures", func(t *testing.T) {
		retriever := new(MockRetriever)
		retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := Search(retriever).Handler(context.Background(), boundArgs("q"))
		require.Error(t, err)
		assert.True(t, agenterr.HasCode(err, agenterr.CodeToolFailed))
		assert.True(t, agenterr.Recoverable(err))
	})

	t.Run("should keep domain errors from the retriever", func(t *testing.T) {
		retriever := new(MockRetriever)
		domainErr := agenterr.Domain(agenterr.CodeUnsupportedEmbeddingModel, "Embedding model not supported: x")
		retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, domainErr)

		_, err := Search(retriever).Handler(context.Background(), boundArgs("q"))
		assert.Same(t, domainErr, err)
	})

	t.Run("should pass cancellation through", func(t *testing.T) {
		retriever := new(MockRetriever)
		retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, context.Canceled)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Search(retriever).Handler(ctx, boundArgs("q"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, agenterr.Recoverable(err))
	})

	t.Run("should fail gracefully without a retriever", func(t *testing.T) {
		_, err := Search(nil).Handler(context.Background(), boundArgs("q"))
		assert.True(t, agenterr.Recoverable(err))
	})

	t.Run("should hide bound keys from the model", func(t *testing.T) {
		reg := tools.New()
		require.NoError(t, Register(reg, Dependencies{}))

		schemas, err := reg.LLMSchemas([]string{SearchTool})
		require.NoError(t, err)
		props := schemas[0].Parameters["properties"].(map[string]interface{})
		assert.Len(t, props, 1)
		assert.Contains(t, props, "query")
	})
}

func TestFinalAnswer(t *testing.T) {
	reg := tools.New()
	require.NoError(t, Register(reg, Dependencies{}))

	t.Run("should accept extra payload fields", func(t *testing.T) {
		err := reg.Validate(FinalAnswerTool, map[string]interface{}{
			"answer":    "42",
			"reasoning": "math",
			"sources":   []interface{}{"a"},
		})
		assert.NoError(t, err)
	})

	t.Run("should require an answer", func(t *testing.T) {
		err := reg.Validate(FinalAnswerTool, map[string]interface{}{"thoughts": "hmm"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "answer")
	})
}

func TestNoop(t *testing.T) {
	handler := Noop().Handler

	out, err := handler(context.Background(), map[string]interface{}{"message": "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	out, err = handler(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
