package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agentconfig"
	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/retrieval"
	"github.com/harun/oracle/pkg/tools"
	"github.com/harun/oracle/pkg/tools/builtin"
)

// MockRetriever is a mock implementation of builtin.Retriever
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

func testAgentConfig() *agentconfig.AgentConfig {
	return &agentconfig.AgentConfig{
		SystemPrompt:         "You answer questions about the course catalog.",
		LLMs:                 []agentconfig.LLMDescriptor{{Provider: "scripted"}},
		Tools:                []agentconfig.ToolDescriptor{{Name: builtin.SearchTool}, {Name: builtin.NoopTool}},
		MaxIntermediateSteps: 3,
		AnswerFormatters:     []string{answer.Default, answer.Thoughtless},
		DefaultErrorMessage:  agentconfig.DefaultErrorMessage,
		EmbeddingModelName:   "text-embedding-3-small",
		VectorResultsTopK:    4,
		IndexName:            "courses",
		ToolChoice:           agentconfig.ToolChoiceAuto,
	}
}

// staticRegistry returns an LLM registry whose ids map to prebuilt providers.
func staticRegistry(providers map[string]llm.Provider) *llm.Registry {
	reg := llm.NewRegistry()
	for id, p := range providers {
		p := p
		_ = reg.Register(id, func(llm.Settings, llm.Args) (llm.Provider, error) {
			return p, nil
		})
	}
	return reg
}

func testToolRegistry(t *testing.T, retriever builtin.Retriever, extra ...tools.Descriptor) *tools.Registry {
	t.Helper()
	reg := tools.New()
	require.NoError(t, builtin.Register(reg, builtin.Dependencies{Retriever: retriever}))
	for _, def := range extra {
		require.NoError(t, reg.Register(def))
	}
	return reg
}

func newTestRunner(t *testing.T, cfg *agentconfig.AgentConfig, provider llm.Provider, reg *tools.Registry) *Runner {
	t.Helper()
	runner, err := NewRunner(Config{
		Agent:      cfg,
		LLMs:       staticRegistry(map[string]llm.Provider{"scripted": provider}),
		Tools:      reg,
		Formatters: answer.NewRegistry(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return runner
}

func toolCallStep(calls ...llm.ToolCall) llm.ScriptedStep {
	return llm.ScriptedStep{Response: llm.Response{ToolCalls: calls}}
}

func textStep(text string) llm.ScriptedStep {
	return llm.ScriptedStep{Response: llm.Response{Content: text}}
}

func TestNewRunner(t *testing.T) {
	t.Run("should reject an unknown tool at load time", func(t *testing.T) {
		cfg := testAgentConfig()
		cfg.Tools = append(cfg.Tools, agentconfig.ToolDescriptor{Name: "ghost"})

		_, err := NewRunner(Config{
			Agent:      cfg,
			LLMs:       staticRegistry(map[string]llm.Provider{"scripted": llm.NewScripted(0)}),
			Tools:      testToolRegistry(t, nil),
			Formatters: answer.NewRegistry(),
			Logger:     zerolog.Nop(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
		assert.True(t, agenterr.HasCode(err, agenterr.CodeUnknownTool))
	})

	t.Run("should reject an unknown formatter at load time", func(t *testing.T) {
		cfg := testAgentConfig()
		cfg.AnswerFormatters = []string{"fancy"}

		_, err := NewRunner(Config{
			Agent:      cfg,
			LLMs:       staticRegistry(map[string]llm.Provider{"scripted": llm.NewScripted(0)}),
			Tools:      testToolRegistry(t, nil),
			Formatters: answer.NewRegistry(),
			Logger:     zerolog.Nop(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fancy")
	})

	t.Run("should reject an unknown LLM", func(t *testing.T) {
		cfg := testAgentConfig()
		cfg.LLMs = []agentconfig.LLMDescriptor{{Provider: "mystery"}}

		_, err := NewRunner(Config{
			Agent:      cfg,
			LLMs:       llm.DefaultRegistry(),
			Tools:      testToolRegistry(t, nil),
			Formatters: answer.NewRegistry(),
			Logger:     zerolog.Nop(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mystery")
	})

	t.Run("should validate temperature before building any provider", func(t *testing.T) {
		for _, provider := range []string{"anthropic", "openai", "scripted"} {
			for _, tc := range []struct {
				temperature float64
				wantErr     bool
			}{
				{-0.1, true},
				{0, false},
				{1, false},
				{1.01, true},
			} {
				cfg := testAgentConfig()
				cfg.LLMs = []agentconfig.LLMDescriptor{{
					Provider: provider,
					Args:     map[string]interface{}{"temperature": tc.temperature, "api_key": "sk-test"},
				}}

				_, err := NewRunner(Config{
					Agent:      cfg,
					LLMs:       llm.DefaultRegistry(),
					Tools:      testToolRegistry(t, nil),
					Formatters: answer.NewRegistry(),
					Logger:     zerolog.Nop(),
				})
				if tc.wantErr {
					require.Error(t, err, "%s at %v", provider, tc.temperature)
					assert.Equal(t, llm.TemperatureError, err.Error())
				} else {
					assert.NoError(t, err, "%s at %v", provider, tc.temperature)
				}
			}
		}
	})
}

func TestRunCeiling(t *testing.T) {
	t.Run("should stop after exactly max_intermediate_steps oracle calls", func(t *testing.T) {
		provider := llm.NewScripted(0, toolCallStep(llm.ToolCall{ID: "c1", Name: builtin.NoopTool, Arguments: map[string]interface{}{}}))
		cfg := testAgentConfig()
		cfg.MaxIntermediateSteps = 3
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "loop forever"})
		require.NoError(t, err)

		assert.Equal(t, 3, provider.Invocations())
		assert.Equal(t, StopMaxSteps, result.StopReason)
		assert.Equal(t, 3, result.Iterations)
		assert.Equal(t, agentconfig.DefaultErrorMessage, result.Answer.Text())
	})

	t.Run("should allow a final answer on the last step", func(t *testing.T) {
		provider := llm.NewScripted(0,
			toolCallStep(llm.ToolCall{ID: "c1", Name: builtin.NoopTool}),
			textStep("done"),
		)
		cfg := testAgentConfig()
		cfg.MaxIntermediateSteps = 2
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, StopFinalAnswer, result.StopReason)
		assert.Equal(t, "done", result.Answer.Text())
	})
}

func TestRunBinding(t *testing.T) {
	t.Run("should replace model-supplied bound arguments with state", func(t *testing.T) {
		retriever := new(MockRetriever)
		retriever.On("Retrieve", mock.Anything, retrieval.Request{
			Query:              "intro to go",
			ChatID:             "chat-1",
			TopK:               4,
			EmbeddingModelName: "text-embedding-3-small",
			IndexName:          "courses",
		}).Return([]retrieval.Document{{Content: "Go 101", Score: 0.8}}, nil)

		provider := llm.NewScripted(0,
			toolCallStep(llm.ToolCall{ID: "c1", Name: builtin.SearchTool, Arguments: map[string]interface{}{
				"query":      "intro to go",
				"index_name": "attacker-index",
				"chat_id":    "someone-else",
				"top_k":      1000,
			}}),
			textStep("Go 101 is available"),
		)
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, retriever))

		result, err := runner.Run(context.Background(), TurnInput{Query: "intro to go", ChatID: "chat-1"})
		require.NoError(t, err)

		retriever.AssertExpectations(t)
		assert.Equal(t, "Go 101 is available", result.Answer.Text())
	})
}

func TestRunOverride(t *testing.T) {
	t.Run("should abort without calling the LLM", func(t *testing.T) {
		provider := llm.NewScripted(0, textStep("should not be used"))
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "stop", Trigger: tools.TriggerAbort})
		require.NoError(t, err)

		assert.Equal(t, 0, provider.Invocations())
		assert.Equal(t, StopAborted, result.StopReason)
		assert.Equal(t, agentconfig.DefaultErrorMessage, result.Answer.Text())
	})

	t.Run("should abort with the last AI text when there is one", func(t *testing.T) {
		provider := llm.NewScripted(0)
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{
			History: []llm.Message{
				{Role: llm.RoleHuman, Content: "hi"},
				{Role: llm.RoleAI, Content: "Hello, ask me about courses."},
			},
			Trigger: tools.TriggerAbort,
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello, ask me about courses.", result.Answer.Text())
	})

	t.Run("should force a search with the last human message", func(t *testing.T) {
		retriever := new(MockRetriever)
		retriever.On("Retrieve", mock.Anything, mock.MatchedBy(func(req retrieval.Request) bool {
			return req.Query == "which courses cover sql" && req.IndexName == "courses"
		})).Return([]retrieval.Document{{Content: "Databases 201", Score: 0.7}}, nil).Once()

		provider := llm.NewScripted(0, textStep("Databases 201"))
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, retriever))

		result, err := runner.Run(context.Background(), TurnInput{
			Query:   "which courses cover sql",
			Trigger: tools.TriggerForceSearch,
		})
		require.NoError(t, err)

		retriever.AssertExpectations(t)
		assert.Equal(t, 1, provider.Invocations())
		assert.Equal(t, 1, result.Iterations)

		var toolMsg *llm.Message
		for i := range result.Messages {
			if result.Messages[i].Role == llm.RoleTool {
				toolMsg = &result.Messages[i]
			}
		}
		require.NotNil(t, toolMsg)
		assert.Equal(t, builtin.SearchTool, toolMsg.ToolName)
		assert.Contains(t, toolMsg.Content, "Databases 201")
	})

	t.Run("should reject an unknown trigger", func(t *testing.T) {
		runner := newTestRunner(t, testAgentConfig(), llm.NewScripted(0), testToolRegistry(t, nil))

		_, err := runner.Run(context.Background(), TurnInput{Query: "q", Trigger: "SELF_DESTRUCT"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SELF_DESTRUCT")
	})
}

func TestRunParallel(t *testing.T) {
	t.Run("should record results in declaration order and continue after a domain failure", func(t *testing.T) {
		alpha := tools.Descriptor{
			Name:        "alpha",
			Description: "slow success",
			Parallel:    true,
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				time.Sleep(30 * time.Millisecond)
				return "A done", nil
			},
		}
		beta := tools.Descriptor{
			Name:        "beta",
			Description: "fast domain failure",
			Parallel:    true,
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "", agenterr.Domain(agenterr.CodeToolFailed, "beta is unavailable")
			},
		}

		cfg := testAgentConfig()
		cfg.Tools = append(cfg.Tools, agentconfig.ToolDescriptor{Name: "alpha"}, agentconfig.ToolDescriptor{Name: "beta"})
		provider := llm.NewScripted(0,
			toolCallStep(
				llm.ToolCall{ID: "a", Name: "alpha"},
				llm.ToolCall{ID: "b", Name: "beta"},
			),
			textStep("partial answer"),
		)
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil, alpha, beta))

		result, err := runner.Run(context.Background(), TurnInput{Query: "run both"})
		require.NoError(t, err)

		require.Len(t, result.Messages, 5)
		assert.Equal(t, llm.RoleHuman, result.Messages[0].Role)
		assert.Len(t, result.Messages[1].ToolCalls, 2)

		assert.Equal(t, "a", result.Messages[2].ToolCallID)
		assert.Equal(t, "A done", result.Messages[2].Content)
		assert.False(t, result.Messages[2].IsError)

		assert.Equal(t, "b", result.Messages[3].ToolCallID)
		assert.True(t, result.Messages[3].IsError)
		assert.Contains(t, result.Messages[3].Content, "beta is unavailable")

		assert.Equal(t, "partial answer", result.Messages[4].Content)
		assert.Equal(t, 2, provider.Invocations())
	})

	t.Run("should run non-parallel sets one after another", func(t *testing.T) {
		var order []string
		record := func(name string) tools.Handler {
			return func(ctx context.Context, args map[string]interface{}) (string, error) {
				order = append(order, name)
				return name, nil
			}
		}
		first := tools.Descriptor{Name: "first", Description: "first", Handler: record("first")}
		second := tools.Descriptor{Name: "second", Description: "second", Handler: record("second")}

		cfg := testAgentConfig()
		cfg.Tools = append(cfg.Tools, agentconfig.ToolDescriptor{Name: "first"}, agentconfig.ToolDescriptor{Name: "second"})
		provider := llm.NewScripted(0,
			toolCallStep(llm.ToolCall{ID: "1", Name: "first"}, llm.ToolCall{ID: "2", Name: "second"}),
			textStep("ok"),
		)
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil, first, second))

		_, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("should append each sequential result before the next call starts", func(t *testing.T) {
		var state *ConversationState
		var seen int
		first := tools.Descriptor{Name: "first", Description: "first",
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "first done", nil
			},
		}
		second := tools.Descriptor{Name: "second", Description: "second",
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				seen = len(state.Messages)
				return "second done", nil
			},
		}

		cfg := testAgentConfig()
		cfg.Tools = append(cfg.Tools, agentconfig.ToolDescriptor{Name: "first"}, agentconfig.ToolDescriptor{Name: "second"})
		runner := newTestRunner(t, cfg, llm.NewScripted(0), testToolRegistry(t, nil, first, second))

		ctx := context.Background()
		state = runner.newState(TurnInput{Query: "q"})
		err := runner.execute(ctx, state, tracing.NewRecorder(zerolog.Nop()), Decision{
			Calls: []ToolCallProposal{
				{ID: "1", Name: "first"},
				{ID: "2", Name: "second"},
			},
			Execution: ExecutionSequential,
		})
		require.NoError(t, err)

		// human, ai proposal, first result
		assert.Equal(t, 3, seen)
		assert.Equal(t, "first done", state.Messages[2].Content)
		require.Len(t, state.Messages, 4)
		assert.Equal(t, "second done", state.Messages[3].Content)
	})
}

func TestRunFormatter(t *testing.T) {
	payload := map[string]interface{}{
		"answer":   "Take Go 101",
		"thoughts": "the user is a beginner",
		"sources":  []interface{}{"catalog.md"},
	}

	t.Run("should pass every field through the default formatter", func(t *testing.T) {
		provider := llm.NewScripted(0, toolCallStep(llm.ToolCall{ID: "f", Name: builtin.FinalAnswerTool, Arguments: payload}))
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "what should I take"})
		require.NoError(t, err)

		assert.Equal(t, answer.Default, result.Formatter)
		assert.Equal(t, "the user is a beginner", result.Answer["thoughts"])
		assert.Equal(t, []interface{}{"catalog.md"}, result.Answer["sources"])
	})

	t.Run("should strip reasoning when the model picks thoughtless", func(t *testing.T) {
		args := map[string]interface{}{"formatter": answer.Thoughtless}
		for k, v := range payload {
			args[k] = v
		}
		provider := llm.NewScripted(0, toolCallStep(llm.ToolCall{ID: "f", Name: builtin.FinalAnswerTool, Arguments: args}))
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "what should I take"})
		require.NoError(t, err)

		assert.Equal(t, answer.Thoughtless, result.Formatter)
		assert.NotContains(t, result.Answer, "thoughts")
		assert.NotContains(t, result.Answer, "formatter")
		assert.Equal(t, "Take Go 101", result.Answer.Text())
	})

	t.Run("should use the first configured formatter by default", func(t *testing.T) {
		cfg := testAgentConfig()
		cfg.AnswerFormatters = []string{answer.Thoughtless}
		provider := llm.NewScripted(0, toolCallStep(llm.ToolCall{ID: "f", Name: builtin.FinalAnswerTool, Arguments: payload}))
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.NoError(t, err)
		assert.NotContains(t, result.Answer, "thoughts")
	})
}

func TestRunFailures(t *testing.T) {
	t.Run("should record an unknown tool as a failure the model can see", func(t *testing.T) {
		provider := llm.NewScripted(0,
			toolCallStep(llm.ToolCall{ID: "g", Name: "ghost"}),
			textStep("sorry"),
		)
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.NoError(t, err)

		toolMsg := result.Messages[2]
		assert.True(t, toolMsg.IsError)
		assert.Contains(t, toolMsg.Content, "Tool not found: ghost")
	})

	t.Run("should report an invalid final answer back to the model", func(t *testing.T) {
		provider := llm.NewScripted(0,
			toolCallStep(llm.ToolCall{ID: "f", Name: builtin.FinalAnswerTool, Arguments: map[string]interface{}{"thoughts": "no answer"}}),
			textStep("Go 101 starts on Monday."),
		)
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		result, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, 2, provider.Invocations())
		assert.Equal(t, StopFinalAnswer, result.StopReason)

		toolMsg := result.Messages[2]
		assert.Equal(t, llm.RoleTool, toolMsg.Role)
		assert.Equal(t, "f", toolMsg.ToolCallID)
		assert.True(t, toolMsg.IsError)
		assert.Contains(t, toolMsg.Content, "field answer")
		assert.NotContains(t, toolMsg.Content, "Tool not found")
	})

	t.Run("should treat a provider timeout under a live context as unexpected", func(t *testing.T) {
		provider := llm.NewScripted(0, llm.ScriptedStep{Err: fmt.Errorf("request timeout: %w", context.DeadlineExceeded)})
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		_, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.Error(t, err)
		assert.False(t, agenterr.IsCancelled(err))

		var ue *agenterr.UnexpectedError
		assert.True(t, errors.As(err, &ue))
	})

	t.Run("should end the turn on an unexpected tool error", func(t *testing.T) {
		broken := tools.Descriptor{
			Name:        "broken",
			Description: "fails unexpectedly",
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "", errors.New("disk on fire")
			},
		}
		cfg := testAgentConfig()
		cfg.Tools = append(cfg.Tools, agentconfig.ToolDescriptor{Name: "broken"})
		provider := llm.NewScripted(0, toolCallStep(llm.ToolCall{ID: "x", Name: "broken"}), textStep("unreachable"))
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil, broken))

		_, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		require.Error(t, err)

		var traced *agenterr.TracedError
		require.True(t, errors.As(err, &traced))
		assert.Equal(t, agentconfig.DefaultErrorMessage, traced.Message)

		var unexpected *agenterr.UnexpectedError
		assert.True(t, errors.As(err, &unexpected))
		assert.Equal(t, 1, provider.Invocations())

		last := traced.Trace[len(traced.Trace)-1]
		assert.Equal(t, "Re-raising", last.Event)
		assert.Equal(t, nodeLoop, last.Node)
	})

	t.Run("should surface a non-retryable LLM error as traced", func(t *testing.T) {
		provider := llm.NewScripted(0, llm.ScriptedStep{Err: errors.New("invalid request")})
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		_, err := runner.Run(context.Background(), TurnInput{Query: "q"})
		var traced *agenterr.TracedError
		require.True(t, errors.As(err, &traced))
		assert.False(t, agenterr.Recoverable(err))
	})
}

func TestRunCancellation(t *testing.T) {
	t.Run("should report cancellation while waiting on the LLM", func(t *testing.T) {
		provider := llm.NewScripted(time.Second, textStep("too late"))
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := runner.Run(ctx, TurnInput{Query: "q"})
		require.Error(t, err)
		assert.True(t, agenterr.IsCancelled(err))

		var traced *agenterr.TracedError
		require.True(t, errors.As(err, &traced))
		assert.Equal(t, agentconfig.DefaultErrorMessage, traced.Message)
	})

	t.Run("should abort in-flight tool calls", func(t *testing.T) {
		started := make(chan struct{})
		slow := tools.Descriptor{
			Name:        "slow",
			Description: "waits for cancellation",
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				close(started)
				<-ctx.Done()
				return "", ctx.Err()
			},
		}
		cfg := testAgentConfig()
		cfg.Tools = append(cfg.Tools, agentconfig.ToolDescriptor{Name: "slow"})
		provider := llm.NewScripted(0, toolCallStep(llm.ToolCall{ID: "s", Name: "slow"}))
		runner := newTestRunner(t, cfg, provider, testToolRegistry(t, nil, slow))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()

		_, err := runner.Run(ctx, TurnInput{Query: "q"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.True(t, agenterr.IsCancelled(err))
	})
}

func TestRunResult(t *testing.T) {
	t.Run("should return history usable for the next turn", func(t *testing.T) {
		provider := llm.NewScripted(0, textStep("first answer"), textStep("second answer"))
		runner := newTestRunner(t, testAgentConfig(), provider, testToolRegistry(t, nil))

		first, err := runner.Run(context.Background(), TurnInput{Query: "one", ChatID: "chat-1"})
		require.NoError(t, err)
		assert.NotEmpty(t, first.TurnID)
		assert.NotEmpty(t, first.Trace)

		second, err := runner.Run(context.Background(), TurnInput{Query: "two", History: first.Messages, ChatID: "chat-1"})
		require.NoError(t, err)

		require.Len(t, second.Messages, 4)
		assert.Equal(t, "first answer", second.Messages[1].Content)
		assert.Equal(t, "second answer", second.Answer.Text())
		assert.NotEqual(t, first.TurnID, second.TurnID)
	})
}
