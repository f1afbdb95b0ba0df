package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agentconfig"
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/tools"
	"github.com/harun/oracle/pkg/tools/builtin"
)

// Oracle asks the configured LLMs what to do next.
type Oracle struct {
	agent     *agentconfig.AgentConfig
	providers []llm.Provider
	tools     *tools.Registry
	choice    llm.ToolChoice
	logger    zerolog.Logger
}

// OracleConfig holds oracle configuration
type OracleConfig struct {
	Agent     *agentconfig.AgentConfig
	Providers []llm.Provider
	Tools     *tools.Registry
	Logger    zerolog.Logger
}

// NewOracle creates an oracle over providers, tried in order.
func NewOracle(cfg OracleConfig) (*Oracle, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent config is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if !cfg.Tools.Has(builtin.FinalAnswerTool) {
		return nil, fmt.Errorf("tool registry has no %s tool", builtin.FinalAnswerTool)
	}

	choice := llm.ToolChoice{Mode: llm.ToolChoiceAuto}
	if cfg.Agent.ToolChoice == agentconfig.ToolChoiceAny {
		choice.Mode = llm.ToolChoiceAny
	}

	return &Oracle{
		agent:     cfg.Agent,
		providers: cfg.Providers,
		tools:     cfg.Tools,
		choice:    choice,
		logger:    cfg.Logger,
	}, nil
}

// Decide invokes the LLM with history and the schemas of available plus
// finalAnswer, and interprets the response.
func (o *Oracle) Decide(ctx context.Context, history []llm.Message, available []string) (Decision, error) {
	schemas, err := o.tools.LLMSchemas(append(append([]string{}, available...), builtin.FinalAnswerTool))
	if err != nil {
		return Decision{}, err
	}

	req := llm.Request{
		SystemPrompt: o.agent.SystemPrompt,
		Messages:     history,
		Tools:        schemas,
		ToolChoice:   o.choice,
	}

	resp, err := o.invoke(ctx, req)
	if err != nil {
		return Decision{}, err
	}

	decision := o.interpret(resp)
	switch {
	case decision.FinalAnswer != nil && len(resp.ToolCalls) == 0:
		observability.RecordOracleDecision("text")
	case decision.FinalAnswer != nil:
		observability.RecordOracleDecision("final_answer")
	default:
		observability.RecordOracleDecision("tool_calls")
	}
	return decision, nil
}

// invoke tries each provider in order, moving on only after a retryable
// transport failure.
func (o *Oracle) invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	logger := tracing.PropagateToLogger(ctx, o.logger)

	var lastErr error
	for i, provider := range o.providers {
		callCtx, span := tracing.StartSpan(ctx, "oracle.invoke",
			attribute.String("provider", provider.Name()),
			attribute.Int("attempt", i+1),
		)
		start := time.Now()
		resp, err := provider.Invoke(callCtx, req)
		observability.RecordProviderCall(provider.Name(), time.Since(start), err == nil)

		if err == nil {
			span.End()
			logger.Debug().
				Str("provider", provider.Name()).
				Int("tool_calls", len(resp.ToolCalls)).
				Msg("LLM responded")
			return resp, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		if !llm.IsRetryableError(err) {
			return nil, err
		}

		logger.Warn().
			Str("provider", provider.Name()).
			Err(err).
			Msg("LLM call failed, trying next provider")
		observability.RecordProviderFailover(provider.Name())
	}

	return nil, fmt.Errorf("all LLM providers failed: %w", lastErr)
}

// interpret maps a model response to a decision. A valid finalAnswer call
// wins over its siblings; an invalid one is executed like any other call so
// the validation failure reaches the model.
func (o *Oracle) interpret(resp *llm.Response) Decision {
	if len(resp.ToolCalls) == 0 {
		return Decision{FinalAnswer: &FinalAnswer{
			Payload:   answer.Payload{"answer": resp.Content},
			Formatter: o.agent.DefaultFormatter(),
		}}
	}

	for _, call := range resp.ToolCalls {
		if call.Name != builtin.FinalAnswerTool {
			continue
		}
		if err := o.tools.Validate(call.Name, call.Arguments); err != nil {
			continue
		}
		return Decision{FinalAnswer: o.finalAnswer(call.Arguments)}
	}

	calls := make([]ToolCallProposal, len(resp.ToolCalls))
	for i, call := range resp.ToolCalls {
		calls[i] = ToolCallProposal{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}

	return Decision{
		Calls:     calls,
		Execution: executionType(o.tools, calls),
		Content:   resp.Content,
	}
}

func (o *Oracle) finalAnswer(args map[string]interface{}) *FinalAnswer {
	formatter := o.agent.DefaultFormatter()
	payload := make(answer.Payload, len(args))
	for k, v := range args {
		if k == "formatter" {
			if name, ok := v.(string); ok && o.agent.HasFormatter(name) {
				formatter = name
			}
			continue
		}
		payload[k] = v
	}
	return &FinalAnswer{Payload: payload, Formatter: formatter}
}

// executionType is PARALLEL only when every proposed tool allows it.
func executionType(reg *tools.Registry, calls []ToolCallProposal) ExecutionType {
	for _, call := range calls {
		def, err := reg.Resolve(call.Name)
		if err != nil || !def.Parallel {
			return ExecutionSequential
		}
	}
	return ExecutionParallel
}
