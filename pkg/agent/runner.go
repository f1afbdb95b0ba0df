package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agentconfig"
	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/tools"
	"github.com/harun/oracle/pkg/tools/builtin"
)

// Trace node names.
const (
	nodeLoop     = "loop"
	nodeOverride = "override"
	nodeOracle   = "oracle"
	nodeTools    = "tools"
	nodeFormat   = "formatter"
)

// Runner executes turns for one resolved agent configuration
type Runner struct {
	agent      *agentconfig.AgentConfig
	oracle     *Oracle
	tools      *tools.Registry
	formatters *answer.Registry
	allowed    map[string]bool
	logger     zerolog.Logger
}

// Config holds runner configuration
type Config struct {
	Agent      *agentconfig.AgentConfig
	LLMs       *llm.Registry
	Tools      *tools.Registry
	Formatters *answer.Registry
	Logger     zerolog.Logger
}

// NewRunner checks every reference in the agent config and builds the LLM
// providers. Broken references fail here, never during a turn.
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent config is required")
	}
	if cfg.LLMs == nil {
		return nil, fmt.Errorf("LLM registry is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Formatters == nil {
		return nil, fmt.Errorf("formatter registry is required")
	}

	allowed := make(map[string]bool, len(cfg.Agent.Tools))
	for _, name := range append(cfg.Agent.ToolNames(), cfg.Agent.InitialTools...) {
		if _, err := cfg.Tools.Resolve(name); err != nil {
			return nil, err
		}
		allowed[name] = true
	}
	// finalAnswer is offered on every call, so an invalid one is executed
	// and its validation error reaches the model.
	allowed[builtin.FinalAnswerTool] = true
	for _, name := range cfg.Agent.AnswerFormatters {
		if !cfg.Formatters.Has(name) {
			return nil, agenterr.Domain(agenterr.CodeUnknownFormatter, "Answer formatter not found: %s", name)
		}
	}

	providers := make([]llm.Provider, 0, len(cfg.Agent.LLMs))
	for _, desc := range cfg.Agent.LLMs {
		provider, err := cfg.LLMs.New(desc.Provider, llm.Args(desc.Args))
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}

	oracle, err := NewOracle(OracleConfig{
		Agent:     cfg.Agent,
		Providers: providers,
		Tools:     cfg.Tools,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		agent:      cfg.Agent,
		oracle:     oracle,
		tools:      cfg.Tools,
		formatters: cfg.Formatters,
		allowed:    allowed,
		logger:     cfg.Logger,
	}, nil
}

// Run executes one turn. Failures are returned as *agenterr.TracedError.
func (r *Runner) Run(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	ctx = tracing.NewTurnContext(ctx, in.ChatID)
	turnID := tracing.GetTurnID(ctx)
	ctx, span := tracing.StartSpan(ctx, "agent.turn",
		attribute.String("turn_id", turnID),
		attribute.String("chat_id", in.ChatID),
	)
	defer span.End()

	logger := tracing.PropagateToLogger(ctx, r.logger)
	rec := tracing.NewRecorder(logger)
	state := r.newState(in)

	rec.Enter(ctx, nodeLoop)
	result, err := r.loop(ctx, state, rec, logger)
	if err != nil {
		err = agenterr.ClassifyContext(ctx, err)
		rec.Reraise(ctx, nodeLoop, err)
		traced := agenterr.Trace(err, rec.Events(), r.agent.DefaultErrorMessage)
		observability.RecordTurn(outcome(traced), time.Since(start), state.Iteration)
		logger.Error().Err(traced.Err).Int("iteration", state.Iteration).Msg("Turn failed")
		return nil, traced
	}
	rec.Success(ctx, nodeLoop)

	result.TurnID = turnID
	result.Trace = rec.Events()
	observability.RecordTurn(string(result.StopReason), time.Since(start), result.Iterations)
	logger.Info().
		Str("stop_reason", string(result.StopReason)).
		Int("iterations", result.Iterations).
		Dur("duration", time.Since(start)).
		Msg("Turn finished")
	return result, nil
}

func (r *Runner) newState(in TurnInput) *ConversationState {
	messages := make([]llm.Message, 0, len(in.History)+1)
	messages = append(messages, in.History...)
	if in.Query != "" {
		messages = append(messages, llm.Message{Role: llm.RoleHuman, Content: in.Query})
	}

	return &ConversationState{
		Messages: messages,
		Bindings: Bindings{
			ChatID:             in.ChatID,
			TopK:               r.agent.VectorResultsTopK,
			EmbeddingModelName: r.agent.EmbeddingModelName,
			IndexName:          r.agent.IndexName,
		},
		Trigger:       in.Trigger,
		defaultAnswer: r.agent.DefaultErrorMessage,
	}
}

func (r *Runner) loop(ctx context.Context, state *ConversationState, rec *tracing.Recorder, logger zerolog.Logger) (*TurnResult, error) {
	if err := validateTrigger(state.Trigger); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if state.Iteration >= r.agent.MaxIntermediateSteps {
			logger.Warn().Int("max_intermediate_steps", r.agent.MaxIntermediateSteps).Msg("Step ceiling reached")
			return r.finish(ctx, state, rec, &FinalAnswer{
				Payload:   answer.Payload{"answer": r.agent.DefaultErrorMessage},
				Formatter: r.agent.DefaultFormatter(),
			}, StopMaxSteps)
		}

		decision, err := r.decide(ctx, state, rec)
		if err != nil {
			return nil, err
		}

		if decision.FinalAnswer != nil {
			reason := StopFinalAnswer
			if decision.Forced {
				reason = StopAborted
			}
			return r.finish(ctx, state, rec, decision.FinalAnswer, reason)
		}

		if err := r.execute(ctx, state, rec, decision); err != nil {
			return nil, err
		}
		state.Iteration++
	}
}

// decide applies a pending trigger, or asks the Oracle.
func (r *Runner) decide(ctx context.Context, state *ConversationState, rec *tracing.Recorder) (Decision, error) {
	if state.Trigger != tools.TriggerNone {
		trigger := state.Trigger
		state.Trigger = tools.TriggerNone

		rec.Enter(ctx, nodeOverride)
		proposal, ok := Override(trigger, state, r.tools)
		if !ok {
			err := agenterr.Domain(agenterr.CodeUnknownTool, "No tool mapped to trigger: %s", trigger)
			rec.Error(ctx, nodeOverride, err)
			return Decision{}, err
		}
		rec.Success(ctx, nodeOverride)

		observability.RecordOverride(string(trigger))
		observability.RecordOverrideAudit(ctx, string(trigger), tracing.GetTurnID(ctx), map[string]interface{}{
			"tool":      proposal.Name,
			"iteration": state.Iteration,
		})

		if proposal.Name == builtin.FinalAnswerTool {
			return Decision{
				FinalAnswer: &FinalAnswer{Payload: answer.Payload(proposal.Arguments), Formatter: r.agent.DefaultFormatter()},
				Forced:      true,
			}, nil
		}
		return Decision{
			Calls:     []ToolCallProposal{*proposal},
			Execution: ExecutionSequential,
			Forced:    true,
		}, nil
	}

	rec.Enter(ctx, nodeOracle)
	decision, err := r.oracle.Decide(ctx, state.Messages, r.available(state.Iteration))
	if err != nil {
		rec.Error(ctx, nodeOracle, err)
		return Decision{}, err
	}
	rec.Success(ctx, nodeOracle)
	return decision, nil
}

// available is initial_tools on the first iteration when configured, and
// the full tool list afterwards.
func (r *Runner) available(iteration int) []string {
	if iteration == 0 && len(r.agent.InitialTools) > 0 {
		return r.agent.InitialTools
	}
	return r.agent.ToolNames()
}

func (r *Runner) finish(ctx context.Context, state *ConversationState, rec *tracing.Recorder, fa *FinalAnswer, reason StopReason) (*TurnResult, error) {
	rec.Enter(ctx, nodeFormat)
	rendered, err := r.formatters.Format(fa.Payload, fa.Formatter)
	if err != nil {
		rec.Error(ctx, nodeFormat, err)
		return nil, err
	}
	rec.Success(ctx, nodeFormat)

	state.Messages = append(state.Messages, llm.Message{Role: llm.RoleAI, Content: rendered.Text()})

	formatter := fa.Formatter
	if formatter == "" {
		formatter = answer.Default
	}
	return &TurnResult{
		Answer:     rendered,
		Formatter:  formatter,
		StopReason: reason,
		Iterations: state.Iteration,
		Messages:   state.Messages,
	}, nil
}

// callResult is the outcome of one tool call.
type callResult struct {
	output string
	err    error
}

// execute runs the proposal set and appends one tool message per call in
// declaration order. Domain failures become error messages; anything else
// ends the turn once the set is done.
func (r *Runner) execute(ctx context.Context, state *ConversationState, rec *tracing.Recorder, decision Decision) error {
	toolCalls := make([]llm.ToolCall, len(decision.Calls))
	for i, call := range decision.Calls {
		toolCalls[i] = llm.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}
	state.Messages = append(state.Messages, llm.Message{
		Role:      llm.RoleAI,
		Content:   decision.Content,
		ToolCalls: toolCalls,
	})

	rec.Enter(ctx, nodeTools)

	var fatal error
	if decision.Execution == ExecutionParallel {
		results := make([]callResult, len(decision.Calls))
		var g errgroup.Group
		for i, call := range decision.Calls {
			g.Go(func() error {
				output, err := r.runCall(ctx, state, call, decision.Forced)
				results[i] = callResult{output: output, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for i, res := range results {
			if err := r.appendResult(ctx, state, rec, decision.Calls[i], res); err != nil && fatal == nil {
				fatal = err
			}
		}
	} else {
		// Each result is in history before the next call starts.
		for _, call := range decision.Calls {
			output, err := r.runCall(ctx, state, call, decision.Forced)
			if fatal = r.appendResult(ctx, state, rec, call, callResult{output: output, err: err}); fatal != nil {
				break
			}
		}
	}

	if fatal != nil {
		rec.Error(ctx, nodeTools, fatal)
		return fatal
	}
	rec.Success(ctx, nodeTools)
	return nil
}

// appendResult records one call outcome as a tool message. A fatal error is
// returned instead of being recorded.
func (r *Runner) appendResult(ctx context.Context, state *ConversationState, rec *tracing.Recorder, call ToolCallProposal, res callResult) error {
	msg := llm.Message{
		Role:       llm.RoleTool,
		Content:    res.output,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
	if res.err != nil {
		if !agenterr.Recoverable(res.err) {
			return res.err
		}
		rec.Error(ctx, nodeTools, res.err)
		msg.Content = "Error: " + res.err.Error()
		msg.IsError = true
	}
	state.Messages = append(state.Messages, msg)
	return nil
}

// runCall binds and executes one call. The returned error is already
// classified.
func (r *Runner) runCall(ctx context.Context, state *ConversationState, call ToolCallProposal, forced bool) (string, error) {
	start := time.Now()
	turnID := tracing.GetTurnID(ctx)

	output, err := r.bindAndExecute(ctx, state, call, forced)
	err = agenterr.ClassifyContext(ctx, err)

	observability.RecordToolExecution(call.Name, time.Since(start), err == nil)
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.RecordToolAudit(ctx, call.Name, turnID, status, map[string]interface{}{
		"call_id": call.ID,
	})
	return output, err
}

func (r *Runner) bindAndExecute(ctx context.Context, state *ConversationState, call ToolCallProposal, forced bool) (string, error) {
	if !forced && !r.allowed[call.Name] {
		return "", agenterr.Domain(agenterr.CodeUnknownTool, "Tool not found: %s", call.Name)
	}

	args, err := Bind(r.tools, call, state)
	if err != nil {
		return "", err
	}

	execCtx := tools.ContextWithExecutionContext(ctx, &tools.ExecutionContext{
		TurnID:   tracing.GetTurnID(ctx),
		CallID:   call.ID,
		ToolName: call.Name,
		ChatID:   state.Bindings.ChatID,
		Config:   r.agent.ToolConfig(call.Name),
	})
	return r.tools.Execute(execCtx, call.Name, args)
}

func validateTrigger(trigger tools.Trigger) error {
	switch trigger {
	case tools.TriggerNone, tools.TriggerAbort, tools.TriggerForceSearch:
		return nil
	default:
		return agenterr.Domain(agenterr.CodeInvalidArguments, "Unknown trigger: %s", trigger)
	}
}

// outcome labels a failed turn for metrics.
func outcome(err *agenterr.TracedError) string {
	switch {
	case agenterr.IsCancelled(err.Err):
		return "cancelled"
	case agenterr.Recoverable(err.Err):
		return "domain_error"
	default:
		return "unexpected_error"
	}
}
