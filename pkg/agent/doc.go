// Package agent runs one conversation turn as a bounded decision loop.
//
// Each iteration checks the step ceiling, applies a pending deterministic
// trigger, asks the Oracle for a decision and either formats a final answer
// or binds and executes the proposed tool calls.
//
// Invariants:
// - A turn owns its ConversationState; Runner is immutable and shared.
// - Bound tool arguments always come from state, never from the model.
// - Only domain failures raised by tools are recorded into history; every
//   other failure ends the turn as an agenterr.TracedError.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Agent:      cfg,
//		LLMs:       llm.DefaultRegistry(),
//		Tools:      toolRegistry,
//		Formatters: answer.NewRegistry(),
//		Logger:     logger,
//	})
//	result, err := runner.Run(ctx, agent.TurnInput{Query: "hello", ChatID: "chat-1"})
package agent
