// Package llm adapts LLM provider SDKs behind a single Invoke call.
//
// Invariants:
// - Temperature is validated before any provider client is constructed.
// - Providers are stateless between calls; conversation state is owned by the caller.
//
// Usage:
//
//	registry := llm.DefaultRegistry()
//	provider, _ := registry.New("anthropic", llm.Args{"model": "claude-3-5-sonnet-20241022"})
//	resp, _ := provider.Invoke(ctx, llm.Request{Messages: history})
//	_ = resp
package llm
