package tools

import "context"

// ExecutionContext provides runtime information for one tool call
type ExecutionContext struct {
	TurnID   string
	CallID   string
	ToolName string
	ChatID   string
	// Config is the per-tool config block from the agent configuration.
	Config map[string]interface{}
}

type execContextKey struct{}

// ContextWithExecutionContext attaches the execution context to a context.Context for tool handlers.
func ContextWithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecutionContextFrom extracts the execution context from a context.Context.
func ExecutionContextFrom(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(execContextKey{}); v != nil {
		if execCtx, ok := v.(*ExecutionContext); ok {
			return execCtx
		}
	}
	return nil
}

// ConfigString reads a string from the per-tool config, or def when absent.
func (e *ExecutionContext) ConfigString(key, def string) string {
	if e == nil || e.Config == nil {
		return def
	}
	if s, ok := e.Config[key].(string); ok && s != "" {
		return s
	}
	return def
}
