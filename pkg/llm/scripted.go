package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScriptedStep configures one model turn in a scripted sequence.
type ScriptedStep struct {
	Response Response
	Err      error
}

// ScriptedProvider is a deterministic provider for tests and offline runs.
// Once the script is exhausted it keeps returning the last step.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	index    int
	calls    int
	delay    time.Duration
	requests []Request
}

var _ Provider = (*ScriptedProvider)(nil)

// NewScripted creates a scripted provider.
func NewScripted(delay time.Duration, steps ...ScriptedStep) *ScriptedProvider {
	cloned := make([]ScriptedStep, len(steps))
	copy(cloned, steps)
	return &ScriptedProvider{
		steps: cloned,
		delay: delay,
	}
}

// NewScriptedFromArgs builds a scripted provider from config args:
// delay_ms and responses[{content, tool_calls[{id, name, arguments}]}].
func NewScriptedFromArgs(_ Settings, args Args) (Provider, error) {
	delayMs, err := args.Int("delay_ms")
	if err != nil {
		return nil, err
	}

	var steps []ScriptedStep
	if raw, ok := args["responses"]; ok && raw != nil {
		items, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("scripted responses must be a list")
		}
		for i, item := range items {
			step, err := parseScriptedStep(item)
			if err != nil {
				return nil, fmt.Errorf("scripted response %d: %w", i, err)
			}
			steps = append(steps, step)
		}
	}

	return NewScripted(time.Duration(delayMs)*time.Millisecond, steps...), nil
}

func parseScriptedStep(item interface{}) (ScriptedStep, error) {
	switch v := item.(type) {
	case string:
		return ScriptedStep{Response: Response{Content: v}}, nil
	case map[string]interface{}:
		content, _ := v["content"].(string)
		step := ScriptedStep{Response: Response{Content: content}}

		rawCalls, _ := v["tool_calls"].([]interface{})
		for i, rc := range rawCalls {
			call, ok := rc.(map[string]interface{})
			if !ok {
				return ScriptedStep{}, fmt.Errorf("tool call %d must be a map", i)
			}
			name, _ := call["name"].(string)
			id, _ := call["id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			arguments, _ := call["arguments"].(map[string]interface{})
			step.Response.ToolCalls = append(step.Response.ToolCalls, ToolCall{
				ID:        id,
				Name:      name,
				Arguments: arguments,
			})
		}
		return step, nil
	default:
		return ScriptedStep{}, fmt.Errorf("unsupported response type %T", item)
	}
}

// Name returns the provider id
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Invoke returns the next scripted response after the configured delay.
func (p *ScriptedProvider) Invoke(ctx context.Context, request Request) (*Response, error) {
	p.mu.Lock()
	p.calls++
	p.requests = append(p.requests, request)
	step := ScriptedStep{}
	if len(p.steps) > 0 {
		step = p.steps[p.index]
		if p.index < len(p.steps)-1 {
			p.index++
		}
	}
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if step.Err != nil {
		return nil, step.Err
	}
	return cloneResponse(step.Response), nil
}

// Invocations returns how many times Invoke was called.
func (p *ScriptedProvider) Invocations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Requests returns a copy of every request received.
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func cloneResponse(r Response) *Response {
	out := Response{Content: r.Content}
	for _, tc := range r.ToolCalls {
		args := make(map[string]interface{}, len(tc.Arguments))
		for k, v := range tc.Arguments {
			args[k] = v
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
	}
	return &out
}
