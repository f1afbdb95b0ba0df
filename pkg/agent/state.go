package agent

import (
	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/tools"
)

// Binding keys understood by the State Binder.
const (
	BindChatID             = "chat_id"
	BindTopK               = "top_k"
	BindEmbeddingModelName = "embedding_model_name"
	BindIndexName          = "index_name"
)

// Bindings are the session identity and retrieval defaults injected into
// tool arguments.
type Bindings struct {
	ChatID             string
	TopK               int
	EmbeddingModelName string
	IndexName          string
}

// Value returns the state value for a binding key. Empty strings count as
// absent so the key is removed rather than sent blank.
func (b Bindings) Value(key string) (interface{}, bool) {
	switch key {
	case BindChatID:
		return b.ChatID, b.ChatID != ""
	case BindTopK:
		return b.TopK, true
	case BindEmbeddingModelName:
		return b.EmbeddingModelName, b.EmbeddingModelName != ""
	case BindIndexName:
		return b.IndexName, b.IndexName != ""
	default:
		return nil, false
	}
}

// ConversationState is the mutable state of a single turn.
type ConversationState struct {
	Messages  []llm.Message
	Iteration int
	Bindings  Bindings
	Trigger   tools.Trigger

	defaultAnswer string
}

// LastHumanMessage returns the most recent human message, or "".
func (s *ConversationState) LastHumanMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleHuman {
			return s.Messages[i].Content
		}
	}
	return ""
}

// BestEffortAnswer is what the turn can say right now: the last successful
// tool output, else the last AI text, else the default error message.
func (s *ConversationState) BestEffortAnswer() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == llm.RoleTool && !m.IsError && m.Content != "" {
			return m.Content
		}
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == llm.RoleAI && m.Content != "" {
			return m.Content
		}
	}
	return s.defaultAnswer
}

// ExecutionType is the dispatch mode of a proposal set.
type ExecutionType string

const (
	ExecutionParallel   ExecutionType = "PARALLEL"
	ExecutionSequential ExecutionType = "SEQUENTIAL"
)

// ToolCallProposal is one tool call suggested by the Oracle or the
// Override Layer.
type ToolCallProposal struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// FinalAnswer ends the turn with payload rendered by Formatter.
type FinalAnswer struct {
	Payload   answer.Payload
	Formatter string
}

// Decision is the outcome of one deciding step. Exactly one of FinalAnswer
// and Calls is set.
type Decision struct {
	FinalAnswer *FinalAnswer
	Calls       []ToolCallProposal
	Execution   ExecutionType
	// Content is any text the model sent alongside its tool calls.
	Content string
	// Forced marks proposals built by the Override Layer.
	Forced bool
}

// StopReason says why a turn finished.
type StopReason string

const (
	StopFinalAnswer StopReason = "final_answer"
	StopMaxSteps    StopReason = "max_intermediate_steps"
	StopAborted     StopReason = "aborted"
)

// TurnInput is what the caller supplies for one turn.
type TurnInput struct {
	Query   string
	History []llm.Message
	ChatID  string
	// Trigger requests a deterministic override on the first iteration.
	Trigger tools.Trigger
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	TurnID     string
	Answer     answer.Rendered
	Formatter  string
	StopReason StopReason
	Iterations int
	// Messages is the full conversation including this turn, suitable as
	// History for the next one.
	Messages []llm.Message
	Trace    []agenterr.TraceEvent
}
