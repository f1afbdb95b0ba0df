package builtin

import (
	"context"
	"fmt"

	"github.com/harun/oracle/pkg/retrieval"
	"github.com/harun/oracle/pkg/tools"
)

const (
	SearchTool      = "search"
	FinalAnswerTool = "finalAnswer"
	NoopTool        = "noop"
)

// Retriever is the retrieval capability the search tool needs.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Document, error)
}

// Dependencies are the collaborators of the built-in tools. A nil Retriever
// leaves search registered but failing with a domain error.
type Dependencies struct {
	Retriever Retriever
}

// Register adds the built-in tools to reg and maps the force-search trigger
// to the search tool.
func Register(reg *tools.Registry, deps Dependencies) error {
	for _, def := range []tools.Descriptor{
		FinalAnswer(),
		Search(deps.Retriever),
		Noop(),
	} {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}

	if err := reg.RegisterTrigger(tools.TriggerForceSearch, SearchTool); err != nil {
		return fmt.Errorf("register trigger: %w", err)
	}
	return nil
}

// FinalAnswer is the terminal tool offered to the model on every call. It is
// never executed by the loop; its arguments become the answer payload.
func FinalAnswer() tools.Descriptor {
	return tools.Descriptor{
		Name:        FinalAnswerTool,
		Description: "Return the final answer to the user. Call this once you can answer the question.",
		Parameters: []tools.Parameter{
			{Name: "answer", Type: "string", Description: "The answer shown to the user", Required: true},
			{Name: "thoughts", Type: "string", Description: "Reasoning behind the answer"},
			{Name: "formatter", Type: "string", Description: "Optional answer formatter name"},
		},
		AdditionalProperties: true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			answer, _ := args["answer"].(string)
			return answer, nil
		},
	}
}

// Noop echoes its message. It is useful for wiring checks and tests.
func Noop() tools.Descriptor {
	return tools.Descriptor{
		Name:        NoopTool,
		Description: "Do nothing and echo the message back.",
		Parameters: []tools.Parameter{
			{Name: "message", Type: "string", Description: "Text to echo"},
		},
		Parallel: true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if msg, ok := args["message"].(string); ok && msg != "" {
				return msg, nil
			}
			return "ok", nil
		},
	}
}
