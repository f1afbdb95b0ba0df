// Package tools registers tool descriptors and executes validated calls.
//
// Invariants:
// - Tool names are unique.
// - Arguments are schema-validated before execution.
// - Bound parameters never appear in the schema shown to the model.
//
// Usage:
//
//	reg := tools.New()
//	_ = reg.Register(tools.Descriptor{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []tools.Parameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) { return args["text"].(string), nil },
//	})
package tools
