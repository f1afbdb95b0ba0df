package agent

import (
	"github.com/harun/oracle/pkg/tools"
)

// Bind returns the arguments for proposal with every binding key of the
// resolved tool overwritten from state, then validates them against the
// tool schema. A binding key without a state value is removed so that a
// model-supplied value never survives. proposal is not modified.
func Bind(reg *tools.Registry, proposal ToolCallProposal, state *ConversationState) (map[string]interface{}, error) {
	def, err := reg.Resolve(proposal.Name)
	if err != nil {
		return nil, err
	}

	args := make(map[string]interface{}, len(proposal.Arguments)+len(def.Bindings))
	for k, v := range proposal.Arguments {
		args[k] = v
	}

	for _, key := range def.Bindings {
		if v, ok := state.Bindings.Value(key); ok {
			args[key] = v
		} else {
			delete(args, key)
		}
	}

	if err := reg.Validate(def.Name, args); err != nil {
		return nil, err
	}
	return args, nil
}
