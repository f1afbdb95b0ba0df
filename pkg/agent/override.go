package agent

import (
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/oracle/pkg/tools"
	"github.com/harun/oracle/pkg/tools/builtin"
)

// Override turns a pending trigger into a proposal that bypasses the
// Oracle. It reports false when no trigger is pending or the trigger has no
// tool to run.
func Override(trigger tools.Trigger, state *ConversationState, reg *tools.Registry) (*ToolCallProposal, bool) {
	switch trigger {
	case tools.TriggerAbort:
		return &ToolCallProposal{
			ID:   newCallID(),
			Name: builtin.FinalAnswerTool,
			Arguments: map[string]interface{}{
				"answer": state.BestEffortAnswer(),
			},
		}, true

	case tools.TriggerForceSearch:
		def, err := reg.ResolveTrigger(trigger)
		if err != nil {
			return nil, false
		}
		return &ToolCallProposal{
			ID:   newCallID(),
			Name: def.Name,
			Arguments: map[string]interface{}{
				"query": state.LastHumanMessage(),
			},
		}, true

	default:
		return nil, false
	}
}

func newCallID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "call_override"
	}
	return "call_" + id
}
