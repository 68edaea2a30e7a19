package checkpoint

import (
	"github.com/tcmartin/agentflow/pkg/workflow"
)

// FromContext builds a checkpoint snapshot from an execution context. The
// variable and result maps are shallow-copied so later mutation of the
// context does not leak into a saved snapshot.
func FromContext(workflowID string, ctx *workflow.ExecutionContext) *Checkpoint {
	state := make(map[string]interface{}, len(ctx.Variables))
	for k, v := range ctx.Variables {
		state[k] = v
	}

	results := make(map[string]interface{}, len(ctx.NodeResults))
	for id, result := range ctx.NodeResults {
		copied := *result
		results[id] = &copied
	}

	return &Checkpoint{
		WorkflowID:     workflowID,
		WorkflowName:   ctx.WorkflowName,
		SessionID:      ctx.SessionID,
		OrganizationID: ctx.OrganizationID,
		UserID:         ctx.UserID,
		CompletedSteps: ctx.CompletedSteps(),
		CurrentStep:    ctx.CurrentNode,
		State:          state,
		NodeResults:    results,
	}
}

// RestoreToContext rehydrates an execution context from a checkpoint so a
// new executor run can continue from where the snapshot was taken. Node
// results round-trip through JSON-shaped maps when the checkpoint was
// loaded from storage.
func RestoreToContext(cp *Checkpoint, ctx *workflow.ExecutionContext) {
	ctx.WorkflowName = cp.WorkflowName
	ctx.OrganizationID = cp.OrganizationID
	ctx.UserID = cp.UserID
	ctx.SessionID = cp.SessionID
	ctx.CurrentNode = cp.CurrentStep

	ctx.Variables = make(map[string]interface{}, len(cp.State))
	for k, v := range cp.State {
		ctx.Variables[k] = v
	}

	ctx.NodeResults = make(map[string]*workflow.NodeResult, len(cp.NodeResults))
	for id, raw := range cp.NodeResults {
		switch result := raw.(type) {
		case *workflow.NodeResult:
			copied := *result
			ctx.NodeResults[id] = &copied
		case map[string]interface{}:
			ctx.NodeResults[id] = nodeResultFromMap(id, result)
		}
	}
}

func nodeResultFromMap(id string, m map[string]interface{}) *workflow.NodeResult {
	result := &workflow.NodeResult{NodeID: id}
	if nodeID, ok := m["node_id"].(string); ok && nodeID != "" {
		result.NodeID = nodeID
	}
	if status, ok := m["status"].(string); ok {
		result.Status = workflow.NodeStatus(status)
	}
	if output, ok := m["output"]; ok {
		result.Output = output
	}
	if errMsg, ok := m["error"].(string); ok {
		result.Error = errMsg
	}
	return result
}
