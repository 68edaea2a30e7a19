package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tcmartin/agentflow/pkg/agents"
	"github.com/tcmartin/agentflow/pkg/approvals"
	"github.com/tcmartin/agentflow/pkg/logging"
	"github.com/tcmartin/agentflow/pkg/workflow"
)

// DefaultApprovalType is applied when a human_approval node does not
// specify one
const DefaultApprovalType = "content"

// Executor runs workflows against an engine, an agent registry, a task
// delegator and an approval service. The graph walk is strictly
// sequential; only parallel nodes fan out, and they join before the walk
// continues, so the execution context needs no locking within a run.
type Executor struct {
	engine    *workflow.Engine
	registry  agents.Registry
	delegator agents.Delegator
	approvals approvals.Service
	events    EventSink
	logger    zerolog.Logger
}

// NewExecutor creates an executor. The event sink is optional.
func NewExecutor(engine *workflow.Engine, registry agents.Registry, delegator agents.Delegator, approvalService approvals.Service) *Executor {
	return &Executor{
		engine:    engine,
		registry:  registry,
		delegator: delegator,
		approvals: approvalService,
		logger:    logging.Component("executor"),
	}
}

// SetEventSink wires an event sink for real-time execution updates
func (e *Executor) SetEventSink(sink EventSink) {
	e.events = sink
}

// Execute drives a single run from START to a terminal or paused state.
// An unknown workflow name is the one condition reported as an error;
// every other failure mode settles into the result's Status and the
// context's node results.
func (e *Executor) Execute(ctx context.Context, workflowName string, req ExecutionRequest, initialVariables map[string]interface{}) (*ExecutionResult, error) {
	def, err := e.engine.Definition(workflowName)
	if err != nil {
		return nil, err
	}

	wctx, err := e.engine.CreateContext(workflowName, workflow.ExecutionIdentity{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
	}, initialVariables)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, def, wctx, req, workflow.StartNodeID), nil
}

// Resume continues a previously paused run from the successors of the
// node it paused at, using a context restored from a checkpoint. The
// restored context keeps its completed steps and node results; only
// nodes downstream of fromNodeID execute.
func (e *Executor) Resume(ctx context.Context, wctx *workflow.ExecutionContext, req ExecutionRequest, fromNodeID string) (*ExecutionResult, error) {
	def, err := e.engine.Definition(wctx.WorkflowName)
	if err != nil {
		return nil, err
	}
	if def.Node(fromNodeID) == nil {
		return nil, fmt.Errorf("cannot resume workflow %s: unknown node %s", wctx.WorkflowName, fromNodeID)
	}

	return e.run(ctx, def, wctx, req, fromNodeID), nil
}

// run walks the graph from fromNodeID's successors until the queue
// drains or the run fails or pauses
func (e *Executor) run(ctx context.Context, def *workflow.WorkflowDefinition, wctx *workflow.ExecutionContext, req ExecutionRequest, fromNodeID string) *ExecutionResult {
	workflowName := wctx.WorkflowName
	start := time.Now()
	wctx.Status = workflow.StatusRunning

	result := &ExecutionResult{
		WorkflowName: workflowName,
		Context:      wctx,
	}

	// The final stamp happens regardless of how the loop ends
	defer func() {
		now := time.Now()
		wctx.CompletedAt = &now
		result.Status = wctx.Status
		result.Duration = time.Since(start)
		e.publish(Event{
			Type:         EventRunFinished,
			WorkflowName: workflowName,
			SessionID:    req.SessionID,
			Status:       string(wctx.Status),
			Timestamp:    now,
		})
	}()

	queue := e.engine.NextNodes(def, fromNodeID, wctx)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		wctx.CurrentNode = node.ID
		e.publish(Event{
			Type:         EventNodeStarted,
			WorkflowName: workflowName,
			SessionID:    req.SessionID,
			NodeID:       node.ID,
			Timestamp:    time.Now(),
		})

		nodeResult := e.runNode(ctx, def, &node, wctx, req)
		wctx.RecordResult(nodeResult)

		e.publish(Event{
			Type:         EventNodeFinished,
			WorkflowName: workflowName,
			SessionID:    req.SessionID,
			NodeID:       node.ID,
			Status:       string(nodeResult.Status),
			Timestamp:    time.Now(),
		})

		e.logger.Debug().
			Str("workflow", workflowName).
			Str("session_id", req.SessionID).
			Str("node_id", node.ID).
			Str("status", string(nodeResult.Status)).
			Dur("duration", nodeResult.Duration).
			Msg("node finished")

		if nodeResult.Status == workflow.NodeStatusFailed {
			// Remaining queued nodes are abandoned, not recorded
			wctx.Status = workflow.StatusFailed
			result.Output = nodeResult.Output
			result.Error = nodeResult.Error
			return result
		}

		if node.Type == workflow.NodeTypeHumanApproval {
			// Pause point: the queue is discarded. Resumption restores a
			// checkpoint and seeds a new run from this node's successors.
			wctx.Status = workflow.StatusWaitingApproval
			if approvalID, ok := wctx.Variable(workflow.VariableApprovalID); ok {
				result.ApprovalID, _ = approvalID.(string)
			}
			result.Output = nodeResult.Output
			return result
		}

		result.Output = nodeResult.Output
		queue = append(queue, e.engine.NextNodes(def, node.ID, wctx)...)
	}

	wctx.Status = workflow.StatusCompleted
	return result
}

// nodeOutcome carries a node's result plus variable updates that must
// only be applied if the node beats its timeout. Keeping updates out of
// the worker goroutine means an abandoned node can never mutate the
// context of a run that has already moved on.
type nodeOutcome struct {
	result    *workflow.NodeResult
	variables map[string]interface{}
}

// runNode executes one node bounded by its effective timeout. Errors and
// timeouts become failed node results rather than propagating.
func (e *Executor) runNode(ctx context.Context, def *workflow.WorkflowDefinition, node *workflow.NodeSpec, wctx *workflow.ExecutionContext, req ExecutionRequest) *workflow.NodeResult {
	start := time.Now()
	timeout := def.NodeTimeout(node)

	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcomeCh := make(chan nodeOutcome, 1)
	go func() {
		outcomeCh <- e.executeNode(nodeCtx, node, wctx, req)
	}()

	select {
	case outcome := <-outcomeCh:
		for key, value := range outcome.variables {
			wctx.SetVariable(key, value)
		}
		outcome.result.Duration = time.Since(start)
		return outcome.result
	case <-nodeCtx.Done():
		// The in-flight call is not preempted; its result is discarded
		// when it eventually settles.
		return &workflow.NodeResult{
			NodeID:   node.ID,
			Status:   workflow.NodeStatusFailed,
			Error:    fmt.Sprintf("node %s timed out after %s", node.ID, timeout),
			Duration: time.Since(start),
		}
	}
}

// executeNode dispatches on the node type
func (e *Executor) executeNode(ctx context.Context, node *workflow.NodeSpec, wctx *workflow.ExecutionContext, req ExecutionRequest) nodeOutcome {
	switch node.Type {
	case workflow.NodeTypeAgent:
		return e.executeAgentNode(ctx, node, req)
	case workflow.NodeTypeParallel:
		return e.executeParallelNode(ctx, node, req)
	case workflow.NodeTypeCondition:
		return e.executeConditionNode(node, wctx)
	case workflow.NodeTypeHumanApproval:
		return e.executeApprovalNode(ctx, node, wctx, req)
	default:
		return failedOutcome(node.ID, fmt.Sprintf("unknown node type %q", node.Type))
	}
}

func (e *Executor) executeAgentNode(ctx context.Context, node *workflow.NodeSpec, req ExecutionRequest) nodeOutcome {
	if node.AgentID == "" {
		return failedOutcome(node.ID, fmt.Sprintf("agent node %s requires agent_id", node.ID))
	}

	delegation, err := e.delegator.Delegate(ctx, e.buildDelegation(node.AgentID, node.ID, req))
	if err != nil {
		return failedOutcome(node.ID, fmt.Sprintf("delegation to agent %s failed: %v", node.AgentID, err))
	}
	if delegation.Status == agents.DelegationFailed {
		return failedOutcome(node.ID, delegation.Error())
	}

	return nodeOutcome{result: &workflow.NodeResult{
		NodeID: node.ID,
		Status: workflow.NodeStatusSuccess,
		Output: delegation.Output,
	}}
}

// agentBranchResult is one branch of a parallel node's aggregate output
type agentBranchResult struct {
	AgentID string      `json:"agent_id"`
	Status  string      `json:"status"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (e *Executor) executeParallelNode(ctx context.Context, node *workflow.NodeSpec, req ExecutionRequest) nodeOutcome {
	if len(node.ParallelAgents) == 0 {
		return failedOutcome(node.ID, fmt.Sprintf("parallel node %s requires parallel_agents", node.ID))
	}

	// All branches share the enclosing node timeout through ctx
	branches := make([]agentBranchResult, len(node.ParallelAgents))
	done := make(chan int, len(node.ParallelAgents))

	for i, agentID := range node.ParallelAgents {
		go func(i int, agentID string) {
			defer func() { done <- i }()

			branch := agentBranchResult{AgentID: agentID, Status: string(workflow.NodeStatusSuccess)}
			delegation, err := e.delegator.Delegate(ctx, e.buildDelegation(agentID, node.ID, req))
			switch {
			case err != nil:
				branch.Status = string(workflow.NodeStatusFailed)
				branch.Error = err.Error()
			case delegation.Status == agents.DelegationFailed:
				branch.Status = string(workflow.NodeStatusFailed)
				branch.Error = delegation.Error()
			default:
				branch.Output = delegation.Output
			}
			branches[i] = branch
		}(i, agentID)
	}

	for range node.ParallelAgents {
		<-done
	}

	var failedAgents []string
	output := make([]interface{}, len(branches))
	for i, branch := range branches {
		output[i] = branch
		if branch.Status == string(workflow.NodeStatusFailed) {
			failedAgents = append(failedAgents, branch.AgentID)
		}
	}

	if len(failedAgents) > 0 {
		return nodeOutcome{result: &workflow.NodeResult{
			NodeID: node.ID,
			Status: workflow.NodeStatusFailed,
			Output: output,
			Error:  fmt.Sprintf("parallel agents failed: %v", failedAgents),
		}}
	}

	return nodeOutcome{result: &workflow.NodeResult{
		NodeID: node.ID,
		Status: workflow.NodeStatusSuccess,
		Output: output,
	}}
}

func (e *Executor) executeConditionNode(node *workflow.NodeSpec, wctx *workflow.ExecutionContext) nodeOutcome {
	if node.Condition == "" {
		return failedOutcome(node.ID, fmt.Sprintf("condition node %s requires a condition", node.ID))
	}

	// Evaluation never fails; a malformed expression is simply false
	value := e.engine.EvaluateCondition(node.Condition, wctx)

	return nodeOutcome{
		result: &workflow.NodeResult{
			NodeID: node.ID,
			Status: workflow.NodeStatusSuccess,
			Output: value,
		},
		variables: map[string]interface{}{
			workflow.ConditionVariablePrefix + node.ID: value,
		},
	}
}

func (e *Executor) executeApprovalNode(ctx context.Context, node *workflow.NodeSpec, wctx *workflow.ExecutionContext, req ExecutionRequest) nodeOutcome {
	approverID, _ := wctx.Variables[workflow.VariableApproverID].(string)
	if approverID == "" {
		return failedOutcome(node.ID, fmt.Sprintf("human_approval node %s requires an %s variable", node.ID, workflow.VariableApproverID))
	}

	approvalType := node.ApprovalType
	if approvalType == "" {
		approvalType = DefaultApprovalType
	}

	body := req.UserRequest
	if body == "" {
		body = fmt.Sprintf("Workflow %s is waiting for approval at %s", wctx.WorkflowName, node.ID)
	}

	approvalID, err := e.approvals.CreateApprovalRequest(ctx,
		wctx.OrganizationID, wctx.UserID, approverID, approvalType,
		fmt.Sprintf("Approval required: %s", node.ID), body,
		map[string]interface{}{
			"workflow":   wctx.WorkflowName,
			"node_id":    node.ID,
			"session_id": wctx.SessionID,
		})
	if err != nil {
		return failedOutcome(node.ID, fmt.Sprintf("failed to create approval request: %v", err))
	}

	return nodeOutcome{
		result: &workflow.NodeResult{
			NodeID: node.ID,
			Status: workflow.NodeStatusSuccess,
			Output: approvalID,
		},
		variables: map[string]interface{}{
			workflow.VariableApprovalID: approvalID,
		},
	}
}

// buildDelegation assembles a delegation request for an agent, degrading
// to a default category and prompt when the agent is not registered
func (e *Executor) buildDelegation(agentID, nodeID string, req ExecutionRequest) agents.DelegationRequest {
	category := "general"
	var skills []string
	systemPrompt := "You are a capable assistant executing one step of a workflow."

	if agent, ok := e.registry.GetAgent(agentID); ok {
		if agent.Category != "" {
			category = agent.Category
		}
		skills = agent.Skills
		if agent.SystemPrompt != "" {
			systemPrompt = agent.SystemPrompt
		}
	}

	task := req.UserRequest
	if task == "" {
		task = fmt.Sprintf("Execute workflow node %s", nodeID)
	}

	return agents.DelegationRequest{
		Category:       category,
		Skills:         skills,
		Prompt:         systemPrompt + "\n\n" + task,
		SessionID:      req.SessionID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Context: map[string]interface{}{
			"node_id":  nodeID,
			"agent_id": agentID,
		},
	}
}

func failedOutcome(nodeID, message string) nodeOutcome {
	return nodeOutcome{result: &workflow.NodeResult{
		NodeID: nodeID,
		Status: workflow.NodeStatusFailed,
		Error:  message,
	}}
}

func (e *Executor) publish(event Event) {
	if e.events != nil {
		e.events.Publish(event)
	}
}
