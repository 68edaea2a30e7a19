package workflow

import "time"

// ExecutionStatus represents the state of a workflow execution
type ExecutionStatus string

// Execution statuses. waiting_approval, completed and failed are terminal
// for a single executor run; resumption starts a new run.
const (
	StatusPending         ExecutionStatus = "pending"
	StatusRunning         ExecutionStatus = "running"
	StatusWaitingApproval ExecutionStatus = "waiting_approval"
	StatusCompleted       ExecutionStatus = "completed"
	StatusFailed          ExecutionStatus = "failed"
)

// NodeStatus represents the state of a single node's execution
type NodeStatus string

// Node statuses
const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Well-known variable keys written by the executor
const (
	// VariableApproverID must be supplied by the caller for workflows that
	// contain human_approval nodes
	VariableApproverID = "approverId"

	// VariableApprovalID holds the id of the pending approval request
	VariableApprovalID = "approvalId"

	// ConditionVariablePrefix prefixes the per-node keys that hold
	// condition node outcomes, e.g. "condition:check"
	ConditionVariablePrefix = "condition:"
)

// NodeResult records the outcome of executing one node
type NodeResult struct {
	// NodeID identifies the node
	NodeID string `json:"node_id"`

	// Status of the node execution
	Status NodeStatus `json:"status"`

	// Output is the node's opaque result value (agent text, parallel
	// result array, condition boolean)
	Output interface{} `json:"output,omitempty"`

	// Error message if the node failed
	Error string `json:"error,omitempty"`

	// Duration of the node execution
	Duration time.Duration `json:"duration,omitempty"`
}

// ExecutionIdentity carries the tenant and session identifiers of a run
type ExecutionIdentity struct {
	// OrganizationID is the owning tenant
	OrganizationID string `json:"organization_id"`

	// UserID is the initiating user
	UserID string `json:"user_id"`

	// SessionID keys the run for checkpointing
	SessionID string `json:"session_id"`
}

// ExecutionContext is the mutable per-run state threaded through a
// workflow execution. It is owned by a single executor run; only the
// parallel node type introduces concurrency and it does not touch the
// context from its worker goroutines.
type ExecutionContext struct {
	// WorkflowName of the definition being executed
	WorkflowName string `json:"workflow_name"`

	// OrganizationID is immutable after creation
	OrganizationID string `json:"organization_id"`

	// UserID is immutable after creation
	UserID string `json:"user_id"`

	// SessionID is immutable after creation
	SessionID string `json:"session_id"`

	// Variables is the open key/value state seeded from caller input and
	// extended by condition and approval nodes
	Variables map[string]interface{} `json:"variables"`

	// NodeResults maps node id to its recorded result
	NodeResults map[string]*NodeResult `json:"node_results"`

	// CurrentNode is the id of the node currently or most recently
	// executing
	CurrentNode string `json:"current_node"`

	// Status of the execution
	Status ExecutionStatus `json:"status"`

	// StartedAt is when the execution began
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the execution reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SetVariable stores a variable value
func (c *ExecutionContext) SetVariable(key string, value interface{}) {
	if c.Variables == nil {
		c.Variables = make(map[string]interface{})
	}
	c.Variables[key] = value
}

// Variable returns a variable value and whether it was present
func (c *ExecutionContext) Variable(key string) (interface{}, bool) {
	value, ok := c.Variables[key]
	return value, ok
}

// RecordResult stores a node result
func (c *ExecutionContext) RecordResult(result *NodeResult) {
	if c.NodeResults == nil {
		c.NodeResults = make(map[string]*NodeResult)
	}
	c.NodeResults[result.NodeID] = result
}

// CompletedSteps returns the ids of nodes that finished successfully, in
// no particular order
func (c *ExecutionContext) CompletedSteps() []string {
	steps := make([]string, 0, len(c.NodeResults))
	for id, result := range c.NodeResults {
		if result.Status == NodeStatusSuccess {
			steps = append(steps, id)
		}
	}
	return steps
}
