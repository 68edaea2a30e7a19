// Package executor drives workflow executions: it walks the graph node by
// node, delegates work to agents, enforces per-node timeouts and settles
// each run in a terminal or paused state.
package executor

import (
	"time"

	"github.com/tcmartin/agentflow/pkg/workflow"
)

// ExecutionRequest identifies the caller and carries the originating user
// request text
type ExecutionRequest struct {
	// OrganizationID of the owning tenant
	OrganizationID string `json:"organization_id"`

	// UserID of the initiating user
	UserID string `json:"user_id"`

	// SessionID keys the run for checkpointing and approval resumption
	SessionID string `json:"session_id"`

	// UserRequest is the originating request text woven into agent
	// prompts
	UserRequest string `json:"user_request"`
}

// ExecutionResult is the settled outcome of a run. Status, Output and
// Duration are always populated; callers never need to distinguish an
// exception from a logical failure.
type ExecutionResult struct {
	// WorkflowName that was executed
	WorkflowName string `json:"workflow_name"`

	// Status the run settled in: completed, failed or waiting_approval
	Status workflow.ExecutionStatus `json:"status"`

	// Context is the full execution context of the run
	Context *workflow.ExecutionContext `json:"context"`

	// Output of the last node that produced one
	Output interface{} `json:"output,omitempty"`

	// Error carries the failing node's message for failed runs
	Error string `json:"error,omitempty"`

	// Duration of the run
	Duration time.Duration `json:"duration"`

	// ApprovalID is set when the run paused at an approval gate
	ApprovalID string `json:"approval_id,omitempty"`
}

// EventType classifies execution events
type EventType string

// Event types published during a run
const (
	EventNodeStarted  EventType = "node_started"
	EventNodeFinished EventType = "node_finished"
	EventRunFinished  EventType = "run_finished"
)

// Event is a real-time notification about an execution
type Event struct {
	// Type of the event
	Type EventType `json:"type"`

	// WorkflowName of the execution
	WorkflowName string `json:"workflow_name"`

	// SessionID of the execution
	SessionID string `json:"session_id"`

	// NodeID for node-level events
	NodeID string `json:"node_id,omitempty"`

	// Status carried by the event (node status or run status)
	Status string `json:"status,omitempty"`

	// Timestamp of the event
	Timestamp time.Time `json:"timestamp"`

	// Data is additional event context
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventSink receives execution events. Publish must not block the
// executor; sinks buffer or drop as they see fit.
type EventSink interface {
	Publish(event Event)
}
