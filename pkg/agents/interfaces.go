// Package agents provides the agent registry and the task delegation
// contract the workflow executor hands work to.
package agents

import "context"

// Agent describes a worker agent that can accept delegated tasks
type Agent struct {
	// ID is the unique agent identifier referenced by workflow nodes
	ID string `yaml:"id" json:"id"`

	// Category groups agents by capability, e.g. "research" or "writing"
	Category string `yaml:"category" json:"category"`

	// Skills the agent advertises
	Skills []string `yaml:"skills" json:"skills"`

	// SystemPrompt is prepended to delegated prompts
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

// Registry resolves agent ids to agent descriptions
type Registry interface {
	// GetAgent returns the agent with the given id. Absence is not an
	// error; callers degrade to default category/prompt.
	GetAgent(agentID string) (*Agent, bool)

	// ListAgents returns all registered agents
	ListAgents() []*Agent
}

// DelegationStatus is the outcome of a delegated task
type DelegationStatus string

// Delegation outcomes
const (
	DelegationSuccess DelegationStatus = "success"
	DelegationFailed  DelegationStatus = "failed"
)

// DelegationRequest is a unit of work handed to a worker agent
type DelegationRequest struct {
	// Category of agent the work is intended for
	Category string `json:"category"`

	// Skills required for the task
	Skills []string `json:"skills,omitempty"`

	// Prompt is the assembled instruction for the agent
	Prompt string `json:"prompt"`

	// SessionID of the originating execution
	SessionID string `json:"session_id"`

	// OrganizationID of the owning tenant
	OrganizationID string `json:"organization_id"`

	// UserID of the initiating user
	UserID string `json:"user_id"`

	// Context carries additional structured data for the agent
	Context map[string]interface{} `json:"context,omitempty"`
}

// DelegationResult is the settled outcome of a delegation
type DelegationResult struct {
	// Status of the delegation
	Status DelegationStatus `json:"status"`

	// Output produced by the agent
	Output interface{} `json:"output,omitempty"`

	// Metadata carries auxiliary information; the "error" key holds the
	// failure message for failed delegations
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Error returns the failure message for a failed delegation
func (r *DelegationResult) Error() string {
	if r.Metadata == nil {
		return ""
	}
	if msg, ok := r.Metadata["error"].(string); ok {
		return msg
	}
	return ""
}

// Delegator hands tasks to worker agents and awaits their results. It
// must be safe to call concurrently: the executor's parallel node type
// issues several delegations at once.
type Delegator interface {
	Delegate(ctx context.Context, req DelegationRequest) (*DelegationResult, error)
}
