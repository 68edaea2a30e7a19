// Package workflow provides workflow definitions and the graph engine that
// resolves which nodes are reachable from a given point of an execution.
package workflow

import (
	"fmt"
	"time"
)

// Pseudo-node identifiers used by edges to mark entry and exit points
const (
	StartNodeID = "START"
	EndNodeID   = "END"
)

// NodeType identifies the kind of work a node performs
type NodeType string

// Supported node types
const (
	NodeTypeAgent         NodeType = "agent"
	NodeTypeParallel      NodeType = "parallel"
	NodeTypeCondition     NodeType = "condition"
	NodeTypeHumanApproval NodeType = "human_approval"
)

// NodeSpec describes a single node in a workflow definition
type NodeSpec struct {
	// ID is unique within the definition
	ID string `yaml:"id" json:"id"`

	// Type of the node
	Type NodeType `yaml:"type" json:"type"`

	// AgentID names the agent to delegate to (agent nodes)
	AgentID string `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`

	// ParallelAgents lists the agents to fan out to (parallel nodes)
	ParallelAgents []string `yaml:"parallel_agents,omitempty" json:"parallel_agents,omitempty"`

	// Condition is the expression evaluated by condition nodes
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// ApprovalType categorizes the approval request (human_approval nodes)
	ApprovalType string `yaml:"approval_type,omitempty" json:"approval_type,omitempty"`

	// Timeout overrides the definition's default timeout for this node
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// EdgeSpec describes a directed, optionally conditional connection between
// two nodes. An edge with no condition is always eligible; a conditional
// edge is eligible only when its expression evaluates to true. All eligible
// edges from a node are taken together (simultaneous fan-out, not if/else).
type EdgeSpec struct {
	// From is the source node id (or START)
	From string `yaml:"from" json:"from"`

	// To is the target node id (or END)
	To string `yaml:"to" json:"to"`

	// Condition guards the edge when present
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// WorkflowDefinition is an immutable directed graph of nodes and edges
type WorkflowDefinition struct {
	// Name is the unique key of the workflow
	Name string `yaml:"name" json:"name"`

	// Version of the definition
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Description of what the workflow does
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// DefaultTimeout bounds node execution when a node has no timeout of
	// its own
	DefaultTimeout time.Duration `yaml:"default_timeout,omitempty" json:"default_timeout,omitempty"`

	// Nodes in definition order
	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`

	// Edges in definition order
	Edges []EdgeSpec `yaml:"edges" json:"edges"`
}

// DefaultNodeTimeout is used when neither the node nor the definition
// specifies a timeout
const DefaultNodeTimeout = 2 * time.Minute

// Node returns the node with the given id, or nil if it does not exist
func (d *WorkflowDefinition) Node(id string) *NodeSpec {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// NodeTimeout resolves the effective timeout for a node
func (d *WorkflowDefinition) NodeTimeout(node *NodeSpec) time.Duration {
	if node.Timeout > 0 {
		return node.Timeout
	}
	if d.DefaultTimeout > 0 {
		return d.DefaultTimeout
	}
	return DefaultNodeTimeout
}

// Validate checks the structural integrity of a definition: required
// fields, unique node ids and edges that reference known nodes
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("workflow %q must have at least one node", d.Name)
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, node := range d.Nodes {
		if node.ID == "" {
			return fmt.Errorf("workflow %q has a node with no id", d.Name)
		}
		if node.ID == StartNodeID || node.ID == EndNodeID {
			return fmt.Errorf("workflow %q uses reserved node id %q", d.Name, node.ID)
		}
		if seen[node.ID] {
			return fmt.Errorf("workflow %q has duplicate node id %q", d.Name, node.ID)
		}
		seen[node.ID] = true

		switch node.Type {
		case NodeTypeAgent:
			if node.AgentID == "" {
				return fmt.Errorf("agent node %q requires agent_id", node.ID)
			}
		case NodeTypeParallel:
			if len(node.ParallelAgents) == 0 {
				return fmt.Errorf("parallel node %q requires parallel_agents", node.ID)
			}
		case NodeTypeCondition:
			if node.Condition == "" {
				return fmt.Errorf("condition node %q requires a condition", node.ID)
			}
		case NodeTypeHumanApproval:
			// approval_type is optional; a generic type is applied at runtime
		default:
			return fmt.Errorf("node %q has unknown type %q", node.ID, node.Type)
		}
	}

	for i, edge := range d.Edges {
		if edge.From == "" || edge.To == "" {
			return fmt.Errorf("workflow %q edge %d is missing from/to", d.Name, i)
		}
		if edge.From != StartNodeID && !seen[edge.From] {
			return fmt.Errorf("workflow %q edge %d references unknown node %q", d.Name, i, edge.From)
		}
		if edge.To != EndNodeID && edge.To != StartNodeID && !seen[edge.To] {
			return fmt.Errorf("workflow %q edge %d references unknown node %q", d.Name, i, edge.To)
		}
	}

	return nil
}
