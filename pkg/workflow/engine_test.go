package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchingDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		Name:           "order-review",
		DefaultTimeout: 30 * time.Second,
		Nodes: []NodeSpec{
			{ID: "check", Type: NodeTypeCondition, Condition: "context.variables.amount > 100"},
			{ID: "escalate", Type: NodeTypeAgent, AgentID: "reviewer"},
			{ID: "auto_approve", Type: NodeTypeAgent, AgentID: "approver"},
			{ID: "notify", Type: NodeTypeAgent, AgentID: "notifier"},
		},
		Edges: []EdgeSpec{
			{From: StartNodeID, To: "check"},
			{From: "check", To: "escalate", Condition: "context.variables['condition:check'] === true"},
			{From: "check", To: "auto_approve", Condition: "context.variables['condition:check'] === false"},
			{From: "check", To: "notify"},
			{From: "escalate", To: EndNodeID},
			{From: "auto_approve", To: EndNodeID},
			{From: "notify", To: EndNodeID},
		},
	}
}

func TestCreateContext(t *testing.T) {
	engine := NewEngine()
	require.NoError(t, engine.Register(branchingDefinition()))

	identity := ExecutionIdentity{OrganizationID: "org-1", UserID: "user-1", SessionID: "sess-1"}
	ctx, err := engine.CreateContext("order-review", identity, map[string]interface{}{"amount": 150})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, ctx.Status)
	assert.Equal(t, StartNodeID, ctx.CurrentNode)
	assert.Equal(t, "org-1", ctx.OrganizationID)
	assert.Equal(t, "user-1", ctx.UserID)
	assert.Equal(t, "sess-1", ctx.SessionID)
	assert.Equal(t, map[string]interface{}{"amount": 150}, ctx.Variables)
	assert.Empty(t, ctx.NodeResults)
	assert.False(t, ctx.StartedAt.IsZero())
}

func TestCreateContextUnknownWorkflow(t *testing.T) {
	engine := NewEngine()

	_, err := engine.CreateContext("missing", ExecutionIdentity{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestCreateContextNilVariables(t *testing.T) {
	engine := NewEngine()
	require.NoError(t, engine.Register(branchingDefinition()))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, ctx.Variables)
	assert.Empty(t, ctx.Variables)
}

func TestNextNodesFromStart(t *testing.T) {
	engine := NewEngine()
	def := branchingDefinition()
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)

	next := engine.NextNodes(def, StartNodeID, ctx)
	require.Len(t, next, 1)
	assert.Equal(t, "check", next[0].ID)
}

func TestNextNodesSimultaneousFanOut(t *testing.T) {
	engine := NewEngine()
	def := branchingDefinition()
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)
	ctx.SetVariable("condition:check", true)

	// Both the eligible conditional edge and the unconditional edge fire;
	// the ineligible sibling does not. Definition order is preserved.
	next := engine.NextNodes(def, "check", ctx)
	require.Len(t, next, 2)
	assert.Equal(t, "escalate", next[0].ID)
	assert.Equal(t, "notify", next[1].ID)
}

func TestNextNodesFalseBranch(t *testing.T) {
	engine := NewEngine()
	def := branchingDefinition()
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)
	ctx.SetVariable("condition:check", false)

	next := engine.NextNodes(def, "check", ctx)
	require.Len(t, next, 2)
	assert.Equal(t, "auto_approve", next[0].ID)
	assert.Equal(t, "notify", next[1].ID)
}

func TestNextNodesMalformedConditionDisablesEdge(t *testing.T) {
	engine := NewEngine()
	def := branchingDefinition()
	def.Edges[1].Condition = "context.variables['condition:check' ==="
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)
	ctx.SetVariable("condition:check", true)

	next := engine.NextNodes(def, "check", ctx)
	require.Len(t, next, 1)
	assert.Equal(t, "notify", next[0].ID)
}

func TestNextNodesTerminalAndUnknown(t *testing.T) {
	engine := NewEngine()
	def := branchingDefinition()
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)

	assert.Empty(t, engine.NextNodes(def, EndNodeID, ctx))
	assert.Empty(t, engine.NextNodes(def, "no-such-node", ctx))
	// Edges into END resolve to no node spec
	assert.Empty(t, engine.NextNodes(def, "escalate", ctx))
}

func TestNextNodesIsIdempotent(t *testing.T) {
	engine := NewEngine()
	def := branchingDefinition()
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("order-review", ExecutionIdentity{}, nil)
	require.NoError(t, err)
	ctx.SetVariable("condition:check", true)

	first := engine.NextNodes(def, "check", ctx)
	second := engine.NextNodes(def, "check", ctx)
	assert.Equal(t, first, second)
}

func TestNextNodesPreservesDuplicateTargets(t *testing.T) {
	engine := NewEngine()
	def := &WorkflowDefinition{
		Name: "dup",
		Nodes: []NodeSpec{
			{ID: "a", Type: NodeTypeAgent, AgentID: "worker"},
			{ID: "b", Type: NodeTypeAgent, AgentID: "worker"},
		},
		Edges: []EdgeSpec{
			{From: StartNodeID, To: "a"},
			{From: "a", To: "b"},
			{From: "a", To: "b", Condition: "true"},
		},
	}
	require.NoError(t, engine.Register(def))

	ctx, err := engine.CreateContext("dup", ExecutionIdentity{}, nil)
	require.NoError(t, err)

	next := engine.NextNodes(def, "a", ctx)
	require.Len(t, next, 2)
	assert.Equal(t, "b", next[0].ID)
	assert.Equal(t, "b", next[1].ID)
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkflowDefinition)
		wantErr string
	}{
		{"valid", func(d *WorkflowDefinition) {}, ""},
		{"missing name", func(d *WorkflowDefinition) { d.Name = "" }, "name is required"},
		{"no nodes", func(d *WorkflowDefinition) { d.Nodes = nil }, "at least one node"},
		{"duplicate node id", func(d *WorkflowDefinition) {
			d.Nodes = append(d.Nodes, NodeSpec{ID: "check", Type: NodeTypeCondition, Condition: "true"})
		}, "duplicate node id"},
		{"reserved node id", func(d *WorkflowDefinition) {
			d.Nodes[0].ID = StartNodeID
		}, "reserved node id"},
		{"agent without agent_id", func(d *WorkflowDefinition) {
			d.Nodes[1].AgentID = ""
		}, "requires agent_id"},
		{"condition without expression", func(d *WorkflowDefinition) {
			d.Nodes[0].Condition = ""
		}, "requires a condition"},
		{"unknown node type", func(d *WorkflowDefinition) {
			d.Nodes[0].Type = "mystery"
		}, "unknown type"},
		{"edge to unknown node", func(d *WorkflowDefinition) {
			d.Edges = append(d.Edges, EdgeSpec{From: "check", To: "ghost"})
		}, "unknown node"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := branchingDefinition()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNodeTimeoutResolution(t *testing.T) {
	def := branchingDefinition()
	def.Nodes[0].Timeout = 5 * time.Second

	assert.Equal(t, 5*time.Second, def.NodeTimeout(&def.Nodes[0]))
	assert.Equal(t, 30*time.Second, def.NodeTimeout(&def.Nodes[1]))

	def.DefaultTimeout = 0
	assert.Equal(t, DefaultNodeTimeout, def.NodeTimeout(&def.Nodes[1]))
}
