package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tcmartin/agentflow/pkg/expr"
)

// ErrWorkflowNotFound is returned when a workflow name is not registered
var ErrWorkflowNotFound = errors.New("workflow not found")

// Engine owns the loaded workflow definitions, builds execution contexts
// and resolves graph traversal. Definitions are read-only after
// registration, so an Engine is safe for use by concurrent executor runs.
type Engine struct {
	definitions map[string]*WorkflowDefinition
	evaluator   expr.Evaluator
	mu          sync.RWMutex
}

// NewEngine creates an Engine with no registered workflows
func NewEngine() *Engine {
	return &Engine{
		definitions: make(map[string]*WorkflowDefinition),
		evaluator:   expr.NewConditionEvaluator(),
	}
}

// Register validates a definition and adds it to the engine, replacing any
// previous definition with the same name
func (e *Engine) Register(def *WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid workflow definition: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[def.Name] = def
	return nil
}

// Definition returns the registered definition for a workflow name
func (e *Engine) Definition(name string) (*WorkflowDefinition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	def, ok := e.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return def, nil
}

// ListDefinitions returns all registered definitions
func (e *Engine) ListDefinitions() []*WorkflowDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]*WorkflowDefinition, 0, len(e.definitions))
	for _, def := range e.definitions {
		defs = append(defs, def)
	}
	return defs
}

// CreateContext builds a fresh execution context for a registered
// workflow. The context starts pending at the START pseudo-node.
func (e *Engine) CreateContext(workflowName string, identity ExecutionIdentity, initialVariables map[string]interface{}) (*ExecutionContext, error) {
	if _, err := e.Definition(workflowName); err != nil {
		return nil, err
	}

	variables := make(map[string]interface{}, len(initialVariables))
	for k, v := range initialVariables {
		variables[k] = v
	}

	return &ExecutionContext{
		WorkflowName:   workflowName,
		OrganizationID: identity.OrganizationID,
		UserID:         identity.UserID,
		SessionID:      identity.SessionID,
		Variables:      variables,
		NodeResults:    make(map[string]*NodeResult),
		CurrentNode:    StartNodeID,
		Status:         StatusPending,
		StartedAt:      time.Now(),
	}, nil
}

// EvaluateCondition evaluates an edge or node condition against the
// context's variables. It never panics or errors: malformed expressions
// evaluate to false, silently disabling the branch they guard.
func (e *Engine) EvaluateCondition(expression string, ctx *ExecutionContext) bool {
	return e.evaluator.EvaluateBool(expression, ctx.Variables)
}

// NextNodes returns the node specs reachable from fromNodeID under the
// current context: every edge whose source matches, whose target is not
// START and whose condition is absent or evaluates true, in definition
// order. Duplicate targets are preserved; the executor owns any dedup
// policy. The result is empty for END and for unknown node ids, and the
// call has no side effects on the context.
func (e *Engine) NextNodes(def *WorkflowDefinition, fromNodeID string, ctx *ExecutionContext) []NodeSpec {
	var next []NodeSpec
	for _, edge := range def.Edges {
		if edge.From != fromNodeID {
			continue
		}
		if edge.To == StartNodeID {
			continue
		}
		// Edges into END (or an unknown id) resolve to no node spec

		if edge.Condition != "" && !e.EvaluateCondition(edge.Condition, ctx) {
			continue
		}
		if node := def.Node(edge.To); node != nil {
			next = append(next, *node)
		}
	}
	return next
}
