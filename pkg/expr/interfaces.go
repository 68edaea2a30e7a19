// Package expr implements the condition expression language used on
// workflow edges and condition nodes. Expressions are parsed into a small
// AST and evaluated by a tree-walking interpreter; there is no dynamic
// code execution of any kind.
package expr

// Evaluator evaluates condition expressions against a variable map
type Evaluator interface {
	// Evaluate parses and evaluates an expression, returning its value
	Evaluate(expression string, variables map[string]interface{}) (interface{}, error)

	// EvaluateBool evaluates an expression as a boolean condition. It never
	// returns an error: any parse or evaluation failure yields false.
	EvaluateBool(expression string, variables map[string]interface{}) bool
}
