package expr

// ConditionEvaluator is the default Evaluator implementation backed by the
// recursive descent parser in this package
type ConditionEvaluator struct{}

// NewConditionEvaluator creates a new ConditionEvaluator
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// Evaluate parses and evaluates the expression against the variable map
func (e *ConditionEvaluator) Evaluate(expression string, variables map[string]interface{}) (interface{}, error) {
	node, err := Parse(expression)
	if err != nil {
		return nil, err
	}
	return node.Eval(variables)
}

// EvaluateBool evaluates the expression as an edge/branch condition. Any
// parse failure, evaluation failure or non-boolean result yields false so
// that a malformed condition disables its branch instead of aborting the
// workflow.
func (e *ConditionEvaluator) EvaluateBool(expression string, variables map[string]interface{}) bool {
	value, err := e.Evaluate(expression, variables)
	if err != nil {
		return false
	}
	result, ok := value.(bool)
	if !ok {
		return false
	}
	return result
}
