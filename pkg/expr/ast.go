package expr

import "fmt"

// Node is a node in the parsed expression tree
type Node interface {
	// Eval computes the node's value against the given variables
	Eval(variables map[string]interface{}) (interface{}, error)
}

// Literal is a constant value: number, string, boolean or null
type Literal struct {
	Value interface{}
}

// Eval returns the literal value
func (l *Literal) Eval(variables map[string]interface{}) (interface{}, error) {
	return l.Value, nil
}

// VariablePath is a dotted/bracket path into the variable map, e.g.
// context.variables.amount or context.variables['condition:check']
type VariablePath struct {
	Segments []string
}

// Eval resolves the path against the variable map. A missing key resolves
// to nil rather than an error so that comparisons against absent variables
// behave like comparisons against null.
func (v *VariablePath) Eval(variables map[string]interface{}) (interface{}, error) {
	var current interface{} = variables
	for _, segment := range v.Segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			if current == nil {
				return nil, nil
			}
			return nil, fmt.Errorf("cannot navigate path: %q is not a map", segment)
		}
		current = m[segment]
	}
	return current, nil
}

// Comparison applies a comparison operator to two sub-expressions
type Comparison struct {
	Op    string // "==", "!=", ">", "<", ">=", "<="
	Left  Node
	Right Node
}

// Eval evaluates both sides and applies the operator
func (c *Comparison) Eval(variables map[string]interface{}) (interface{}, error) {
	left, err := c.Left.Eval(variables)
	if err != nil {
		return nil, err
	}
	right, err := c.Right.Eval(variables)
	if err != nil {
		return nil, err
	}

	switch c.Op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case ">", "<", ">=", "<=":
		return compareOrdered(c.Op, left, right)
	default:
		return nil, fmt.Errorf("unknown comparison operator %q", c.Op)
	}
}

// Logical applies && or || to two sub-expressions
type Logical struct {
	Op    string // "&&" or "||"
	Left  Node
	Right Node
}

// Eval short-circuits like the usual boolean operators
func (l *Logical) Eval(variables map[string]interface{}) (interface{}, error) {
	left, err := l.Left.Eval(variables)
	if err != nil {
		return nil, err
	}
	leftBool, err := toBool(left)
	if err != nil {
		return nil, err
	}

	if l.Op == "&&" && !leftBool {
		return false, nil
	}
	if l.Op == "||" && leftBool {
		return true, nil
	}

	right, err := l.Right.Eval(variables)
	if err != nil {
		return nil, err
	}
	return toBool(right)
}

// Not negates a boolean sub-expression
type Not struct {
	Operand Node
}

// Eval evaluates the operand and negates it
func (n *Not) Eval(variables map[string]interface{}) (interface{}, error) {
	value, err := n.Operand.Eval(variables)
	if err != nil {
		return nil, err
	}
	b, err := toBool(value)
	if err != nil {
		return nil, err
	}
	return !b, nil
}

// valuesEqual compares two values for equality with numeric coercion, so
// that an int stored in the variable map compares equal to a parsed float
func valuesEqual(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	leftNum, leftOK := toNumber(left)
	rightNum, rightOK := toNumber(right)
	if leftOK && rightOK {
		return leftNum == rightNum
	}

	return left == right
}

// compareOrdered applies an ordering operator; both sides must be numbers
// or both strings
func compareOrdered(op string, left, right interface{}) (bool, error) {
	leftNum, leftOK := toNumber(left)
	rightNum, rightOK := toNumber(right)
	if leftOK && rightOK {
		switch op {
		case ">":
			return leftNum > rightNum, nil
		case "<":
			return leftNum < rightNum, nil
		case ">=":
			return leftNum >= rightNum, nil
		case "<=":
			return leftNum <= rightNum, nil
		}
	}

	leftStr, leftOK := left.(string)
	rightStr, rightOK := right.(string)
	if leftOK && rightOK {
		switch op {
		case ">":
			return leftStr > rightStr, nil
		case "<":
			return leftStr < rightStr, nil
		case ">=":
			return leftStr >= rightStr, nil
		case "<=":
			return leftStr <= rightStr, nil
		}
	}

	return false, fmt.Errorf("cannot order %T and %T with %q", left, right, op)
}

// toNumber converts the numeric types that appear in JSON/YAML payloads
func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// toBool requires an actual boolean; conditions must resolve to true/false
// rather than relying on truthiness of arbitrary values
func toBool(value interface{}) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", value)
	}
	return b, nil
}
