package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse converts an expression string into an evaluable tree
func Parse(expression string) (Node, error) {
	p := &parser{input: expression}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("unexpected input at position %d: %q", p.pos, p.input[p.pos:])
	}
	return node, nil
}

// parser is a hand-written recursive descent parser over the expression
// grammar: or-expressions of and-expressions of comparisons of primaries.
type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpression() (Node, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.consumeOperator("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.consumeOperator("&&") {
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

// comparison operators, longest first so === wins over ==
var comparisonOps = []struct {
	text string
	op   string
}{
	{"===", "=="},
	{"!==", "!="},
	{"==", "=="},
	{"!=", "!="},
	{">=", ">="},
	{"<=", "<="},
	{">", ">"},
	{"<", "<"},
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	for _, candidate := range comparisonOps {
		if p.consumeOperator(candidate.text) {
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &Comparison{Op: candidate.op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '!' {
		// Do not swallow != / !== here
		if p.pos+1 >= len(p.input) || p.input[p.pos+1] != '=' {
			p.pos++
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &Not{Operand: operand}, nil
		}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	ch := p.input[p.pos]
	switch {
	case ch == '(':
		p.pos++
		node, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		p.pos++
		return node, nil
	case ch == '\'' || ch == '"':
		value, err := p.parseQuotedString()
		if err != nil {
			return nil, err
		}
		return &Literal{Value: value}, nil
	case ch == '-' || unicode.IsDigit(rune(ch)):
		return p.parseNumber()
	case isIdentStart(ch):
		return p.parseIdentifierOrPath()
	default:
		return nil, fmt.Errorf("unexpected character %q at position %d", ch, p.pos)
	}
}

func (p *parser) parseNumber() (Node, error) {
	start := p.pos
	if p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '.') {
		p.pos++
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", p.input[start:p.pos], err)
	}
	return &Literal{Value: value}, nil
}

func (p *parser) parseQuotedString() (string, error) {
	quote := p.input[p.pos]
	p.pos++
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != quote {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("unterminated string starting at position %d", start-1)
	}
	value := p.input[start:p.pos]
	p.pos++
	return value, nil
}

// parseIdentifierOrPath handles keywords (true/false/null) and variable
// paths rooted at context.variables
func (p *parser) parseIdentifierOrPath() (Node, error) {
	first := p.parseIdentifier()
	switch first {
	case "true":
		return &Literal{Value: true}, nil
	case "false":
		return &Literal{Value: false}, nil
	case "null":
		return &Literal{Value: nil}, nil
	}

	segments := []string{first}
	for {
		if p.pos < len(p.input) && p.input[p.pos] == '.' {
			p.pos++
			if p.pos >= len(p.input) || !isIdentStart(p.input[p.pos]) {
				return nil, fmt.Errorf("expected identifier after '.' at position %d", p.pos)
			}
			segments = append(segments, p.parseIdentifier())
			continue
		}
		if p.pos < len(p.input) && p.input[p.pos] == '[' {
			p.pos++
			p.skipSpace()
			if p.pos >= len(p.input) || (p.input[p.pos] != '\'' && p.input[p.pos] != '"') {
				return nil, fmt.Errorf("expected quoted key after '[' at position %d", p.pos)
			}
			key, err := p.parseQuotedString()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.pos >= len(p.input) || p.input[p.pos] != ']' {
				return nil, fmt.Errorf("missing ']' at position %d", p.pos)
			}
			p.pos++
			segments = append(segments, key)
			continue
		}
		break
	}

	// Strip the context.variables (or bare variables) root so the
	// remaining segments index directly into the variable map
	switch {
	case len(segments) >= 3 && segments[0] == "context" && segments[1] == "variables":
		return &VariablePath{Segments: segments[2:]}, nil
	case len(segments) >= 2 && segments[0] == "variables":
		return &VariablePath{Segments: segments[1:]}, nil
	default:
		return nil, fmt.Errorf("variable references must start with context.variables, got %q", strings.Join(segments, "."))
	}
}

func (p *parser) parseIdentifier() string {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *parser) consumeOperator(op string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], op) {
		// Reject == when the input actually has ===
		if (op == "==" || op == "!=") && strings.HasPrefix(p.input[p.pos:], op+"=") {
			return false
		}
		p.pos += len(op)
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ('0' <= ch && ch <= '9')
}
