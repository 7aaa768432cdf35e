package toolfns

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Calculate evaluates a basic arithmetic expression (+ - * / and
// parentheses) and returns "expr = result".
func Calculate(_ context.Context, args map[string]any) (any, error) {
	expr := stringArg(args, "expression", "")
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("expression is required")
	}

	for _, r := range expr {
		if !strings.ContainsRune("0123456789+-*/.() ", r) {
			return nil, fmt.Errorf("expression contains disallowed character %q", r)
		}
	}

	p := &exprParser{input: expr}
	result, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected character at position %d", p.pos)
	}

	return fmt.Sprintf("%s = %s", expr, formatNumber(result)), nil
}

// GCD computes the greatest common divisor of two integers.
func GCD(_ context.Context, args map[string]any) (any, error) {
	a, okA := intArg(args, "a")
	b, okB := intArg(args, "b")
	if !okA || !okB {
		return nil, fmt.Errorf("a and b must be integers")
	}

	x, y := a, b
	if x < 0 {
		x = -x
	}
	if y < 0 {
		y = -y
	}
	for y != 0 {
		x, y = y, x%y
	}

	return fmt.Sprintf("gcd(%d, %d) = %d", a, b, x), nil
}

// formatNumber renders a float without a trailing ".0" for integers.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// exprParser is a small recursive-descent parser for arithmetic.
// Grammar: expr = term {(+|-) term}; term = unary {(*|/) unary};
// unary = [-] factor; factor = number | "(" expr ")".
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseFactor()
}

func (p *exprParser) parseFactor() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}

	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return v, nil
}
