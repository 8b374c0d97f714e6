// Package formula evaluates user-supplied arithmetic expressions over
// named metric averages. The grammar is deliberately minimal: numbers,
// metric references, binary + - * /, unary sign and parentheses.
package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// UndefinedMetricReferenceError names an identifier that resolves to
// neither a raw metric nor a derived definition.
type UndefinedMetricReferenceError struct {
	Name string
}

func (e *UndefinedMetricReferenceError) Error() string {
	return fmt.Sprintf("undefined metric reference: %q", e.Name)
}

// UnsupportedExpressionError reports syntax outside the fixed operator
// set (exponentiation, function calls, unknown tokens).
type UnsupportedExpressionError struct {
	Expression string
	Detail     string
}

func (e *UnsupportedExpressionError) Error() string {
	return fmt.Sprintf("unsupported expression %q: %s", e.Expression, e.Detail)
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func lex(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+':
			tokens = append(tokens, token{tokPlus, "+"})
			i++
		case r == '-':
			tokens = append(tokens, token{tokMinus, "-"})
			i++
		case r == '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				return nil, &UnsupportedExpressionError{Expression: expr, Detail: "exponentiation is not supported"}
			}
			tokens = append(tokens, token{tokStar, "*"})
			i++
		case r == '/':
			tokens = append(tokens, token{tokSlash, "/"})
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == '^':
			return nil, &UnsupportedExpressionError{Expression: expr, Detail: "exponentiation is not supported"}
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, &UnsupportedExpressionError{Expression: expr, Detail: fmt.Sprintf("malformed number %q", text)}
			}
			tokens = append(tokens, token{tokNumber, text})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{tokIdent, string(runes[start:i])})
		default:
			return nil, &UnsupportedExpressionError{Expression: expr, Detail: fmt.Sprintf("unexpected character %q", string(r))}
		}
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens, nil
}

type node interface {
	// eval resolves the node against a metric lookup. The lookup
	// returns an error for unknown names.
	eval(lookup func(string) (float64, error)) (float64, error)
	// refs appends the metric names the node mentions.
	refs(into map[string]struct{})
}

type numberNode float64

func (n numberNode) eval(func(string) (float64, error)) (float64, error) { return float64(n), nil }
func (n numberNode) refs(map[string]struct{})                            {}

type refNode string

func (n refNode) eval(lookup func(string) (float64, error)) (float64, error) {
	return lookup(string(n))
}
func (n refNode) refs(into map[string]struct{}) { into[string(n)] = struct{}{} }

type unaryNode struct {
	negate  bool
	operand node
}

func (n unaryNode) eval(lookup func(string) (float64, error)) (float64, error) {
	v, err := n.operand.eval(lookup)
	if err != nil {
		return 0, err
	}
	if n.negate {
		return -v, nil
	}
	return v, nil
}
func (n unaryNode) refs(into map[string]struct{}) { n.operand.refs(into) }

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval(lookup func(string) (float64, error)) (float64, error) {
	l, err := n.left.eval(lookup)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(lookup)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case tokPlus:
		return l + r, nil
	case tokMinus:
		return l - r, nil
	case tokStar:
		return l * r, nil
	default:
		if r == 0 {
			// Division by zero is NaN for the derived value, not a failure.
			return nan(), nil
		}
		return l / r, nil
	}
}
func (n binaryNode) refs(into map[string]struct{}) {
	n.left.refs(into)
	n.right.refs(into)
}

type parser struct {
	expr   string
	tokens []token
	pos    int
}

// parse compiles an expression into a node tree.
func parse(expr string) (node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &UnsupportedExpressionError{Expression: expr, Detail: "empty expression"}
	}
	tokens, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{expr: expr, tokens: tokens}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, &UnsupportedExpressionError{Expression: expr, Detail: fmt.Sprintf("unexpected token %q", p.peek().text)}
	}
	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }
func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokPlus && op != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokStar && op != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokPlus:
		p.next()
		return p.parseUnary()
	case tokMinus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{negate: true, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, _ := strconv.ParseFloat(t.text, 64)
		return numberNode(v), nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return nil, &UnsupportedExpressionError{Expression: p.expr, Detail: fmt.Sprintf("function calls are not supported: %q", t.text)}
		}
		return refNode(t.text), nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, &UnsupportedExpressionError{Expression: p.expr, Detail: "missing closing parenthesis"}
		}
		return inner, nil
	default:
		return nil, &UnsupportedExpressionError{Expression: p.expr, Detail: fmt.Sprintf("unexpected token %q", t.text)}
	}
}
