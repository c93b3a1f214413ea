package rfilter

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a node in the rich-filter expression tree.
type Node interface {
	node()
	// Encode writes the canonical wire form of the node. The form is
	// deterministic: equal trees always encode to identical bytes.
	Encode(sb *strings.Builder)
}

// Op is a comparison operator.
type Op int

// Comparison operators.
const (
	OpEquals Op = iota
	OpNotEquals
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
)

func (op Op) String() string {
	switch op {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "!="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	default:
		return "?"
	}
}

// Comparison is an attribute comparison. Values holds one entry for scalar
// comparisons and multiple for membership filters (assignee=u1,u2); multiple
// values are only legal with = and !=.
type Comparison struct {
	Field    string
	Op       Op
	Values   []string
	Duration bool // Values[0] is a relative duration (7d) rather than a literal
}

func (n *Comparison) node() {}

// Encode writes field<op>v1,v2 with values sorted for canonical form.
func (n *Comparison) Encode(sb *strings.Builder) {
	sb.WriteString(n.Field)
	sb.WriteString(n.Op.String())
	values := append([]string(nil), n.Values...)
	sort.Strings(values)
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(v)
	}
}

// And is a logical conjunction.
type And struct {
	Left, Right Node
}

func (n *And) node() {}

func (n *And) Encode(sb *strings.Builder) {
	sb.WriteByte('(')
	n.Left.Encode(sb)
	sb.WriteString(" AND ")
	n.Right.Encode(sb)
	sb.WriteByte(')')
}

// Or is a logical disjunction.
type Or struct {
	Left, Right Node
}

func (n *Or) node() {}

func (n *Or) Encode(sb *strings.Builder) {
	sb.WriteByte('(')
	n.Left.Encode(sb)
	sb.WriteString(" OR ")
	n.Right.Encode(sb)
	sb.WriteByte(')')
}

// Not is a logical negation.
type Not struct {
	Operand Node
}

func (n *Not) node() {}

func (n *Not) Encode(sb *strings.Builder) {
	sb.WriteString("NOT ")
	n.Operand.Encode(sb)
}

// Encode returns the canonical wire form of the expression tree, or the
// empty string for a nil tree. The filter compiler embeds this (encoded)
// as the single opaque rich-filter query parameter.
func Encode(n Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	n.Encode(&sb)
	return sb.String()
}

// parser parses an expression string into a Node tree. Standard precedence:
// OR < AND < NOT < primary.
type parser struct {
	lexer   *lexer
	current token
}

// Parse parses a rich-filter expression. An empty or blank input is an
// error; callers treating "no expression" as valid should skip the call.
func Parse(input string) (Node, error) {
	p := &parser{lexer: newLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.current.typ == tokenEOF {
		return nil, fmt.Errorf("empty filter expression")
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.current.typ != tokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d (expected end of expression)", p.current.value, p.current.pos)
	}

	return node, nil
}

func (p *parser) advance() error {
	tok, err := p.lexer.nextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current.typ == tokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.current.typ == tokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.current.typ == tokenNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot() // right-associative
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if p.current.typ == tokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.typ != tokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %s", p.current.pos, p.current.typ)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	if p.current.typ != tokenIdent {
		return nil, fmt.Errorf("expected attribute name at position %d, got %s", p.current.pos, p.current.typ)
	}

	field := strings.ToLower(p.current.value)
	if err := p.advance(); err != nil {
		return nil, err
	}

	var op Op
	switch p.current.typ {
	case tokenEquals:
		op = OpEquals
	case tokenNotEquals:
		op = OpNotEquals
	case tokenLess:
		op = OpLess
	case tokenLessEq:
		op = OpLessEq
	case tokenGreater:
		op = OpGreater
	case tokenGreaterEq:
		op = OpGreaterEq
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %s", p.current.pos, p.current.typ)
	}

	if err := p.advance(); err != nil {
		return nil, err
	}

	value, isDuration, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Field: field, Op: op, Values: []string{value}, Duration: isDuration}

	// Comma-joined values form a membership list, legal only for equality.
	for p.current.typ == tokenComma {
		if op != OpEquals && op != OpNotEquals {
			return nil, fmt.Errorf("value list at position %d requires '=' or '!='", p.current.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, dur, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if dur {
			return nil, fmt.Errorf("duration value %q not allowed in a value list", v)
		}
		cmp.Values = append(cmp.Values, v)
	}

	return cmp, nil
}

func (p *parser) parseValue() (string, bool, error) {
	var value string
	isDuration := false
	switch p.current.typ {
	case tokenIdent, tokenString, tokenNumber:
		value = p.current.value
	case tokenDuration:
		value = p.current.value
		isDuration = true
	default:
		return "", false, fmt.Errorf("expected value at position %d, got %s", p.current.pos, p.current.typ)
	}
	if err := p.advance(); err != nil {
		return "", false, err
	}
	return value, isDuration, nil
}
