// Package rfilter implements the rich-filter expression language: structured
// boolean expressions over issue attributes, distinct from the simple display
// filter toggles.
//
// The language supports:
//   - Attribute comparisons: state=backlog, priority<=1, updated>7d
//   - Multi-value membership: assignee=u1,u2 (matches any listed value)
//   - Boolean operators: AND, OR, NOT
//   - Parentheses for grouping: (state=backlog OR state=started) AND priority=urgent
//
// Parsed expressions encode to a canonical wire form (see Encode) that the
// filter compiler embeds as the opaque rich-filter parameter, and evaluate
// against issues client-side so optimistic creates can decide view
// membership without a refetch.
package rfilter

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenType classifies lexer tokens.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenDuration
	tokenEquals
	tokenNotEquals
	tokenLess
	tokenLessEq
	tokenGreater
	tokenGreaterEq
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenComma
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenIdent:
		return "IDENT"
	case tokenString:
		return "STRING"
	case tokenNumber:
		return "NUMBER"
	case tokenDuration:
		return "DURATION"
	case tokenEquals:
		return "="
	case tokenNotEquals:
		return "!="
	case tokenLess:
		return "<"
	case tokenLessEq:
		return "<="
	case tokenGreater:
		return ">"
	case tokenGreaterEq:
		return ">="
	case tokenAnd:
		return "AND"
	case tokenOr:
		return "OR"
	case tokenNot:
		return "NOT"
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	case tokenComma:
		return ","
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// token is a single lexer token.
type token struct {
	typ   tokenType
	value string
	pos   int
}

// lexer tokenizes a rich-filter expression string.
type lexer struct {
	input string
	pos   int
	width int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return 0
	}
	r := rune(l.input[l.pos])
	l.width = 1
	l.pos += l.width
	return r
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return rune(l.input[l.pos])
}

func (l *lexer) backup() {
	l.pos -= l.width
}

func (l *lexer) skipWhitespace() {
	for {
		r := l.next()
		if r == 0 || !unicode.IsSpace(r) {
			l.backup()
			return
		}
	}
}

// nextToken returns the next token from the input.
func (l *lexer) nextToken() (token, error) {
	l.skipWhitespace()

	startPos := l.pos
	r := l.next()

	if r == 0 {
		return token{typ: tokenEOF, pos: startPos}, nil
	}

	switch r {
	case '(':
		return token{typ: tokenLParen, value: "(", pos: startPos}, nil
	case ')':
		return token{typ: tokenRParen, value: ")", pos: startPos}, nil
	case ',':
		return token{typ: tokenComma, value: ",", pos: startPos}, nil
	case '=':
		return token{typ: tokenEquals, value: "=", pos: startPos}, nil
	case '!':
		if l.peek() == '=' {
			l.next()
			return token{typ: tokenNotEquals, value: "!=", pos: startPos}, nil
		}
		return token{}, fmt.Errorf("unexpected character '!' at position %d (did you mean '!=' or 'NOT'?)", startPos)
	case '<':
		if l.peek() == '=' {
			l.next()
			return token{typ: tokenLessEq, value: "<=", pos: startPos}, nil
		}
		return token{typ: tokenLess, value: "<", pos: startPos}, nil
	case '>':
		if l.peek() == '=' {
			l.next()
			return token{typ: tokenGreaterEq, value: ">=", pos: startPos}, nil
		}
		return token{typ: tokenGreater, value: ">", pos: startPos}, nil
	case '"', '\'':
		return l.readString(r, startPos)
	default:
		if unicode.IsDigit(r) {
			l.backup()
			return l.readNumberOrDuration(startPos)
		}
		if isIdentStart(r) {
			l.backup()
			return l.readIdent(startPos)
		}
		return token{}, fmt.Errorf("unexpected character %q at position %d", r, startPos)
	}
}

func (l *lexer) readString(quote rune, startPos int) (token, error) {
	var sb strings.Builder
	for {
		r := l.next()
		if r == 0 {
			return token{}, fmt.Errorf("unterminated string starting at position %d", startPos)
		}
		if r == quote {
			return token{typ: tokenString, value: sb.String(), pos: startPos}, nil
		}
		if r == '\\' {
			escaped := l.next()
			switch escaped {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 0:
				return token{}, fmt.Errorf("unterminated escape sequence at position %d", l.pos-1)
			default:
				sb.WriteRune(escaped)
			}
		} else {
			sb.WriteRune(r)
		}
	}
}

// readNumberOrDuration reads a numeric value or a relative duration (7d, 24h).
func (l *lexer) readNumberOrDuration(startPos int) (token, error) {
	var sb strings.Builder

	for {
		r := l.next()
		if !unicode.IsDigit(r) {
			if r != 0 && isDurationSuffix(r) {
				sb.WriteRune(r)
				return token{typ: tokenDuration, value: sb.String(), pos: startPos}, nil
			}
			if r != 0 {
				l.backup()
			}
			break
		}
		sb.WriteRune(r)
	}

	return token{typ: tokenNumber, value: sb.String(), pos: startPos}, nil
}

func (l *lexer) readIdent(startPos int) (token, error) {
	var sb strings.Builder

	for {
		r := l.next()
		if r == 0 || !isIdentChar(r) {
			l.backup()
			break
		}
		sb.WriteRune(r)
	}

	value := sb.String()
	switch strings.ToUpper(value) {
	case "AND":
		return token{typ: tokenAnd, value: value, pos: startPos}, nil
	case "OR":
		return token{typ: tokenOr, value: value, pos: startPos}, nil
	case "NOT":
		return token{typ: tokenNot, value: value, pos: startPos}, nil
	default:
		return token{typ: tokenIdent, value: value, pos: startPos}, nil
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

func isDurationSuffix(r rune) bool {
	switch r {
	case 'h', 'd', 'w', 'H', 'D', 'W':
		return true
	default:
		return false
	}
}
