// Package search parses the free-text card queries that filtered decks are
// defined by and compiles them to SQL predicates over the cards table (alias
// c) joined with notes (alias n).
package search

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax is returned for queries that cannot be parsed.
var ErrSyntax = errors.New("search: invalid query")

type tokenKind int

const (
	tokWord tokenKind = iota
	tokLParen
	tokRParen
	tokNegate
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool
}

func tokenize(q string) ([]token, error) {
	var tokens []token
	runes := []rune(q)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen})
			i++
		case r == '-' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]):
			tokens = append(tokens, token{kind: tokNegate})
			i++
		default:
			var sb strings.Builder
			quoted := false
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '(' && runes[i] != ')' {
				if runes[i] == '"' {
					end := i + 1
					for end < len(runes) && runes[end] != '"' {
						end++
					}
					if end == len(runes) {
						return nil, fmt.Errorf("%w: unterminated quote", ErrSyntax)
					}
					sb.WriteString(string(runes[i+1 : end]))
					quoted = true
					i = end + 1
					continue
				}
				sb.WriteRune(runes[i])
				i++
			}
			tokens = append(tokens, token{kind: tokWord, text: sb.String(), quoted: quoted})
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

// Parse turns a query into an expression tree. An empty query matches every card.
func Parse(q string) (Node, error) {
	tokens, err := tokenize(q)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return All{}, nil
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, p.describe(p.tokens[p.pos]))
	}
	return node, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func isKeyword(t token, word string) bool {
	return t.kind == tokWord && !t.quoted && strings.EqualFold(t.text, word)
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for {
		t, ok := p.peek()
		if !ok || !isKeyword(t, "or") {
			break
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return Or(children), nil
}

func (p *parser) parseAnd() (Node, error) {
	var children []Node
	for {
		t, ok := p.peek()
		if !ok || t.kind == tokRParen || isKeyword(t, "or") {
			break
		}
		if isKeyword(t, "and") {
			p.pos++
			continue
		}
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	switch len(children) {
	case 0:
		if t, ok := p.peek(); ok {
			return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, p.describe(t))
		}
		return nil, fmt.Errorf("%w: missing term", ErrSyntax)
	case 1:
		return children[0], nil
	}
	return And(children), nil
}

func (p *parser) parseUnary() (Node, error) {
	t, _ := p.peek()
	switch t.kind {
	case tokNegate:
		p.pos++
		if _, ok := p.peek(); !ok {
			return nil, fmt.Errorf("%w: dangling '-'", ErrSyntax)
		}
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')'", ErrSyntax)
		}
		p.pos++
		return inner, nil
	case tokRParen:
		return nil, fmt.Errorf("%w: unexpected ')'", ErrSyntax)
	}
	p.pos++
	return parseTerm(t)
}

func (p *parser) describe(t token) string {
	switch t.kind {
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokNegate:
		return "'-'"
	}
	return strconv.Quote(t.text)
}

func parseTerm(t token) (Node, error) {
	key, value, found := strings.Cut(t.text, ":")
	if !found {
		return Text{Value: t.text}, nil
	}
	switch strings.ToLower(key) {
	case "deck":
		if value == "" {
			return nil, fmt.Errorf("%w: empty deck name", ErrSyntax)
		}
		return Deck{Name: value}, nil
	case "tag":
		if value == "" {
			return nil, fmt.Errorf("%w: empty tag", ErrSyntax)
		}
		return Tag{Name: value}, nil
	case "is":
		state := State(strings.ToLower(value))
		if !state.valid() {
			return nil, fmt.Errorf("%w: unknown state %q", ErrSyntax, value)
		}
		return Is{State: state}, nil
	case "prop":
		return parseProp(value)
	}
	return Text{Value: t.text}, nil
}

var propOps = []string{"<=", ">=", "!=", "<", ">", "="}

func parseProp(expr string) (Node, error) {
	for _, op := range propOps {
		idx := strings.Index(expr, op)
		if idx <= 0 {
			continue
		}
		field := Field(strings.ToLower(expr[:idx]))
		if _, ok := propColumns[field]; !ok {
			return nil, fmt.Errorf("%w: unknown property %q", ErrSyntax, expr[:idx])
		}
		raw := expr[idx+len(op):]
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, raw)
		}
		return Prop{Field: field, Op: op, Value: value}, nil
	}
	return nil, fmt.Errorf("%w: bad property %q", ErrSyntax, expr)
}
