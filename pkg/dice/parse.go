// Package dice parses and evaluates roll formulas such as "2d4 + @abilities.str.mod".
package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidFormula indicates a formula could not be parsed.
var ErrInvalidFormula = errors.New("invalid roll formula")

// ErrInvalidDiceSpec indicates a die term has out-of-range fields.
var ErrInvalidDiceSpec = errors.New("dice must have positive sides and a count between 0 and 1000")

const (
	maxDiceCount = 1000
	maxDiceSides = 10000
)

var functions = map[string]int{
	"floor": 1,
	"ceil":  1,
	"round": 1,
	"abs":   1,
	"min":   2,
	"max":   2,
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokVar
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokPercent
)

type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || c == '.':
			start := i
			for i < len(src) && (unicode.IsDigit(rune(src[i])) || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start, end: i})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(src) && (unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i])) || src[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start, end: i})
		case c == '@':
			start := i
			i++
			for i < len(src) && (unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i])) || src[i] == '_' || src[i] == '.') {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("%w: empty variable at %d", ErrInvalidFormula, start)
			}
			toks = append(toks, token{kind: tokVar, text: src[start+1 : i], pos: start, end: i})
		case strings.ContainsRune("+-*/", c):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i, end: i + 1})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i, end: i + 1})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i, end: i + 1})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i, end: i + 1})
			i++
		case c == '%':
			toks = append(toks, token{kind: tokPercent, text: "%", pos: i, end: i + 1})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidFormula, c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src), end: len(src)})
	return toks, nil
}

// node is a parsed formula term; start/end index the source text it came from
type node interface {
	span() (int, int)
}

type pos struct{ start, end int }

func (p pos) span() (int, int) { return p.start, p.end }

type numberNode struct {
	pos
	value float64
}

type varNode struct {
	pos
	name string
}

type diceNode struct {
	pos
	count int
	sides int
}

type unaryNode struct {
	pos
	op string
	x  node
}

type binaryNode struct {
	pos
	op   string
	l, r node
}

type parenNode struct {
	pos
	x node
}

type callNode struct {
	pos
	fn   string
	args []node
}

// Formula is a parsed roll formula
type Formula struct {
	src  string
	root node
}

// Parse parses a roll formula without evaluating it
func Parse(formula string) (*Formula, error) {
	src := strings.TrimSpace(formula)
	if src == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrInvalidFormula)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		t := p.peek()
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidFormula, t.text, t.pos)
	}
	return &Formula{src: src, root: root}, nil
}

// String returns the trimmed source text
func (f *Formula) String() string {
	return f.src
}

// IsConstant reports whether the formula has no dice and no variables
func (f *Formula) IsConstant() bool {
	return isConstant(f.root)
}

func isConstant(n node) bool {
	switch n := n.(type) {
	case *numberNode:
		return true
	case *varNode, *diceNode:
		return false
	case *unaryNode:
		return isConstant(n.x)
	case *binaryNode:
		return isConstant(n.l) && isConstant(n.r)
	case *parenNode:
		return isConstant(n.x)
	case *callNode:
		for _, a := range n.args {
			if !isConstant(a) {
				return false
			}
		}
		return true
	}
	return false
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		ls, _ := left.span()
		_, re := right.span()
		left = &binaryNode{pos: pos{ls, re}, op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		ls, _ := left.span()
		_, re := right.span()
		left = &binaryNode{pos: pos{ls, re}, op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		_, end := x.span()
		return &unaryNode{pos: pos{t.pos, end}, op: t.text, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		value, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrInvalidFormula, t.text)
		}
		// "2d6" lexes as a number followed by the identifier "d6"
		if nt := p.peek(); nt.kind == tokIdent && nt.pos == t.end && isDieIdent(nt.text) {
			if value != float64(int(value)) {
				return nil, fmt.Errorf("%w: fractional dice count %q", ErrInvalidFormula, t.text)
			}
			return p.parseDie(t.pos, int(value))
		}
		return &numberNode{pos: pos{t.pos, t.end}, value: value}, nil
	case tokIdent:
		if isDieIdent(t.text) {
			p.i--
			return p.parseDie(t.pos, 1)
		}
		if arity, ok := functions[strings.ToLower(t.text)]; ok {
			return p.parseCall(t, arity)
		}
		return nil, fmt.Errorf("%w: unknown term %q", ErrInvalidFormula, t.text)
	case tokVar:
		return &varNode{pos: pos{t.pos, t.end}, name: t.text}, nil
	case tokLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' at %d", ErrInvalidFormula, closing.pos)
		}
		return &parenNode{pos: pos{t.pos, closing.end}, x: x}, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrInvalidFormula)
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidFormula, t.text, t.pos)
}

func isDieIdent(s string) bool {
	if s == "d" || s == "D" {
		return true
	}
	if len(s) < 2 || (s[0] != 'd' && s[0] != 'D') {
		return false
	}
	for _, c := range s[1:] {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return true
}

// parseDie consumes a die identifier ("d6", or "d" followed by "%")
func (p *parser) parseDie(start, count int) (node, error) {
	t := p.next()
	var sides int
	end := t.end
	if len(t.text) == 1 {
		pct := p.next()
		if pct.kind != tokPercent {
			return nil, fmt.Errorf("%w: die without sides at %d", ErrInvalidFormula, t.pos)
		}
		sides = 100
		end = pct.end
	} else {
		n, err := strconv.Atoi(t.text[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: bad die %q", ErrInvalidFormula, t.text)
		}
		sides = n
	}
	if sides <= 0 || sides > maxDiceSides || count < 0 || count > maxDiceCount {
		return nil, fmt.Errorf("%w: %dd%d", ErrInvalidDiceSpec, count, sides)
	}
	return &diceNode{pos: pos{start, end}, count: count, sides: sides}, nil
}

func (p *parser) parseCall(name token, arity int) (node, error) {
	if p.next().kind != tokLParen {
		return nil, fmt.Errorf("%w: %s needs '('", ErrInvalidFormula, name.text)
	}
	var args []node
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t := p.next()
		if t.kind == tokRParen {
			if len(args) != arity {
				return nil, fmt.Errorf("%w: %s takes %d argument(s)", ErrInvalidFormula, name.text, arity)
			}
			return &callNode{pos: pos{name.pos, t.end}, fn: strings.ToLower(name.text), args: args}, nil
		}
		if t.kind != tokComma {
			return nil, fmt.Errorf("%w: unexpected %q in %s()", ErrInvalidFormula, t.text, name.text)
		}
	}
}
