package pipeline

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
)

// The math expression grammar for untagged code spans. This is intentionally
// narrow: numbers, identifiers, the usual binary operators, parentheses,
// and a fixed table of helper functions that produce interactive markup.
// Every expression renders to both presentational markup and a textual
// "voice" form used for narration.

var ErrExprParse = errors.New("expression parse error")

type exprNode interface {
	markup() (string, error)
	voice() string
}

// --- tokens ---

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokString
	tokOperator
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func lexExpr(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			toks = append(toks, token{tokIdent, string(runes[i:j])})
			i = j
		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string", ErrExprParse)
			}
			toks = append(toks, token{tokString, string(runes[i+1 : j])})
			i = j + 1
		case r == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case strings.ContainsRune("+-*/^_=<>±·×", r):
			toks = append(toks, token{tokOperator, string(r)})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrExprParse, r)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

// --- AST nodes ---

type numberNode string

func (n numberNode) markup() (string, error) { return "<mn>" + string(n) + "</mn>", nil }
func (n numberNode) voice() string           { return string(n) }

type identNode string

func (n identNode) markup() (string, error) { return "<mi>" + string(n) + "</mi>", nil }
func (n identNode) voice() string           { return string(n) }

type stringNode string

func (n stringNode) markup() (string, error) { return html.EscapeString(string(n)), nil }
func (n stringNode) voice() string           { return string(n) }

type groupNode struct{ inner exprNode }

func (n groupNode) markup() (string, error) {
	m, err := n.inner.markup()
	if err != nil {
		return "", err
	}
	return "<mrow><mo>(</mo>" + m + "<mo>)</mo></mrow>", nil
}
func (n groupNode) voice() string { return n.inner.voice() }

type unaryNode struct {
	op      string
	operand exprNode
}

func (n unaryNode) markup() (string, error) {
	m, err := n.operand.markup()
	if err != nil {
		return "", err
	}
	return "<mo>" + opDisplay(n.op) + "</mo>" + m, nil
}
func (n unaryNode) voice() string {
	return opVoice(n.op) + " " + n.operand.voice()
}

type binaryNode struct {
	op          string
	left, right exprNode
}

func (n binaryNode) markup() (string, error) {
	l, err := n.left.markup()
	if err != nil {
		return "", err
	}
	r, err := n.right.markup()
	if err != nil {
		return "", err
	}
	switch n.op {
	case "/":
		return "<mfrac><mrow>" + l + "</mrow><mrow>" + r + "</mrow></mfrac>", nil
	case "^":
		return "<msup>" + wrapRow(l) + wrapRow(r) + "</msup>", nil
	case "_":
		return "<msub>" + wrapRow(l) + wrapRow(r) + "</msub>", nil
	case "":
		// implicit multiplication, e.g. 4x
		return l + r, nil
	default:
		return l + "<mo>" + opDisplay(n.op) + "</mo>" + r, nil
	}
}

func (n binaryNode) voice() string {
	if n.op == "" {
		return n.left.voice() + " " + n.right.voice()
	}
	return n.left.voice() + " " + opVoice(n.op) + " " + n.right.voice()
}

type callNode struct {
	name string
	args []exprNode
}

func (n callNode) markup() (string, error) {
	if h, ok := exprHelpers[n.name]; ok {
		return h(n.args)
	}
	parts := make([]string, 0, len(n.args))
	for _, a := range n.args {
		m, err := a.markup()
		if err != nil {
			return "", err
		}
		parts = append(parts, m)
	}
	return "<mi>" + n.name + "</mi><mo>(</mo>" + strings.Join(parts, "<mo>,</mo>") + "<mo>)</mo>", nil
}

func (n callNode) voice() string {
	if v, ok := helperVoices[n.name]; ok {
		return v(n.args)
	}
	parts := make([]string, 0, len(n.args))
	for _, a := range n.args {
		parts = append(parts, a.voice())
	}
	return n.name + " of " + strings.Join(parts, " and ")
}

// --- helper functions (pill, reveal, input, blank, arc, var, class) ---

type exprHelper func(args []exprNode) (string, error)

func argString(args []exprNode, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	switch v := args[i].(type) {
	case stringNode:
		return string(v), true
	case identNode:
		return string(v), true
	case numberNode:
		return string(v), true
	}
	return "", false
}

func argMarkup(args []exprNode, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrExprParse, i)
	}
	return args[i].markup()
}

var exprHelpers = map[string]exprHelper{
	"pill": func(args []exprNode) (string, error) {
		expr, err := argMarkup(args, 0)
		if err != nil {
			return "", err
		}
		color, _ := argString(args, 1)
		if target, ok := argString(args, 2); ok {
			return fmt.Sprintf(`<span class="pill step-target %s" data-to="%s" tabindex="0">%s</span>`, color, target, expr), nil
		}
		return fmt.Sprintf(`<span class="pill %s">%s</span>`, color, expr), nil
	},
	"reveal": func(args []exprNode) (string, error) {
		expr, err := argMarkup(args, 0)
		if err != nil {
			return "", err
		}
		when, _ := argString(args, 1)
		return fmt.Sprintf(`<mrow class="reveal" data-when="%s">%s</mrow>`, when, expr), nil
	},
	"input": func(args []exprNode) (string, error) {
		value, ok := argString(args, 0)
		if !ok {
			return "", fmt.Errorf("%w: input() needs a solution value", ErrExprParse)
		}
		placeholder := "???"
		if p, ok := argString(args, 1); ok {
			placeholder = p
		}
		return fmt.Sprintf(`<x-blank solution="%s" placeholder="%s"></x-blank>`, value, placeholder), nil
	},
	"blank": func(args []exprNode) (string, error) {
		var b strings.Builder
		b.WriteString("<x-blank-mc>")
		for i := range args {
			m, err := argMarkup(args, i)
			if err != nil {
				return "", err
			}
			b.WriteString(`<button class="choice">` + m + "</button>")
		}
		b.WriteString("</x-blank-mc>")
		return b.String(), nil
	},
	"arc": func(args []exprNode) (string, error) {
		value, err := argMarkup(args, 0)
		if err != nil {
			return "", err
		}
		return `<mover>` + value + `<mo value="⌒">⌒</mo></mover>`, nil
	},
	"var": func(args []exprNode) (string, error) {
		name, ok := argString(args, 0)
		if !ok {
			return "", fmt.Errorf("%w: var() needs a name", ErrExprParse)
		}
		return fmt.Sprintf(`<span class="var">${%s}</span>`, name), nil
	},
	"class": func(args []exprNode) (string, error) {
		expr, err := argMarkup(args, 0)
		if err != nil {
			return "", err
		}
		name, _ := argString(args, 1)
		return fmt.Sprintf(`<mrow class="%s">%s</mrow>`, name, expr), nil
	},
}

var helperVoices = map[string]func(args []exprNode) string{
	"pill":   firstArgVoice,
	"reveal": firstArgVoice,
	"input":  func([]exprNode) string { return "blank" },
	"blank":  func([]exprNode) string { return "blank" },
	"bar":    firstArgVoice,
	"vec":    firstArgVoice,
	"arc":    firstArgVoice,
	"var":    firstArgVoice,
	"class":  firstArgVoice,
}

func firstArgVoice(args []exprNode) string {
	if len(args) == 0 {
		return ""
	}
	return args[0].voice()
}

// --- parser ---

type exprParser struct {
	toks []token
	pos  int
}

// ParseExpr parses the course math syntax and returns presentational markup
// and a voice string.
func ParseExpr(src string) (markup string, voice string, err error) {
	toks, err := lexExpr(src)
	if err != nil {
		return "", "", err
	}
	p := &exprParser{toks: toks}
	node, err := p.parseEquality()
	if err != nil {
		return "", "", err
	}
	if p.peek().kind != tokEOF {
		return "", "", fmt.Errorf("%w: unexpected %q", ErrExprParse, p.peek().text)
	}
	markup, err = node.markup()
	if err != nil {
		return "", "", err
	}
	return markup, node.voice(), nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }
func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) parseEquality() (exprNode, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOperator && strings.Contains("=<>", p.peek().text) {
		op := p.next().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAdditive() (exprNode, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOperator && strings.Contains("+-±", p.peek().text) {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseMultiplicative() (exprNode, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind == tokOperator && strings.Contains("*/·×", t.text) {
			op := p.next().text
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = binaryNode{op: normalizeMulOp(op), left: left, right: right}
			continue
		}
		// Implicit multiplication: 4x, 2(x+1), x y
		if t.kind == tokNumber || t.kind == tokIdent || t.kind == tokLParen {
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = binaryNode{op: "", left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parsePower() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokOperator && (p.peek().text == "^" || p.peek().text == "_") {
		op := p.next().text
		right, err := p.parsePower() // right-associative
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if p.peek().kind == tokOperator && (p.peek().text == "-" || p.peek().text == "±") {
		op := p.next().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode(t.text), nil
	case tokString:
		return stringNode(t.text), nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next() // consume (
			var args []exprNode
			if p.peek().kind != tokRParen {
				for {
					arg, err := p.parseEquality()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.peek().kind != tokComma {
						break
					}
					p.next()
				}
			}
			if p.next().kind != tokRParen {
				return nil, fmt.Errorf("%w: missing ) after %s(...)", ErrExprParse, t.text)
			}
			return callNode{name: t.text, args: args}, nil
		}
		return identNode(t.text), nil
	case tokLParen:
		inner, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrExprParse)
		}
		return groupNode{inner: inner}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrExprParse, t.text)
	}
}

func normalizeMulOp(op string) string {
	if op == "*" {
		return "·"
	}
	return op
}

func wrapRow(m string) string {
	if strings.HasPrefix(m, "<mn>") || strings.HasPrefix(m, "<mi>") {
		return m
	}
	return "<mrow>" + m + "</mrow>"
}

func opDisplay(op string) string {
	if op == "*" {
		return "·"
	}
	return op
}

func opVoice(op string) string {
	switch op {
	case "+":
		return "plus"
	case "-", "−":
		return "minus"
	case "*", "·", "×":
		return "times"
	case "/":
		return "over"
	case "=":
		return "equals"
	case "^":
		return "to the power of"
	case "_":
		return "sub"
	case "<":
		return "is less than"
	case ">":
		return "is greater than"
	case "±":
		return "plus or minus"
	}
	return op
}
