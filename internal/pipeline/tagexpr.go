package pipeline

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode"
)

// Sentinel errors for tag expression parsing.
var (
	ErrEmptyTagExpr   = errors.New("empty tag expression")
	ErrInvalidTagExpr = errors.New("invalid tag expression")
)

// Tag is a parsed tag expression such as "x-box.red#intro(when=\"blank-0\")".
// A leading "." or "#" implies a div. Used for ::: block wrappers, {...}
// attribute shorthands and unnamed fenced code blocks.
type Tag struct {
	Name    string
	ID      string
	Classes []string
	Attrs   map[string]string
}

// voidElements never receive a closing tag.
var voidElements = map[string]bool{
	"area": true, "br": true, "col": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "wbr": true,
}

// ParseTag parses a single tag expression. It never panics: malformed input
// returns ErrInvalidTagExpr so callers can degrade to verbatim text.
func ParseTag(expr string) (*Tag, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyTagExpr
	}

	t := &Tag{Name: "div", Attrs: map[string]string{}}
	i := 0

	if isNameStart(rune(expr[0])) {
		j := i
		for j < len(expr) && isNameChar(rune(expr[j])) {
			j++
		}
		t.Name = expr[i:j]
		i = j
	}

	for i < len(expr) {
		switch expr[i] {
		case '.':
			j := i + 1
			for j < len(expr) && isNameChar(rune(expr[j])) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidTagExpr, expr)
			}
			t.Classes = append(t.Classes, expr[i+1:j])
			i = j
		case '#':
			j := i + 1
			for j < len(expr) && isNameChar(rune(expr[j])) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidTagExpr, expr)
			}
			t.ID = expr[i+1 : j]
			i = j
		case '(':
			end := strings.LastIndexByte(expr, ')')
			if end < i {
				return nil, fmt.Errorf("%w: unclosed attributes in %q", ErrInvalidTagExpr, expr)
			}
			if err := parseAttrs(expr[i+1:end], t.Attrs); err != nil {
				return nil, err
			}
			i = end + 1
		default:
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidTagExpr, expr[i], expr)
		}
	}

	return t, nil
}

// parseAttrs parses `a="x" b=3 c` style attribute lists, comma or space
// separated. Flag attributes get an empty value.
func parseAttrs(s string, attrs map[string]string) error {
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == ',' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}

		j := i
		for j < len(s) && s[j] != '=' && s[j] != ' ' && s[j] != ',' {
			j++
		}
		key := s[i:j]
		if key == "" {
			return fmt.Errorf("%w: bad attribute list %q", ErrInvalidTagExpr, s)
		}
		i = j

		if i >= len(s) || s[i] != '=' {
			attrs[key] = ""
			continue
		}
		i++ // skip '='

		if i < len(s) && (s[i] == '"' || s[i] == '\'') {
			quote := s[i]
			end := strings.IndexByte(s[i+1:], quote)
			if end < 0 {
				return fmt.Errorf("%w: unterminated value for %q", ErrInvalidTagExpr, key)
			}
			attrs[key] = s[i+1 : i+1+end]
			i += end + 2
		} else {
			j = i
			for j < len(s) && s[j] != ' ' && s[j] != ',' {
				j++
			}
			attrs[key] = s[i:j]
			i = j
		}
	}
	return nil
}

// Open renders the opening markup for the tag. Attribute order is
// deterministic: id, class, then remaining attributes alphabetically.
func (t *Tag) Open() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(t.Name)
	if t.ID != "" {
		fmt.Fprintf(&b, ` id="%s"`, html.EscapeString(t.ID))
	}
	if len(t.Classes) > 0 {
		fmt.Fprintf(&b, ` class="%s"`, html.EscapeString(strings.Join(t.Classes, " ")))
	}
	keys := make([]string, 0, len(t.Attrs))
	for k := range t.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ` %s="%s"`, k, html.EscapeString(t.Attrs[k]))
	}
	b.WriteByte('>')
	return b.String()
}

// Close renders the closing markup, or "" for void elements.
func (t *Tag) Close() string {
	if voidElements[t.Name] {
		return ""
	}
	return "</" + t.Name + ">"
}

// RenderBlock renders an indentation-nested block of tag expressions, the
// template syntax accepted inside unnamed fenced code blocks:
//
//	.row
//	  img(src="images/dice.png" width=120)
//	  .caption Two dice
//	  | literal text
//
// Deeper-indented lines become children of the previous line's element.
func RenderBlock(src string) (string, error) {
	type open struct {
		indent int
		close  string
	}
	var b strings.Builder
	var stack []open

	closeTo := func(indent int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			b.WriteString(stack[len(stack)-1].close)
			stack = stack[:len(stack)-1]
		}
	}

	for _, line := range strings.Split(src, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		body := strings.TrimSpace(line)
		closeTo(indent)

		if strings.HasPrefix(body, "| ") {
			b.WriteString(html.EscapeString(strings.TrimPrefix(body, "| ")))
			continue
		}

		expr, text := body, ""
		// Inline text starts after the first space outside of parentheses.
		depth := 0
		for i := 0; i < len(body); i++ {
			switch body[i] {
			case '(':
				depth++
			case ')':
				depth--
			case ' ':
				if depth == 0 {
					expr, text = body[:i], strings.TrimSpace(body[i+1:])
					i = len(body)
				}
			}
		}

		tag, err := ParseTag(expr)
		if err != nil {
			return "", err
		}
		b.WriteString(tag.Open())
		b.WriteString(html.EscapeString(text))
		if c := tag.Close(); c != "" {
			stack = append(stack, open{indent: indent, close: c})
		}
	}
	closeTo(-1)
	return b.String(), nil
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}
