package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Small helpers over x/net/html nodes. The post-processor and goal
// extractor are a series of in-place tree edits; keeping the primitives
// here keeps those passes readable.

// parseStepHTML parses a rendered step fragment wrapped in <x-step> and
// returns the x-step element.
func parseStepHTML(fragment string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader("<x-step>" + fragment + "</x-step>"))
	if err != nil {
		return nil, fmt.Errorf("parsing step HTML: %w", err)
	}
	step := findFirst(doc, func(n *html.Node) bool { return n.Data == "x-step" })
	if step == nil {
		return nil, fmt.Errorf("parsing step HTML: no step element")
	}
	return step, nil
}

// parseFragment parses an HTML fragment in a div context.
func parseFragment(s string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	return html.ParseFragment(strings.NewReader(s), ctx)
}

// renderNode returns the outer HTML of a node.
func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("rendering HTML: %w", err)
	}
	return buf.String(), nil
}

// innerHTML returns the concatenated outer HTML of a node's children.
func innerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rendering HTML: %w", err)
		}
	}
	return buf.String(), nil
}

// findFirst returns the first element (pre-order) matching pred.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns all elements (pre-order, document order) matching pred.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var result []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			result = append(result, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return result
}

// elementsBottomUp lists descendant elements children-first, skipping SVG
// subtrees. Bottom-up order lets rewrite passes replace a node without
// revisiting its subtree.
func elementsBottomUp(n *html.Node) []*html.Node {
	var result []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || strings.EqualFold(c.Data, "svg") {
				continue
			}
			walk(c)
			result = append(result, c)
		}
	}
	walk(n)
	return result
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := getAttr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := getAttr(n, key)
	return ok
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// addClass appends classes that are not already present.
func addClass(n *html.Node, classes ...string) {
	existing := strings.Fields(attrValue(n, "class"))
	seen := map[string]bool{}
	for _, c := range existing {
		seen[c] = true
	}
	for _, c := range classes {
		if c != "" && !seen[c] {
			existing = append(existing, c)
			seen[c] = true
		}
	}
	if len(existing) == 0 {
		return
	}
	setAttr(n, "class", strings.Join(existing, " "))
}

func removeClass(n *html.Node, class string) {
	var kept []string
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

// textContent returns the concatenated text of all descendant text nodes.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// replaceChildren removes all children of n and appends the given nodes.
func replaceChildren(n *html.Node, children []*html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	for _, c := range children {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

// detach removes a node from its parent.
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
