package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/coursekit/coursekit/internal/buildlog"
)

// attrShorthand matches a {...} expression at the start of a text node.
var attrShorthand = regexp.MustCompile(`^\{([^}]+)\}`)

// pStripPattern removes the paragraph wrapper around re-parsed markdown.
var pStripPattern = regexp.MustCompile(`^<p>|</p>\n?$`)

// nowrapTags are inline-block elements that must not be separated from
// trailing punctuation by a line break.
var nowrapTags = map[string]bool{
	"code": true, "x-blank": true, "x-blank-mc": true, "x-var": true,
	"x-gloss": true, "x-bio": true, "x-target": true,
}

// nowrapSpanClasses extends the no-wrap set to specific span/svg classes.
var nowrapSpanClasses = []string{"step-target", "pill", "math"}

// ltrTags always render left-to-right, even in RTL locales.
var ltrTags = []string{"x-geopad", "x-coordinate-system", "svg", "x-var"}

// renamedAttrs collide with native HTML semantics and move to data-*.
var renamedAttrs = []string{"when", "delay", "animation", "duration", "voice"}

// PostProcessor mutates the rendered step HTML as a tree. The pass order is
// fixed; later passes assume earlier normalization.
type PostProcessor struct {
	Log    *buildlog.Logger
	Locale string

	// RenderMarkdown re-renders nested markdown found in .md elements.
	RenderMarkdown func(text string) (string, error)
}

// Process parses the step fragment and applies all tree passes, returning
// the <x-step> element for goal extraction and serialization.
func (p *PostProcessor) Process(fragment string) (*html.Node, error) {
	body, err := parseStepHTML(fragment)
	if err != nil {
		return nil, err
	}

	for _, n := range elementsBottomUp(body) {
		p.expandAttrShorthand(n)
	}
	p.addNoWraps(body)
	if err := p.reparseMarkdown(body); err != nil {
		return nil, err
	}
	promoteParentAttrs(body)
	removeEmptyTableHeaders(body)
	markTitledBoxes(body)
	promoteTableRowClass(body)
	addEmptyImageAlts(body)
	if rtlLocales[p.Locale] {
		overrideLTRElements(body)
	}
	renameReservedTreeAttrs(body)

	return body, nil
}

// expandAttrShorthand parses a leading {...} text as a tag expression. A
// plain wrapper merges its attributes onto the element; a substantive
// element replaces it, keeping the children. Malformed expressions warn and
// leave the element unmodified.
func (p *PostProcessor) expandAttrShorthand(n *html.Node) {
	first := n.FirstChild
	if first == nil || first.Type != html.TextNode {
		return
	}
	m := attrShorthand.FindStringSubmatch(first.Data)
	if m == nil {
		return
	}

	tag, err := ParseTag(m[1])
	if err != nil {
		p.Log.Warnf("invalid attribute expression {%s}: %v", m[1], err)
		return
	}
	first.Data = strings.TrimPrefix(first.Data, m[0])

	if tag.Name == "div" && !strings.HasPrefix(m[1], "div") {
		addClass(n, tag.Classes...)
		if tag.ID != "" {
			setAttr(n, "id", tag.ID)
		}
		for k, v := range tag.Attrs {
			setAttr(n, k, v)
		}
		return
	}

	if n.Parent == nil {
		return
	}
	replacement := &html.Node{Type: html.ElementNode, Data: tag.Name}
	if tag.ID != "" {
		setAttr(replacement, "id", tag.ID)
	}
	if len(tag.Classes) > 0 {
		addClass(replacement, tag.Classes...)
	}
	for k, v := range tag.Attrs {
		setAttr(replacement, k, v)
	}
	n.Parent.InsertBefore(replacement, n)
	n.Parent.RemoveChild(n)
	for n.FirstChild != nil {
		c := n.FirstChild
		n.RemoveChild(c)
		replacement.AppendChild(c)
	}
}

// addNoWraps moves leading punctuation after inline-block elements inside a
// shared nowrap span, preventing orphaned punctuation across line breaks.
func (p *PostProcessor) addNoWraps(body *html.Node) {
	for _, el := range findAll(body, isNoWrapElement) {
		next := el.NextSibling
		if next == nil || next.Type != html.TextNode || next.Data == "" {
			continue
		}
		runes := []rune(next.Data)
		if !strings.ContainsRune(":.,!?°", runes[0]) {
			continue
		}

		next.Data = string(runes[1:])
		nowrap := &html.Node{Type: html.ElementNode, Data: "span"}
		setAttr(nowrap, "class", "nowrap")
		el.Parent.InsertBefore(nowrap, el)
		el.Parent.RemoveChild(el)
		nowrap.AppendChild(el)
		nowrap.AppendChild(&html.Node{Type: html.TextNode, Data: string(runes[0])})
	}
}

func isNoWrapElement(n *html.Node) bool {
	if nowrapTags[n.Data] {
		return true
	}
	if n.Data == "span" || n.Data == "svg" {
		if n.Data == "svg" && hasClass(n, "mathjax") {
			return true
		}
		for _, c := range nowrapSpanClasses {
			if n.Data == "span" && hasClass(n, c) {
				return true
			}
		}
	}
	return false
}

// reparseMarkdown renders markdown found inside elements flagged with the
// md class.
func (p *PostProcessor) reparseMarkdown(body *html.Node) error {
	if p.RenderMarkdown == nil {
		return nil
	}
	for _, el := range findAll(body, func(n *html.Node) bool { return hasClass(n, "md") }) {
		removeClass(el, "md")
		inner, err := innerHTML(el)
		if err != nil {
			return err
		}
		rendered, err := p.RenderMarkdown(inner)
		if err != nil {
			p.Log.Warnf("nested markdown error: %v", err)
			continue
		}
		rendered = pStripPattern.ReplaceAllString(strings.TrimSpace(rendered), "")
		children, err := parseFragment(rendered)
		if err != nil {
			return err
		}
		replaceChildren(el, children)
	}
	return nil
}

// promoteParentAttrs copies [parent] attribute classes onto each element's
// parent, then strips the marker.
func promoteParentAttrs(body *html.Node) {
	for _, el := range findAll(body, func(n *html.Node) bool { return hasAttr(n, "parent") }) {
		classes := strings.Fields(attrValue(el, "parent"))
		removeAttr(el, "parent")
		if el.Parent != nil && el.Parent.Type == html.ElementNode {
			addClass(el.Parent, classes...)
		}
	}
}

// removeEmptyTableHeaders drops the synthetic header rows added by the
// preprocessor. Embedded math counts as real content.
func removeEmptyTableHeaders(body *html.Node) {
	for _, thead := range findAll(body, func(n *html.Node) bool { return n.Data == "thead" }) {
		if strings.TrimSpace(textContent(thead)) != "" {
			continue
		}
		math := findFirst(thead, func(n *html.Node) bool {
			return hasClass(n, "mathjax") || hasClass(n, "katex")
		})
		if math == nil {
			detach(thead)
		}
	}
}

// markTitledBoxes adds with-title to box elements containing a heading or
// tab strip.
func markTitledBoxes(body *html.Node) {
	for _, box := range findAll(body, func(n *html.Node) bool { return hasClass(n, "box") }) {
		title := findFirst(box, func(n *html.Node) bool {
			return n.Data == "h3" || hasClass(n, "tabs")
		})
		if title != nil {
			addClass(box, "with-title")
		}
	}
}

// promoteTableRowClass lifts a class attribute set in the last row of a
// table onto the table element, then removes the row.
func promoteTableRowClass(body *html.Node) {
	for _, td := range findAll(body, func(n *html.Node) bool {
		return n.Data == "td" && hasAttr(n, "class")
	}) {
		row := td.Parent
		if row == nil || strings.TrimSpace(textContent(row)) != "" {
			continue
		}
		table := row.Parent
		for table != nil && table.Data != "table" {
			table = table.Parent
		}
		if table == nil {
			continue
		}
		setAttr(table, "class", attrValue(td, "class"))
		detach(row)
	}
}

// addEmptyImageAlts gives images without an alt attribute an empty one.
func addEmptyImageAlts(body *html.Node) {
	for _, img := range findAll(body, func(n *html.Node) bool { return n.Data == "img" }) {
		if !hasAttr(img, "alt") {
			setAttr(img, "alt", "")
		}
	}
}

// overrideLTRElements forces left-to-right direction on elements that never
// mirror, when compiling an RTL locale.
func overrideLTRElements(body *html.Node) {
	for _, tag := range ltrTags {
		for _, el := range findAll(body, func(n *html.Node) bool { return strings.EqualFold(n.Data, tag) }) {
			setAttr(el, "dir", "ltr")
		}
	}
}

// renameReservedTreeAttrs moves reserved-looking attributes to data-*.
// The preprocessor already rewrites them in source text; this catches
// attributes introduced by later passes.
func renameReservedTreeAttrs(body *html.Node) {
	for _, attr := range renamedAttrs {
		for _, el := range findAll(body, func(n *html.Node) bool { return hasAttr(n, attr) }) {
			setAttr(el, "data-"+attr, attrValue(el, attr))
			removeAttr(el, attr)
		}
	}
}
