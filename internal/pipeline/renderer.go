package pipeline

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"github.com/coursekit/coursekit/internal/buildlog"
)

// codeLanguages maps shorthand fence names to highlighter language names.
var codeLanguages = map[string]string{
	"py": "python", "c": "clike", "jl": "julia", "sh": "bash", "code": "md",
}

// rtlLocales compile right-to-left; a fixed set of elements stays LTR.
var rtlLocales = map[string]bool{"ar": true, "he": true, "fa": true}

// codeSpanLang matches a {lang} prefix in code spans.
var codeSpanLang = regexp.MustCompile(`^\{(\w+)\}`)

// doubleEscapedEntity restores entities mangled by naive & escaping.
var doubleEscapedEntity = regexp.MustCompile(`&amp;((?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);)`)

// Options configures a Renderer for one (course, locale) pair.
type Options struct {
	CourseID string
	Dir      string // course directory, for template includes
	Locale   string
	Domain   string // links to this domain open in the same tab
	EmojiURL string
}

// Renderer converts one step's markdown dialect to HTML, capturing titles,
// metadata and referenced localization keys into a StepMetadata as a side
// effect. One Renderer per step; not safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	meta   *StepMetadata
	inline *InlineRewriter
	tex    TexPlaceholder
	log    *buildlog.Logger
	opts   Options
}

// NewRenderer creates a Renderer bound to the given metadata collector.
func NewRenderer(meta *StepMetadata, tex TexPlaceholder, log *buildlog.Logger, opts Options) *Renderer {
	r := &Renderer{
		meta:   meta,
		inline: &InlineRewriter{Tex: tex, EmojiURL: opts.EmojiURL},
		tex:    tex,
		log:    log,
		opts:   opts,
	}
	r.md = goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithRendererOptions(
			ghtml.WithUnsafe(), // container markup from the preprocessor passes through
			renderer.WithNodeRenderers(util.Prioritized(&stepNodeRenderer{r: r}, 100)),
		),
	)
	return r
}

// Render converts preprocessed markdown to an HTML fragment.
func (r *Renderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// stepNodeRenderer overrides the goldmark handlers for every construct with
// course-specific semantics; everything else falls through to the default
// HTML renderer.
type stepNodeRenderer struct {
	r *Renderer
}

func (s *stepNodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindHeading, s.renderHeading)
	reg.Register(ast.KindBlockquote, s.renderBlockquote)
	reg.Register(ast.KindParagraph, s.renderParagraph)
	reg.Register(ast.KindTextBlock, s.renderTextBlock)
	reg.Register(ast.KindFencedCodeBlock, s.renderCodeBlock)
	reg.Register(ast.KindCodeBlock, s.renderCodeBlock)
	reg.Register(east.KindTableCell, s.renderTableCell)
}

// renderHeading captures the course title (level 1) and section title
// (level 2) without emitting anything; deeper headings shift one level up
// so an author-written ### becomes an <h2>.
func (s *stepNodeRenderer) renderHeading(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Heading)
	text := s.r.renderInlines(node, source)

	switch {
	case n.Level == 1:
		s.r.meta.CourseTitle = text
	case n.Level == 2:
		s.r.meta.SectionTitle = text
	default:
		fmt.Fprintf(w, "<h%d>%s</h%d>\n", n.Level-1, text, n.Level-1)
	}
	return ast.WalkSkipChildren, nil
}

// renderBlockquote parses the quoted lines as YAML metadata and emits
// nothing. The raw source segment is used, so markdown emphasis never
// mangles metadata values.
func (s *stepNodeRenderer) renderBlockquote(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	var raw bytes.Buffer
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		lines := child.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			raw.Write(seg.Value(source))
		}
	}

	if raw.Len() > 0 {
		decoded := html.UnescapeString(raw.String())
		if err := s.r.meta.MergeYAML([]byte(decoded)); err != nil {
			s.r.log.Warnf("invalid metadata block: %v", err)
		}
	}
	return ast.WalkSkipChildren, nil
}

func (s *stepNodeRenderer) renderParagraph(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	text := s.r.inline.Rewrite(s.r.renderInlines(node, source))
	_, _ = w.WriteString("<p>" + text + "</p>\n")
	return ast.WalkSkipChildren, nil
}

// renderTextBlock handles the implicit paragraph inside tight list items.
func (s *stepNodeRenderer) renderTextBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		if node.NextSibling() != nil && node.FirstChild() != nil {
			_ = w.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	}
	text := s.r.inline.Rewrite(s.r.renderInlines(node, source))
	_, _ = w.WriteString(text)
	return ast.WalkSkipChildren, nil
}

func (s *stepNodeRenderer) renderTableCell(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*east.TableCell)
	tag := "td"
	if node.Parent().Kind() == east.KindTableHeader {
		tag = "th"
	}
	align := ""
	switch n.Alignment {
	case east.AlignLeft:
		align = ` align="left"`
	case east.AlignRight:
		align = ` align="right"`
	case east.AlignCenter:
		align = ` align="center"`
	}
	text := s.r.inline.Rewrite(s.r.renderInlines(node, source))
	fmt.Fprintf(w, "<%s%s>%s</%s>", tag, align, text, tag)
	return ast.WalkSkipChildren, nil
}

// renderCodeBlock handles fenced and indented code blocks: latex fences
// become display equations, named fences become highlighted code, and
// unnamed blocks are rendered through the tag-expression template engine.
func (s *stepNodeRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	lang := ""
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		lang = string(fenced.Language(source))
	}

	var code bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}
	text := strings.TrimRight(code.String(), "\n")

	switch {
	case lang == "latex":
		eqn := `\begin{align*}` + html.UnescapeString(text) + `\end{align*}`
		_, _ = w.WriteString(`<p class="text-center">` + s.r.tex.Placeholder(eqn, false) + "</p>\n")

	case lang != "":
		name := lang
		if mapped, ok := codeLanguages[lang]; ok {
			name = mapped
		}
		_, _ = w.WriteString(highlightCode(html.UnescapeString(text), name) + "\n")

	default:
		rendered, err := RenderBlock(text)
		if err != nil {
			s.r.log.Warnf("template parsing error: %v", err)
			return ast.WalkSkipChildren, nil
		}
		_, _ = w.WriteString(rendered + "\n")
	}
	return ast.WalkSkipChildren, nil
}

// renderInlines assembles the inline HTML of a node's children. Paragraph,
// list-item and table-cell handlers pass the result through the inline
// rewriter before wrapping it.
func (r *Renderer) renderInlines(parent ast.Node, source []byte) string {
	var b strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		r.renderInline(&b, n, source)
	}
	return b.String()
}

func (r *Renderer) renderInline(b *strings.Builder, node ast.Node, source []byte) {
	switch n := node.(type) {
	case *ast.Text:
		b.WriteString(escapeText(string(n.Segment.Value(source))))
		if n.HardLineBreak() {
			b.WriteString("<br>\n")
		} else if n.SoftLineBreak() {
			b.WriteByte('\n')
		}

	case *ast.String:
		b.Write(n.Value)

	case *ast.CodeSpan:
		var code bytes.Buffer
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				code.Write(t.Segment.Value(source))
			}
		}
		b.WriteString(r.codeSpan(code.String()))

	case *ast.Emphasis:
		tag := "em"
		if n.Level == 2 {
			tag = "strong"
		}
		b.WriteString("<" + tag + ">")
		b.WriteString(r.renderInlines(node, source))
		b.WriteString("</" + tag + ">")

	case *east.Strikethrough:
		b.WriteString("<del>")
		b.WriteString(r.renderInlines(node, source))
		b.WriteString("</del>")

	case *ast.Link:
		b.WriteString(r.link(string(n.Destination), r.renderInlines(node, source)))

	case *ast.AutoLink:
		url := string(n.URL(source))
		b.WriteString(r.link(url, escapeText(url)))

	case *ast.Image:
		alt := string(n.Text(source))
		src := string(n.Destination)
		if strings.HasPrefix(src, "images/") {
			src = "/content/" + r.opts.CourseID + "/" + src
		}
		fmt.Fprintf(b, `<img src="%s" alt="%s"/>`, src, html.EscapeString(alt))

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(source))
		}

	default:
		b.WriteString(r.renderInlines(node, source))
	}
}

// link dispatches links by scheme/prefix to course-specific elements.
func (r *Renderer) link(href, text string) string {
	switch {
	case href == "btn:next":
		return `<button class="next-step">` + text + "</button>"

	case strings.HasPrefix(href, "gloss:"):
		id := href[len("gloss:"):]
		r.meta.AddGloss(id)
		return fmt.Sprintf(`<x-gloss xid="%s">%s</x-gloss>`, id, text)

	case strings.HasPrefix(href, "bio:"):
		id := href[len("bio:"):]
		r.meta.AddBio(id)
		return fmt.Sprintf(`<x-bio xid="%s">%s</x-bio>`, id, text)

	case strings.HasPrefix(href, "target:"):
		id := href[len("target:"):]
		return fmt.Sprintf(`<span class="step-target pill" tabindex="0" data-to="%s">%s</span>`, id, text)

	case strings.HasPrefix(href, "action:"):
		id := href[len("action:"):]
		return fmt.Sprintf(`<button class="var-action" @click="%s">%s</button>`, id, text)

	case strings.HasPrefix(href, "pill:"):
		colour := href[len("pill:"):]
		return fmt.Sprintf(`<strong class="pill %s">%s</strong>`, colour, text)
	}

	decoded := html.UnescapeString(href)
	if strings.HasPrefix(decoded, "->") {
		to := strings.ReplaceAll(decoded[2:], "_", " ")
		return fmt.Sprintf(`<x-target class="step-target pill" to="%s">%s</x-target>`, to, text)
	}

	newWindow := !strings.HasPrefix(href, "#") &&
		(r.opts.Domain == "" || !strings.Contains(href, r.opts.Domain))
	target := ""
	if newWindow {
		target = ` target="_blank"`
	}
	return fmt.Sprintf(`<a href="%s"%s>%s</a>`, href, target, text)
}

// codeSpan renders inline code: a {lang} prefix yields a language-tagged
// code element ({latex} routes to the equation service); anything else is
// parsed as a math expression with both markup and voice forms.
func (r *Renderer) codeSpan(code string) string {
	code = html.UnescapeString(code)

	if m := codeSpanLang.FindStringSubmatch(code); m != nil {
		code = strings.TrimSpace(code[len(m[0]):])
		if m[1] == "latex" {
			return r.tex.Placeholder(code, true)
		}
		name := m[1]
		if mapped, ok := codeLanguages[name]; ok {
			name = mapped
		}
		return fmt.Sprintf(`<code class="language-%s">%s</code>`, name, html.EscapeString(code))
	}

	// Non-tagged code spans are maths equations. A § prefix selects the
	// interactive math element over the plain span.
	interactive := strings.HasPrefix(code, "§")
	if interactive {
		code = code[len("§"):]
	}

	maths, voice, err := ParseExpr(code)
	if err != nil {
		r.log.Warnf("maths parsing error in %q: %v", code, err)
		return `<span class="math"></span>`
	}

	dir := ""
	if rtlLocales[r.opts.Locale] {
		dir = ` dir="ltr"`
	}
	if interactive {
		return fmt.Sprintf(`<x-math data-voice="%s"%s>%s</x-math>`, html.EscapeString(voice), dir, maths)
	}
	return fmt.Sprintf(`<span class="math" data-voice="%s"%s>%s</span>`, html.EscapeString(voice), dir, maths)
}

// escapeText escapes text content without double-escaping entities the
// author wrote directly.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = doubleEscapedEntity.ReplaceAllString(s, "&$1")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
