package pipeline

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Precompiled regex patterns for the inline text passes.
var (
	// [[answer]] or [[a§§b§§c]] (choice separators shielded by the preprocessor)
	inlineBlank = regexp.MustCompile(`\[\[([^\]]+)]]`)

	// value with an optional parenthesized hint suffix
	blankHint = regexp.MustCompile(`^([^(]+)(\((.*)\))?\s*$`)

	// $...$ equations: opening $ not escaped and not followed by {,
	// closing $ not followed by a word character
	inlineEquation = regexp.MustCompile(`(^|[^\\])\$([^{][^$]*?)\$($|[^\w])`)

	// ${name} and ${name}{binding} variables
	inlineVariable = regexp.MustCompile(`\$\{([^}]+)\}(\{([^}]+)\})?`)

	// :name: emoji shortcodes
	emojiShortcode = regexp.MustCompile(`:([a-zA-Z0-9_\-+]+):`)
)

// TexPlaceholder hands equation code to the placeholder service (§ tex
// package) and returns either cached markup or a placeholder token.
type TexPlaceholder interface {
	Placeholder(code string, inline bool) string
}

// InlineRewriter applies the text-level substitutions that run inside
// paragraph, list-item and table-cell bodies. The pass order is fixed:
// blanks, equations, variables, escapes, emoji. Later passes must not
// re-match spans produced by earlier ones.
type InlineRewriter struct {
	Tex      TexPlaceholder
	EmojiURL string
}

// Rewrite runs all inline passes on rendered inline text.
func (r *InlineRewriter) Rewrite(text string) string {
	text = r.rewriteBlanks(text)
	text = r.rewriteEquations(text)
	text = rewriteVariables(text)
	text = strings.ReplaceAll(text, `\ `, "&nbsp;")
	text = strings.ReplaceAll(text, `\$`, "$")
	text = r.rewriteEmoji(text)
	return text
}

// rewriteBlanks renders [[...]] spans. A single choice becomes an input
// blank, with a parenthesized suffix treated as a hint; multiple choices
// become a multiple-choice blank with buttons in source order.
func (r *InlineRewriter) rewriteBlanks(text string) string {
	return inlineBlank.ReplaceAllStringFunc(text, func(m string) string {
		body := inlineBlank.FindStringSubmatch(m)[1]
		choices := strings.Split(body, blankChoiceMark)

		if len(choices) == 1 {
			sub := blankHint.FindStringSubmatch(body)
			if sub == nil {
				return fmt.Sprintf(`<x-blank solution="%s"></x-blank>`, body)
			}
			value, hint := strings.TrimSpace(sub[1]), sub[3]
			hintAttr := ""
			if hint != "" {
				hintAttr = fmt.Sprintf(` hint="%s"`, hint)
			}
			return fmt.Sprintf(`<x-blank solution="%s"%s></x-blank>`, value, hintAttr)
		}

		var b strings.Builder
		b.WriteString("<x-blank-mc>")
		for _, c := range choices {
			b.WriteString(`<button class="choice">` + c + "</button>")
		}
		b.WriteString("</x-blank-mc>")
		return b.String()
	})
}

// rewriteEquations replaces $...$ spans with TeX placeholders. Escaped
// dollars and ${...} variable braces are excluded by the pattern.
func (r *InlineRewriter) rewriteEquations(text string) string {
	return inlineEquation.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineEquation.FindStringSubmatch(m)
		prefix, body, suffix := sub[1], sub[2], sub[3]
		return prefix + r.Tex.Placeholder(html.UnescapeString(body), true) + suffix
	})
}

// rewriteVariables renders ${name}{binding} as a bound variable element and
// bare ${name} as a variable display span. Both forms are handled in one
// left-to-right pass so the ${...} inside generated markup is never
// re-matched.
func rewriteVariables(text string) string {
	return inlineVariable.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineVariable.FindStringSubmatch(m)
		name, binding := sub[1], sub[3]
		if binding != "" {
			return fmt.Sprintf(`<x-var bind="%s">${%s}</x-var>`, binding, name)
		}
		return fmt.Sprintf(`<span class="var">${%s}</span>`, name)
	})
}

// rewriteEmoji expands :name: shortcodes into emoji images.
func (r *InlineRewriter) rewriteEmoji(text string) string {
	return emojiShortcode.ReplaceAllStringFunc(text, func(m string) string {
		name := emojiShortcode.FindStringSubmatch(m)[1]
		return fmt.Sprintf(`<img class="emoji" width="20" height="20" src="%s/%s.png" alt="%s"/>`, r.EmojiURL, name, name)
	})
}
