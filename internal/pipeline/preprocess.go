package pipeline

import (
	"regexp"
	"strings"

	"github.com/coursekit/coursekit/internal/buildlog"
)

// Precompiled regex patterns for performance.
var (
	// Line ending normalization
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// Relative asset references rewritten to the course content root
	relativeAssetURL = regexp.MustCompile("(url\\(|src=[\"'`]|href=[\"'`]|background=[\"'`]|poster=[\"'`])images/")

	// Attributes colliding with native HTML semantics
	reservedAttr = regexp.MustCompile(` (when|delay|animation|duration|voice)=`)

	// Two-line tables without a header row
	headerlessTable = regexp.MustCompile(`\n\n\|(.*)\n\|(.*)\n`)

	// Table delimiter rows such as |---|:--:|
	tableDelimiterRow = regexp.MustCompile(`^[\s|:-]+$`)

	// Inline blank spans [[...]]
	blankSpan = regexp.MustCompile(`\[\[([^\]]+)]]`)
)

// blankChoiceMark temporarily replaces the | choice separator inside [[...]]
// spans, which would otherwise be parsed as table cell delimiters. The
// inline rewriter reverses it.
const blankChoiceMark = "§§"

// Preprocessor rewrites raw course markdown before the main parser runs.
type Preprocessor struct {
	CourseID string
	Log      *buildlog.Logger
}

// Preprocess applies all source-level rewrites in order: line endings,
// ::: container directives, escaped-dollar shielding, relative asset URLs,
// reserved attribute renames, synthetic table headers and blank-choice
// shielding.
func (p *Preprocessor) Preprocess(content string) string {
	content = NormalizeLineEndings(content)
	content = p.BlockIndentation(content)
	content = shieldEscapedDollars(content)
	content = p.rewriteAssetURLs(content)
	content = renameReservedAttrs(content)
	content = addTableHeaders(content)
	content = shieldBlankChoices(content)
	return content
}

// NormalizeLineEndings converts \r\n and \r to \n.
func NormalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// BlockIndentation rewrites ::: container directives into nested HTML
// wrappers. A bare ::: closes the innermost open container. Consecutive
// column/tab directives share a single row/tabbox wrapper. Malformed
// directives degrade to verbatim text with a warning; containers left open
// at the end of the document are never closed.
func (p *Preprocessor) BlockIndentation(content string) string {
	lines := strings.Split(content, "\n")
	var closeTags []string
	var nested []string

	for i, line := range lines {
		if !strings.HasPrefix(line, ":::") {
			continue
		}
		tag := strings.TrimSpace(line[3:])

		if tag == "" {
			if len(closeTags) == 0 {
				continue
			}
			lines[i] = "\n" + closeTags[len(closeTags)-1] + "\n"
			closeTags = closeTags[:len(closeTags)-1]
			nested = nested[:len(nested)-1]
			continue
		}

		switch {
		case strings.HasPrefix(tag, "column"):
			col, err := renderColumn(tag)
			if err != nil {
				p.Log.Warnf("invalid column directive %q: %v", tag, err)
				continue
			}
			if len(nested) > 0 && nested[len(nested)-1] == "column" {
				lines[i] = "\n</div>" + col + "\n"
			} else {
				lines[i] = `<div class="row padded">` + col + "\n"
				nested = append(nested, "column")
				closeTags = append(closeTags, "</div></div>")
			}

		case strings.HasPrefix(tag, "tab"):
			t, err := ParseTag(".tab" + strings.TrimPrefix(tag, "tab"))
			if err != nil {
				p.Log.Warnf("invalid tab directive %q: %v", tag, err)
				continue
			}
			if len(nested) > 0 && nested[len(nested)-1] == "tab" {
				lines[i] = "\n</div>" + t.Open() + "\n"
			} else {
				lines[i] = "<x-tabbox>" + t.Open() + "\n"
				nested = append(nested, "tab")
				closeTags = append(closeTags, "</div></x-tabbox>")
			}

		default:
			t, err := ParseTag(tag)
			if err != nil {
				p.Log.Warnf("invalid block directive %q: %v", tag, err)
				continue
			}
			lines[i] = t.Open() + "\n"
			closeTags = append(closeTags, t.Close())
			nested = append(nested, "")
		}
	}

	return strings.Join(lines, "\n")
}

// renderColumn renders a column directive as an open <div>, converting a
// width attribute into an inline style.
func renderColumn(tag string) (string, error) {
	t, err := ParseTag("div" + strings.TrimPrefix(tag, "column"))
	if err != nil {
		return "", err
	}
	if w, ok := t.Attrs["width"]; ok {
		delete(t.Attrs, "width")
		t.Attrs["style"] = "width: " + w + "px"
	}
	return t.Open(), nil
}

// shieldEscapedDollars doubles the backslash of \$ so that markdown inline
// escaping does not consume it. The inline rewriter restores a plain $.
func shieldEscapedDollars(content string) string {
	return strings.ReplaceAll(content, `\$`, `\\$`)
}

// rewriteAssetURLs points relative images/ references at the course content
// root.
func (p *Preprocessor) rewriteAssetURLs(content string) string {
	return relativeAssetURL.ReplaceAllString(content, "${1}/content/"+p.CourseID+"/images/")
}

// renameReservedAttrs moves when/delay/animation/duration/voice attributes
// into the data- namespace.
func renameReservedAttrs(content string) string {
	return reservedAttr.ReplaceAllString(content, " data-$1=")
}

// addTableHeaders prepends an empty header and delimiter row to tables that
// start without one. Markdown requires header rows; the post-processor
// removes the synthetic ones again.
func addTableHeaders(content string) string {
	return headerlessTable.ReplaceAllStringFunc(content, func(m string) string {
		sub := headerlessTable.FindStringSubmatch(m)
		row1, row2 := sub[1], sub[2]
		if tableDelimiterRow.MatchString(row2) {
			return "\n\n|" + row1 + "\n|" + row2 + "\n"
		}
		cols := len(strings.Split(row1, " | "))
		header := "|" + strings.Repeat(" |", cols) + "\n|" + strings.Repeat(" - |", cols) + "\n"
		return "\n\n" + header + "|" + row1 + "\n|" + row2 + "\n"
	})
}

// shieldBlankChoices swaps | for a private marker inside [[...]] spans.
func shieldBlankChoices(content string) string {
	return blankSpan.ReplaceAllStringFunc(content, func(m string) string {
		return strings.ReplaceAll(m, "|", blankChoiceMark)
	})
}
