package pipeline

import (
	"bytes"
	"fmt"
	"html"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// highlightFormatter emits class-based spans so the runtime stylesheet
// controls the colors; the surrounding <pre> is ours.
var highlightFormatter = chromahtml.New(
	chromahtml.WithClasses(true),
	chromahtml.PreventSurroundingPre(true),
)

// highlightCode renders a language-tagged code block. Languages chroma does
// not know fall back to a plain escaped block with the same wrapper, so the
// runtime can still style them by class.
func highlightCode(code, language string) string {
	wrapper := func(inner string) string {
		return fmt.Sprintf(`<pre class="language-%s"><code>%s</code></pre>`, language, inner)
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		return wrapper(html.EscapeString(code))
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return wrapper(html.EscapeString(code))
	}

	var buf bytes.Buffer
	if err := highlightFormatter.Format(&buf, styles.Fallback, iterator); err != nil {
		return wrapper(html.EscapeString(code))
	}
	return wrapper(buf.String())
}
