package pipeline

import (
	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
)

// minifier collapses whitespace runs and strips comments but keeps end tags
// and attribute quotes. The runtime upgrades custom elements in place, so
// the markup must stay structurally intact.
var minifier = func() *minify.M {
	m := minify.New()
	m.Add("text/html", &mhtml.Minifier{
		KeepEndTags:    true,
		KeepQuotes:     true,
		KeepWhitespace: true,
	})
	return m
}()

// MinifyHTML minifies a compiled HTML fragment. A fragment the minifier
// cannot handle is returned unchanged.
func MinifyHTML(fragment string) string {
	out, err := minifier.String("text/html", fragment)
	if err != nil {
		return fragment
	}
	return out
}
