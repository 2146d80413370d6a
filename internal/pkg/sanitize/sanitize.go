// Package sanitize cleans card bodies written by the rich-text editor and
// derives plain text from them for previews and exports.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	bodyPolicy  = newBodyPolicy()
	stripPolicy = bluemonday.StrictPolicy()
)

func newBodyPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("p", "span", "li", "ul", "ol")
	p.AllowElements("mark", "s", "u")
	return p
}

// HTML removes scripts, event handlers and anything else the editor cannot
// produce, keeping formatting markup.
func HTML(body string) string {
	return bodyPolicy.Sanitize(body)
}

// Text strips all markup and collapses whitespace.
func Text(body string) string {
	spaced := strings.NewReplacer("</p>", "</p> ", "<br>", " ", "<br/>", " ", "</li>", "</li> ").Replace(body)
	plain := html.UnescapeString(stripPolicy.Sanitize(spaced))
	return strings.Join(strings.Fields(plain), " ")
}

// Excerpt returns at most n runes of Text(body), marking truncation with "…".
func Excerpt(body string, n int) string {
	text := []rune(Text(body))
	if n <= 0 || len(text) <= n {
		return string(text)
	}
	return strings.TrimSpace(string(text[:n])) + "…"
}
