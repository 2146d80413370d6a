package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLDropsScripts(t *testing.T) {
	out := HTML(`<p onclick="x()">Hi <strong>there</strong><script>alert(1)</script></p>`)
	assert.Equal(t, `<p>Hi <strong>there</strong></p>`, out)
}

func TestText(t *testing.T) {
	assert.Equal(t, "I felt calm & safe. Then anxious.",
		Text(`<p>I felt <em>calm</em> &amp; safe.</p><p>Then anxious.</p>`))
	assert.Equal(t, "", Text(""))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc…", Excerpt("<p>abcdef</p>", 3))
	assert.Equal(t, "abc", Excerpt("abc", 3))
}
