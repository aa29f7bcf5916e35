package adapterutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdownPlainDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "   ", want: ""},
		{name: "heading and bold degrade", in: "# Title\n\n**bold** text", want: "Title\n\nbold text"},
		{name: "bullets", in: "- a\n- b", want: "• a\n• b"},
		{name: "star bullets", in: "* a\n* b", want: "• a\n• b"},
		{name: "ordered", in: "1. x\n2. y", want: "1. x\n2. y"},
		{name: "ordered start", in: "3. x\n4. y", want: "3. x\n4. y"},
		{name: "nested", in: "- a\n  - b", want: "• a\n  • b"},
		{name: "blank lines collapse", in: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "link", in: "[docs](https://x.io)", want: "docs (https://x.io)"},
		{name: "autolink", in: "<https://x.io>", want: "https://x.io"},
		{name: "unclosed emphasis stays literal", in: "**partial", want: "**partial"},
		{name: "soft break kept", in: "line one\nline two", want: "line one\nline two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RenderMarkdown(tt.in, Dialect{}))
		})
	}
}

func TestRenderMarkdownHooks(t *testing.T) {
	t.Parallel()

	d := Dialect{
		Bold:   func(s string) string { return "<b>" + s + "</b>" },
		Italic: func(s string) string { return "<i>" + s + "</i>" },
		Strike: func(s string) string { return "<s>" + s + "</s>" },
		Code:   func(s string) string { return "<code>" + s + "</code>" },
		CodeBlock: func(lang, code string) string {
			return "<pre lang=\"" + lang + "\">" + code + "</pre>"
		},
		Heading: func(level int, s string) string { return "<h>" + s + "</h>" },
		Link:    func(label, url string) string { return "<a " + url + ">" + label + "</a>" },
		Quote:   func(s string) string { return "<q>" + s + "</q>" },
		Escape:  func(s string) string { return strings.ReplaceAll(s, "&", "&amp;") },
		Bullet:  "- ",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bold italic", in: "**b** and *i*", want: "<b>b</b> and <i>i</i>"},
		{name: "strike", in: "~~gone~~", want: "<s>gone</s>"},
		{name: "code span", in: "run `a & b`", want: "run <code>a & b</code>"},
		{name: "escape text", in: "a & b", want: "a &amp; b"},
		{name: "heading", in: "## Part", want: "<h>Part</h>"},
		{name: "link", in: "[x](https://y)", want: "<a https://y>x</a>"},
		{name: "quote", in: "> said", want: "<q>said</q>"},
		{name: "bullet override", in: "- a", want: "- a"},
		{name: "fenced code", in: "```go\nx := 1\n```", want: "<pre lang=\"go\">x := 1</pre>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RenderMarkdown(tt.in, d))
		})
	}
}

func TestCollapseBlankLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\n\nb", CollapseBlankLines("  a  \n\n\n\nb\n"))
	assert.Equal(t, "a\nb", CollapseBlankLines("a\nb"))
}

func TestSummarizeText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, SummarizeText("  "))
	assert.Equal(t, "short", SummarizeText(" short "))
	long := strings.Repeat("x", 200)
	got := SummarizeText(long)
	assert.Equal(t, strings.Repeat("x", 120)+"...", got)
}
