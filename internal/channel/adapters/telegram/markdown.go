package telegram

import (
	"strings"

	"github.com/memohai/relay/internal/channel/adapters/adapterutil"
)

// telegramHTML spells markdown in the HTML subset the Bot API accepts:
// <b>, <i>, <s>, <code>, <pre>, <a href>, <blockquote>. Headings become
// bold lines and list items get a bullet.
var telegramHTML = adapterutil.Dialect{
	Escape: telegramEscapeHTML,
	Bold:   func(s string) string { return "<b>" + s + "</b>" },
	Italic: func(s string) string { return "<i>" + s + "</i>" },
	Strike: func(s string) string { return "<s>" + s + "</s>" },
	Code:   func(s string) string { return "<code>" + telegramEscapeHTML(s) + "</code>" },
	CodeBlock: func(lang, code string) string {
		escaped := telegramEscapeHTML(code)
		if lang != "" {
			return "<pre><code class=\"language-" + telegramEscapeHTML(lang) + "\">" + escaped + "</code></pre>"
		}
		return "<pre>" + escaped + "</pre>"
	},
	Heading: func(_ int, s string) string { return "<b>" + s + "</b>" },
	Link: func(label, url string) string {
		return "<a href=\"" + telegramEscapeAttr(url) + "\">" + label + "</a>"
	},
	Quote:  func(s string) string { return "<blockquote>" + s + "</blockquote>" },
	Bullet: "• ",
}

// Format converts canonical markdown to Telegram HTML.
func (a *Adapter) Format(text string) string {
	return adapterutil.RenderMarkdown(text, telegramHTML)
}

// telegramEscapeHTML escapes characters that are special in HTML.
func telegramEscapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

func telegramEscapeAttr(text string) string {
	return strings.ReplaceAll(telegramEscapeHTML(text), "\"", "&quot;")
}
