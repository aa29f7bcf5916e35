package slack

import (
	"strings"

	"github.com/memohai/relay/internal/channel/adapters/adapterutil"
)

var mrkdwn = adapterutil.Dialect{
	Escape: escapeMrkdwn,
	Bold:   func(s string) string { return "*" + s + "*" },
	Italic: func(s string) string { return "_" + s + "_" },
	Strike: func(s string) string { return "~" + s + "~" },
	Code:   func(s string) string { return "`" + escapeMrkdwn(s) + "`" },
	CodeBlock: func(_ string, code string) string {
		return "```\n" + escapeMrkdwn(code) + "\n```"
	},
	Heading: func(_ int, s string) string {
		if strings.HasSuffix(s, ":") {
			return "*" + s + "*"
		}
		return "*" + s + ":*"
	},
	Link: func(label, url string) string {
		if label == "" || label == url {
			return "<" + url + ">"
		}
		return "<" + url + "|" + label + ">"
	},
	Quote: func(s string) string {
		return "> " + strings.ReplaceAll(s, "\n", "\n> ")
	},
	Bullet: "• ",
}

// Format converts canonical markdown to Slack mrkdwn.
func (a *Adapter) Format(text string) string {
	return adapterutil.RenderMarkdown(text, mrkdwn)
}

func escapeMrkdwn(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}
