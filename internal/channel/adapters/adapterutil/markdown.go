package adapterutil

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Dialect describes how a platform spells each markdown construct.
// Nil hooks fall back to the plain inner text.
type Dialect struct {
	Escape    func(string) string
	Bold      func(string) string
	Italic    func(string) string
	Strike    func(string) string
	Code      func(string) string
	CodeBlock func(lang, code string) string
	Heading   func(level int, text string) string
	Link      func(label, url string) string
	Quote     func(string) string
	// Bullet prefixes unordered list items. Defaults to "• ".
	Bullet string
}

var (
	mdParser      parser.Parser = goldmark.New(goldmark.WithExtensions(extension.Strikethrough)).Parser()
	reBlankLines                = regexp.MustCompile(`\n{3,}`)
	reTrailingSpc               = regexp.MustCompile(`[ \t]+\n`)
)

// RenderMarkdown parses canonical markdown and re-emits it in dialect d.
// Constructs the dialect cannot express degrade to their plain text.
func RenderMarkdown(src string, d Dialect) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	if d.Bullet == "" {
		d.Bullet = "• "
	}
	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))
	r := &mdRenderer{src: source, d: d}
	out := r.blocks(doc, 0, "\n\n")
	return CollapseBlankLines(out)
}

// CollapseBlankLines trims the text and squeezes runs of blank lines to one.
func CollapseBlankLines(s string) string {
	s = reTrailingSpc.ReplaceAllString(s, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

type mdRenderer struct {
	src []byte
	d   Dialect
}

func (r *mdRenderer) blocks(parent ast.Node, depth int, sep string) string {
	var parts []string
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if s := r.block(n, depth); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (r *mdRenderer) block(n ast.Node, depth int) string {
	switch node := n.(type) {
	case *ast.Heading:
		inner := r.inlines(node)
		if r.d.Heading != nil {
			return r.d.Heading(node.Level, inner)
		}
		return inner
	case *ast.Paragraph, *ast.TextBlock:
		return r.inlines(node)
	case *ast.List:
		return r.list(node, depth)
	case *ast.FencedCodeBlock:
		return r.codeBlock(string(node.Language(r.src)), r.rawLines(node))
	case *ast.CodeBlock:
		return r.codeBlock("", r.rawLines(node))
	case *ast.Blockquote:
		inner := r.blocks(node, depth, "\n")
		if r.d.Quote != nil {
			return r.d.Quote(inner)
		}
		return inner
	case *ast.HTMLBlock:
		return r.escape(strings.TrimRight(r.rawLines(node), "\n"))
	case *ast.ThematicBreak:
		return "———"
	default:
		if n.Type() == ast.TypeBlock && n.HasChildren() && n.FirstChild().Type() == ast.TypeBlock {
			return r.blocks(n, depth, "\n\n")
		}
		return r.inlines(n)
	}
}

func (r *mdRenderer) list(l *ast.List, depth int) string {
	indent := strings.Repeat("  ", depth)
	number := l.Start
	if number == 0 {
		number = 1
	}
	var lines []string
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		prefix := r.d.Bullet
		if l.IsOrdered() {
			prefix = strconv.Itoa(number) + ". "
			number++
		}
		var head []string
		var nested []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				nested = append(nested, r.list(sub, depth+1))
				continue
			}
			if s := r.block(c, depth+1); s != "" {
				head = append(head, s)
			}
		}
		lines = append(lines, indent+prefix+strings.Join(head, "\n"+indent+"  "))
		lines = append(lines, nested...)
	}
	return strings.Join(lines, "\n")
}

func (r *mdRenderer) codeBlock(lang, code string) string {
	code = strings.TrimRight(code, "\n")
	if r.d.CodeBlock != nil {
		return r.d.CodeBlock(lang, code)
	}
	return r.escape(code)
}

func (r *mdRenderer) rawLines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(r.src))
	}
	return b.String()
}

func (r *mdRenderer) inlines(parent ast.Node) string {
	var b strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		b.WriteString(r.inline(n))
	}
	return b.String()
}

func (r *mdRenderer) inline(n ast.Node) string {
	switch node := n.(type) {
	case *ast.Text:
		s := r.escape(string(node.Segment.Value(r.src)))
		if node.SoftLineBreak() || node.HardLineBreak() {
			s += "\n"
		}
		return s
	case *ast.String:
		return r.escape(string(node.Value))
	case *ast.CodeSpan:
		var raw strings.Builder
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				raw.Write(t.Segment.Value(r.src))
			case *ast.String:
				raw.Write(t.Value)
			}
		}
		if r.d.Code != nil {
			return r.d.Code(raw.String())
		}
		return r.escape(raw.String())
	case *ast.Emphasis:
		inner := r.inlines(node)
		if node.Level >= 2 {
			return apply(r.d.Bold, inner)
		}
		return apply(r.d.Italic, inner)
	case *extast.Strikethrough:
		return apply(r.d.Strike, r.inlines(node))
	case *ast.Link:
		return r.link(r.inlines(node), string(node.Destination))
	case *ast.AutoLink:
		return r.link(r.escape(string(node.Label(r.src))), string(node.URL(r.src)))
	case *ast.Image:
		alt := r.inlines(node)
		if alt == "" {
			return r.escape(string(node.Destination))
		}
		return alt + " (" + r.escape(string(node.Destination)) + ")"
	case *ast.RawHTML:
		var raw strings.Builder
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			raw.Write(seg.Value(r.src))
		}
		return r.escape(raw.String())
	default:
		return r.inlines(n)
	}
}

func (r *mdRenderer) link(label, url string) string {
	if r.d.Link != nil {
		return r.d.Link(label, url)
	}
	if label == "" || label == url {
		return url
	}
	return label + " (" + url + ")"
}

func (r *mdRenderer) escape(s string) string {
	if r.d.Escape != nil {
		return r.d.Escape(s)
	}
	return s
}

func apply(fn func(string) string, s string) string {
	if fn == nil || s == "" {
		return s
	}
	return fn(s)
}
