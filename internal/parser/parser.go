// Package parser turns note markdown into a sequence of semantic blocks and
// extracts frontmatter and titles.
package parser

import (
	"bytes"
	"iter"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	mdparser "github.com/gomarkdown/markdown/parser"
)

var (
	videoEmbedRe = regexp.MustCompile(`(?:youtube\.com|youtube-nocookie\.com)/embed/([A-Za-z0-9_-]+)`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	spaceRe      = regexp.MustCompile(`[ \t]+`)
)

// Blocks parses markdown and yields its top-level blocks in document order.
// Conversion of each block happens on demand. Leading --- lines are ordinary
// markdown here; frontmatter is only split off by callers that own files.
func Blocks(markdownText string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		if strings.TrimSpace(markdownText) == "" {
			return
		}
		// A gomarkdown parser is single-use.
		p := mdparser.NewWithExtensions(mdparser.CommonExtensions)
		doc := markdown.Parse([]byte(markdownText), p)
		for _, child := range doc.GetChildren() {
			b, ok := convertBlock(child)
			if !ok {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// VideoIDs returns the embedded video identifiers referenced in raw HTML.
func VideoIDs(raw string) []string {
	var out []string
	for _, m := range videoEmbedRe.FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	return out
}

func convertBlock(n ast.Node) (Block, bool) {
	switch n := n.(type) {
	case *ast.Heading:
		return &Heading{Level: n.Level, Inlines: collectInlines(n, nil)}, true
	case *ast.Paragraph:
		inl := collectInlines(n, nil)
		if strings.TrimSpace(renderInlines(inl)) == "" {
			return nil, false
		}
		return &Paragraph{Inlines: inl}, true
	case *ast.List:
		l := &List{Ordered: n.ListFlags&ast.ListTypeOrdered != 0, Start: n.Start}
		for _, c := range n.GetChildren() {
			l.Items = append(l.Items, ListItem{Blocks: convertChildren(c)})
		}
		return l, len(l.Items) > 0
	case *ast.BlockQuote:
		q := &BlockQuote{Blocks: convertChildren(n)}
		return q, len(q.Blocks) > 0
	case *ast.CodeBlock:
		return &Code{
			Lang: firstField(n.Info),
			Body: strings.TrimRight(string(n.Literal), "\n"),
		}, true
	case *ast.HTMLBlock:
		raw := string(n.Literal)
		return &HTML{Raw: raw, VideoIDs: VideoIDs(raw)}, true
	case *ast.HorizontalRule:
		return nil, false
	default:
		// Tables, math and other extension blocks are indexed as plain text.
		text := strings.TrimSpace(plainText(n))
		if text == "" {
			return nil, false
		}
		return &Paragraph{Inlines: []Inline{&Text{Value: text}}}, true
	}
}

func convertChildren(n ast.Node) []Block {
	var out []Block
	for _, c := range n.GetChildren() {
		if b, ok := convertBlock(c); ok {
			out = append(out, b)
		}
	}
	return out
}

func collectInlines(n ast.Node, out []Inline) []Inline {
	for _, c := range n.GetChildren() {
		switch c := c.(type) {
		case *ast.Text:
			out = appendText(out, string(c.Literal))
		case *ast.Code:
			out = append(out, &CodeSpan{Value: string(c.Literal)})
		case *ast.Link:
			out = append(out, &Link{URL: string(c.Destination), Text: plainText(c)})
		case *ast.Image:
			out = append(out, &Link{URL: string(c.Destination), Text: plainText(c)})
		case *ast.Softbreak, *ast.Hardbreak:
			out = appendText(out, "\n")
		case *ast.HTMLSpan:
			// inline tags carry no text
		default:
			out = collectInlines(c, out)
		}
	}
	return out
}

func appendText(out []Inline, s string) []Inline {
	if len(out) > 0 {
		if t, ok := out[len(out)-1].(*Text); ok {
			t.Value += s
			return out
		}
	}
	return append(out, &Text{Value: s})
}

// plainText concatenates every literal below n.
func plainText(n ast.Node) string {
	var b strings.Builder
	ast.WalkFunc(n, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch node := node.(type) {
		case *ast.TableCell:
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
		case *ast.TableRow:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
		case *ast.HTMLSpan:
			return ast.SkipChildren
		default:
			if leaf := node.AsLeaf(); leaf != nil {
				b.Write(leaf.Literal)
			}
		}
		return ast.GoToNext
	})
	return b.String()
}

func firstField(info []byte) string {
	fields := bytes.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	return string(fields[0])
}

func stripTags(raw string) string {
	text := tagRe.ReplaceAllString(raw, " ")
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(spaceRe.ReplaceAllString(l, " "))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
