package parser

import (
	"strconv"
	"strings"
)

// Block is one top-level semantic unit of a markdown document.
//
// The set of implementations is closed: every variant lives in this file and
// implements render, so adding a variant without a rendering rule does not
// compile.
type Block interface {
	render(w *strings.Builder)
}

// Inline is a span inside a heading or paragraph.
type Inline interface {
	renderInline(w *strings.Builder)
}

// Heading is an ATX or setext heading.
type Heading struct {
	Level   int
	Inlines []Inline
}

// Paragraph is a run of inline content.
type Paragraph struct {
	Inlines []Inline
}

// List is an ordered or bullet list.
type List struct {
	Ordered bool
	Start   int
	Items   []ListItem
}

// ListItem holds the blocks of one list entry.
type ListItem struct {
	Blocks []Block
}

// BlockQuote wraps quoted blocks.
type BlockQuote struct {
	Blocks []Block
}

// Code is a fenced or indented code block.
type Code struct {
	Lang string
	Body string
}

// HTML is a raw embedded HTML block. VideoIDs lists the embedded videos it
// declares; such blocks render to nothing.
type HTML struct {
	Raw      string
	VideoIDs []string
}

// Text is literal inline text.
type Text struct {
	Value string
}

// Link is a hyperlink or image reference.
type Link struct {
	URL  string
	Text string
}

// CodeSpan is inline code.
type CodeSpan struct {
	Value string
}

// Render flattens b to the text that gets chunked and embedded.
func Render(b Block) string {
	var w strings.Builder
	b.render(&w)
	return strings.TrimSpace(w.String())
}

func (h *Heading) render(w *strings.Builder) {
	w.WriteString(strings.Repeat("#", h.Level))
	w.WriteByte(' ')
	w.WriteString(strings.TrimSpace(renderInlines(h.Inlines)))
}

func (p *Paragraph) render(w *strings.Builder) {
	w.WriteString(strings.TrimSpace(renderInlines(p.Inlines)))
}

func (l *List) render(w *strings.Builder) {
	n := l.Start
	if n == 0 {
		n = 1
	}
	for i, item := range l.Items {
		if i > 0 {
			w.WriteByte('\n')
		}
		marker := "- "
		if l.Ordered {
			marker = strconv.Itoa(n+i) + ". "
		}
		w.WriteString(marker)
		for j, b := range item.Blocks {
			text := Render(b)
			if j == 0 {
				w.WriteString(text)
				continue
			}
			w.WriteByte('\n')
			w.WriteString(indent(text, "  "))
		}
	}
}

func (q *BlockQuote) render(w *strings.Builder) {
	for i, b := range q.Blocks {
		if i > 0 {
			w.WriteByte('\n')
		}
		w.WriteString(indent(Render(b), "> "))
	}
}

func (c *Code) render(w *strings.Builder) {
	w.WriteString("```")
	w.WriteString(c.Lang)
	w.WriteByte('\n')
	w.WriteString(c.Body)
	w.WriteString("\n```")
}

func (h *HTML) render(w *strings.Builder) {
	if len(h.VideoIDs) > 0 {
		return
	}
	w.WriteString(stripTags(h.Raw))
}

func (t *Text) renderInline(w *strings.Builder) {
	w.WriteString(t.Value)
}

func (l *Link) renderInline(w *strings.Builder) {
	w.WriteString(l.URL)
	text := strings.TrimSpace(l.Text)
	if text != "" && text != l.URL {
		w.WriteByte(' ')
		w.WriteString(text)
	}
}

func (c *CodeSpan) renderInline(w *strings.Builder) {
	w.WriteString(c.Value)
}

func renderInlines(in []Inline) string {
	var w strings.Builder
	for _, i := range in {
		i.renderInline(&w)
	}
	return w.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
