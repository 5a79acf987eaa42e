package document

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownLoader handles Markdown files using goldmark.
type MarkdownLoader struct{}

func (l *MarkdownLoader) Load(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	// Flatten the AST: headings and other top-level blocks each become one
	// paragraph, in document order.
	var paragraphs []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if title := strings.TrimSpace(string(node.Text(src))); title != "" {
				paragraphs = append(paragraphs, title)
			}
		default:
			if t := extractText(n, src); t != "" {
				paragraphs = append(paragraphs, t)
			}
		}
	}

	return &Document{
		Title: strings.TrimSuffix(strings.TrimSuffix(filename, ".md"), ".markdown"),
		Text:  strings.Join(paragraphs, "\n\n"),
	}, nil
}

// extractText gets the text content of a goldmark AST node. Nodes with
// children are read through their inlines; leaf blocks such as fenced code
// are read from their raw source lines.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.HasChildren() {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Value(src))
				if t.HardLineBreak() || t.SoftLineBreak() {
					buf.WriteByte('\n')
				}
				continue
			}
			sub := extractText(c, src)
			if sub == "" {
				continue
			}
			if buf.Len() > 0 && c.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			buf.WriteString(sub)
		}
	} else if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
	}
	return strings.TrimSpace(buf.String())
}
