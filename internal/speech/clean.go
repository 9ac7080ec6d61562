package speech

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// Clean reduces markdown to speakable prose: formatting is dropped,
// link and image text kept, code blocks skipped, and block boundaries
// become sentence breaks.
func Clean(md string) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	pending := false // a block ended; break before the next text
	write := func(b []byte) {
		if pending {
			endSentence(&buf)
			pending = false
		}
		buf.Write(b)
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				write(node.Label(src))
			}
		default:
			if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				pending = true
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(buf.String()), " ")
}

// endSentence terminates the text written so far with punctuation so a
// heading or list item is not read into the next one.
func endSentence(buf *bytes.Buffer) {
	trimmed := bytes.TrimRightFunc(buf.Bytes(), unicode.IsSpace)
	if len(trimmed) == 0 {
		return
	}
	buf.Truncate(len(trimmed))
	if r := []rune(string(trimmed)); !unicode.IsPunct(r[len(r)-1]) {
		buf.WriteByte('.')
	}
	buf.WriteByte(' ')
}
