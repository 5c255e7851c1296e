package telegram

import (
	"html"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

// RenderHTML converts Markdown, as produced by chat models, into the subset of
// HTML accepted by Telegram (b, i, s, code, pre, a, blockquote).
// Constructs without a Telegram equivalent are flattened to text.
func RenderHTML(md string) string {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))

	r := &htmlRenderer{src: src}
	_ = ast.Walk(doc, r.walk)
	return strings.TrimSpace(r.buf.String())
}

type htmlRenderer struct {
	src []byte
	buf strings.Builder
}

func (r *htmlRenderer) write(s string) {
	r.buf.WriteString(s)
}

func (r *htmlRenderer) escaped(b []byte) {
	r.buf.WriteString(html.EscapeString(string(b)))
}

// blockEnd separates a block from the next sibling.
func (r *htmlRenderer) blockEnd(n ast.Node, sep string) {
	if n.NextSibling() != nil {
		r.write(sep)
	}
}

func (r *htmlRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Document:
		return ast.WalkContinue, nil

	case *ast.Paragraph:
		if !entering {
			r.blockEnd(n, "\n\n")
		}

	case *ast.TextBlock:
		if !entering {
			r.blockEnd(n, "\n")
		}

	case *ast.Heading:
		if entering {
			r.write("<b>")
		} else {
			r.write("</b>")
			r.blockEnd(n, "\n\n")
		}

	case *ast.ThematicBreak:
		if entering {
			r.write("――――――――")
			r.blockEnd(n, "\n\n")
		}

	case *ast.Blockquote:
		if entering {
			r.write("<blockquote>")
		} else {
			r.write("</blockquote>")
			r.blockEnd(n, "\n\n")
		}

	case *ast.List:
		if !entering {
			r.blockEnd(n, "\n\n")
		}

	case *ast.ListItem:
		if entering {
			r.write(listMarker(node))
		} else {
			r.blockEnd(n, "\n")
		}

	case *ast.FencedCodeBlock:
		if entering {
			lang := string(node.Language(r.src))
			if lang != "" {
				r.write(`<pre><code class="language-` + html.EscapeString(lang) + `">`)
			} else {
				r.write("<pre>")
			}
			r.codeLines(n)
			if lang != "" {
				r.write("</code></pre>")
			} else {
				r.write("</pre>")
			}
			r.blockEnd(n, "\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			r.write("<pre>")
			r.codeLines(n)
			r.write("</pre>")
			r.blockEnd(n, "\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		if entering {
			r.codeLines(n)
			r.blockEnd(n, "\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Emphasis:
		tag := "i"
		if node.Level >= 2 {
			tag = "b"
		}
		if entering {
			r.write("<" + tag + ">")
		} else {
			r.write("</" + tag + ">")
		}

	case *east.Strikethrough:
		if entering {
			r.write("<s>")
		} else {
			r.write("</s>")
		}

	case *ast.CodeSpan:
		if entering {
			r.write("<code>")
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.escaped(t.Segment.Value(r.src))
				}
			}
			r.write("</code>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			r.write(`<a href="` + html.EscapeString(string(node.Destination)) + `">`)
		} else {
			r.write("</a>")
		}

	case *ast.AutoLink:
		if entering {
			url := node.URL(r.src)
			r.write(`<a href="` + html.EscapeString(string(url)) + `">`)
			r.escaped(node.Label(r.src))
			r.write("</a>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		// Telegram cannot inline images; keep the alt text as a link.
		if entering {
			r.write(`<a href="` + html.EscapeString(string(node.Destination)) + `">`)
		} else {
			r.write("</a>")
		}

	case *ast.RawHTML:
		if entering {
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				r.escaped(seg.Value(r.src))
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.Text:
		if entering {
			r.escaped(node.Segment.Value(r.src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.write("\n")
			}
		}

	case *ast.String:
		if entering {
			r.escaped(node.Value)
		}
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) codeLines(n ast.Node) {
	lines := n.Lines()
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(r.src))
	}
	r.write(html.EscapeString(strings.TrimRight(b.String(), "\n")))
}

func listMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "• "
	}
	idx := list.Start
	for c := list.FirstChild(); c != nil && c != ast.Node(item); c = c.NextSibling() {
		idx++
	}
	return strconv.Itoa(idx) + ". "
}
