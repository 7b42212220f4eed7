package render

import (
	"bytes"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/mmarkdown/mmark/v2/lang"
	"github.com/mmarkdown/mmark/v2/mparser"
	"github.com/mmarkdown/mmark/v2/render/mhtml"
)

// Same as mparser.Extensions without file includes and definition lists. A
// definition list claims any ':' line after a paragraph, directives included.
const mmarkExtensions = parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough |
	parser.SpaceHeadings | parser.HeadingIDs | parser.BackslashLineBreak | parser.SuperSubscript |
	parser.MathJax | parser.AutoHeadingIDs | parser.Footnotes |
	parser.OrderedListStart | parser.Attributes | parser.Mmark | parser.NoIntraEmphasis

type mmarkDirective struct {
	ast.Container
	D *Directive
}

type mmarkLatex struct {
	ast.Leaf
	Lang   string
	Source string
}

func renderMmark(md []byte, st *renderState) []byte {
	md = markdown.NormalizeNewlines(md)
	md = padBlockOpeners(md)

	p := parser.NewWithExtensions(mmarkExtensions)
	p.Opts = parser.Options{
		ParserHook: mmarkBlockHook,
		Flags:      parser.FlagsNone,
	}

	// gomarkdown has no ':' handler of its own to fall back to
	p.RegisterInline(':', func(p *parser.Parser, data []byte, offset int) (int, ast.Node) {
		if offset == 0 || !isWordByte(data[offset-1]) {
			if d, n, ok := parseText(data[offset:]); ok {
				return n, &mmarkDirective{D: d}
			}
		}
		return 0, nil
	})

	doc := markdown.Parse(md, p)
	mparser.AddIndex(doc)

	language := "en"
	if st.meta.Info != nil && st.meta.Info.Language != "" {
		language = st.meta.Info.Language
	}
	mhtmlOpts := mhtml.RendererOptions{
		Language: lang.New(language),
	}

	opts := md_html.RendererOptions{
		RenderNodeHook: st.mmarkRenderHook(mhtmlOpts.RenderHook),
		Flags:          md_html.CommonFlags | md_html.FootnoteNoHRTag | md_html.FootnoteReturnLinks,
	}

	return markdown.Render(doc, md_html.NewRenderer(opts))
}

// mmarkBlockHook runs at every block start. Directive containers hand their
// body back to the parser so it becomes the node's children.
func mmarkBlockHook(data []byte) (ast.Node, []byte, int) {
	first := trimIndent(data[:lineEnd(data, 0)])

	switch {
	case bytes.HasPrefix(first, []byte(":::")):
		if d, body, consumed, ok := splitContainer(data); ok {
			return &mmarkDirective{D: d}, body, consumed
		}
	case bytes.HasPrefix(first, []byte("::")):
		if d, ok := parseLeaf(first); ok {
			return &mmarkDirective{D: d}, nil, lineEnd(data, 0)
		}
	case bytes.HasPrefix(first, []byte("<latex")):
		if lang, source, consumed, ok := splitLatex(data); ok {
			return &mmarkLatex{Lang: lang, Source: source}, nil, consumed
		}
	}

	return mparser.Hook(data)
}

func (st *renderState) mmarkRenderHook(fallback md_html.RenderNodeFunc) md_html.RenderNodeFunc {
	return func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
		switch n := node.(type) {
		case *mmarkDirective:
			if n.D.Type != ContainerDirective {
				if entering {
					renderDirective(w, n.D, true)
				}
				return ast.SkipChildren, true
			}
			renderDirective(w, n.D, entering)
			return ast.GoToNext, true

		case *mmarkLatex:
			if entering {
				st.writeLatexPanel(w, n.Lang, n.Source)
			}
			return ast.GoToNext, true

		case *ast.CodeBlock:
			if entering {
				writeCodeBlock(w, string(n.Literal), string(n.Info), st.opts.SyntaxTheme)
			}
			return ast.GoToNext, true

		case *ast.Code:
			if entering {
				writeInlineCode(w, string(n.Literal))
			}
			return ast.GoToNext, true

		case *ast.Math:
			if entering {
				writeMath(w, string(n.Literal), false)
			}
			return ast.GoToNext, true

		case *ast.MathBlock:
			if entering {
				writeMath(w, string(n.Literal), true)
			}
			return ast.SkipChildren, true

		case *ast.Image:
			if entering {
				st.writeFigure(w, &figure{
					Src:   string(n.Destination),
					Alt:   mmarkText(n),
					Title: string(n.Title),
				})
			}
			return ast.SkipChildren, true

		case *ast.HTMLSpan:
			if fig, ok := parseImgTag(string(n.Literal)); ok {
				if entering {
					st.writeFigure(w, fig)
				}
				return ast.GoToNext, true
			}

		case *ast.Paragraph:
			if mmarkOnlyFigures(n) {
				return ast.GoToNext, true
			}

		case *ast.Heading:
			if entering && !n.IsTitleblock {
				st.meta.Headings = append(st.meta.Headings, Heading{
					Level: n.Level,
					ID:    n.HeadingID,
					Text:  mmarkText(n),
				})
			}
		}

		return fallback(w, node, entering)
	}
}

// mmarkOnlyFigures reports whether a paragraph holds nothing but images,
// which then render as bare figures instead of inside <p>.
func mmarkOnlyFigures(p *ast.Paragraph) bool {
	figures := 0
	for _, c := range p.GetChildren() {
		switch n := c.(type) {
		case *ast.Image:
			figures++
		case *ast.HTMLSpan:
			if _, ok := parseImgTag(string(n.Literal)); !ok {
				return false
			}
			figures++
		case *ast.Softbreak, *ast.Hardbreak:
		case *ast.Text:
			if len(bytes.TrimSpace(n.Literal)) != 0 {
				return false
			}
		default:
			return false
		}
	}
	return figures > 0
}

func mmarkText(n ast.Node) string {
	var b strings.Builder
	ast.WalkFunc(n, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch t := node.(type) {
		case *ast.Text:
			b.Write(t.Literal)
		case *ast.Code:
			b.Write(t.Literal)
		}
		return ast.GoToNext
	})
	return b.String()
}

func isWordByte(c byte) bool {
	return c == ':' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
