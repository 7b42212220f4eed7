package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/debemdeboas/folio/internal/util"
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	gmutil "github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"
)

func renderGoldmark(src []byte, st *renderState) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.NewAlertCallouts(
				alertcallouts.UseGFMStrictIcons(),
				alertcallouts.WithFolding(true),
			),
			extension.GFM,
			&folioExtension{st: st},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
		),
	)

	pctx := parser.NewContext(parser.WithIDs(newSlugIDs()))
	doc := md.Parser().Parse(text.NewReader(src), parser.WithContext(pctx))

	_ = gast.Walk(doc, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if h, ok := n.(*gast.Heading); ok && entering {
			heading := Heading{Level: h.Level, Text: goldmarkText(h, src)}
			if v, ok := h.AttributeString("id"); ok {
				if id, ok := v.([]byte); ok {
					heading.ID = string(id)
				}
			}
			st.meta.Headings = append(st.meta.Headings, heading)
		}
		return gast.WalkContinue, nil
	})

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, src, doc); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

type folioExtension struct {
	st *renderState
}

func (e *folioExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(
			gmutil.Prioritized(directiveBlockParser{}, 250),
			gmutil.Prioritized(mathBlockParser{}, 550),
			gmutil.Prioritized(latexBlockParser{}, 850),
		),
		parser.WithInlineParsers(
			gmutil.Prioritized(textDirectiveParser{}, 150),
			gmutil.Prioritized(inlineMathParser{}, 150),
		),
	)
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		gmutil.Prioritized(&goldmarkRenderer{st: e.st}, 100),
	))
}

// slugIDs generates heading ids with util.Slugify so non-Latin headings keep their text.
type slugIDs struct {
	seen map[string]int
}

func newSlugIDs() *slugIDs {
	return &slugIDs{seen: map[string]int{}}
}

func (s *slugIDs) Generate(value []byte, kind gast.NodeKind) []byte {
	base := util.Slugify(string(value))
	if base == "" {
		base = "section"
	}
	id := base
	for i := 1; s.seen[id] > 0; i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	s.seen[id]++
	return []byte(id)
}

func (s *slugIDs) Put(value []byte) {
	s.seen[string(value)]++
}

// ----------------------
// AST nodes
// ----------------------

var (
	KindDirective     = gast.NewNodeKind("Directive")
	KindTextDirective = gast.NewNodeKind("TextDirective")
	KindLatex         = gast.NewNodeKind("Latex")
	KindMathBlock     = gast.NewNodeKind("MathBlock")
	KindInlineMath    = gast.NewNodeKind("InlineMath")
)

type directiveNode struct {
	gast.BaseBlock
	D     *Directive
	fence fenceTracker
}

func (n *directiveNode) Kind() gast.NodeKind { return KindDirective }

func (n *directiveNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Name": n.D.Name, "Title": n.D.Title}, nil)
}

type textDirectiveNode struct {
	gast.BaseInline
	D *Directive
}

func (n *textDirectiveNode) Kind() gast.NodeKind { return KindTextDirective }

func (n *textDirectiveNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Name": n.D.Name, "Label": n.D.Label}, nil)
}

type latexNode struct {
	gast.BaseBlock
	Lang   string
	Source string
	buf    bytes.Buffer
	closed bool
}

func (n *latexNode) Kind() gast.NodeKind { return KindLatex }

func (n *latexNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Lang": n.Lang}, nil)
}

type mathBlockNode struct {
	gast.BaseBlock
	Source string
}

func (n *mathBlockNode) Kind() gast.NodeKind { return KindMathBlock }

func (n *mathBlockNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, nil, nil)
}

type inlineMathNode struct {
	gast.BaseInline
	Source  string
	Display bool
}

func (n *inlineMathNode) Kind() gast.NodeKind { return KindInlineMath }

func (n *inlineMathNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, nil, nil)
}

// ----------------------
// Block parsers
// ----------------------

// advanceToNewline consumes the rest of the current line except its newline.
func advanceToNewline(reader text.Reader, line []byte, segment text.Segment) {
	newline := 0
	if len(line) > 0 && line[len(line)-1] == '\n' {
		newline = 1
	}
	reader.Advance(segment.Stop - segment.Start - newline + segment.Padding)
}

type directiveBlockParser struct{}

var _ parser.BlockParser = directiveBlockParser{}

func (directiveBlockParser) Trigger() []byte {
	return []byte{':'}
}

func (directiveBlockParser) Open(parent gast.Node, reader text.Reader, pc parser.Context) (gast.Node, parser.State) {
	line, segment := reader.PeekLine()
	if d, colons, ok := parseContainerOpen(line); ok {
		advanceToNewline(reader, line, segment)
		return &directiveNode{D: d, fence: fenceTracker{colons: colons}}, parser.HasChildren
	}
	if d, ok := parseLeaf(line); ok {
		return &directiveNode{D: d}, parser.NoChildren
	}
	return nil, parser.NoChildren
}

func (directiveBlockParser) Continue(node gast.Node, reader text.Reader, pc parser.Context) parser.State {
	n := node.(*directiveNode)
	if n.D.Type != ContainerDirective {
		return parser.Close
	}
	line, segment := reader.PeekLine()
	if n.fence.closes(line) {
		advanceToNewline(reader, line, segment)
		return parser.Close
	}
	return parser.Continue | parser.HasChildren
}

func (directiveBlockParser) Close(node gast.Node, reader text.Reader, pc parser.Context) {}

func (directiveBlockParser) CanInterruptParagraph() bool {
	return true
}

func (directiveBlockParser) CanAcceptIndentedLine() bool {
	return false
}

type latexBlockParser struct{}

var _ parser.BlockParser = latexBlockParser{}

func (latexBlockParser) Trigger() []byte {
	return []byte{'<'}
}

func (latexBlockParser) Open(parent gast.Node, reader text.Reader, pc parser.Context) (gast.Node, parser.State) {
	line, _ := reader.PeekLine()
	t := trimIndent(line)
	m := latexOpenRe.FindSubmatch(t)
	if m == nil {
		return nil, parser.NoChildren
	}

	n := &latexNode{Lang: string(m[1])}
	rest := t[len(m[0]):]
	if i := bytes.Index(rest, latexClose); i >= 0 {
		n.buf.Write(rest[:i])
		n.closed = true
	} else if len(bytes.TrimSpace(rest)) > 0 {
		n.buf.Write(rest)
		n.buf.WriteByte('\n')
	}
	return n, parser.NoChildren
}

func (latexBlockParser) Continue(node gast.Node, reader text.Reader, pc parser.Context) parser.State {
	n := node.(*latexNode)
	if n.closed {
		return parser.Close
	}

	line, segment := reader.PeekLine()
	if i := bytes.Index(line, latexClose); i >= 0 {
		n.buf.Write(line[:i])
		n.closed = true
		advanceToNewline(reader, line, segment)
		return parser.Close
	}

	n.buf.Write(line)
	return parser.Continue | parser.NoChildren
}

func (latexBlockParser) Close(node gast.Node, reader text.Reader, pc parser.Context) {
	n := node.(*latexNode)
	n.Source = cleanLatex(n.buf.Bytes())
	n.buf.Reset()
}

func (latexBlockParser) CanInterruptParagraph() bool {
	return true
}

func (latexBlockParser) CanAcceptIndentedLine() bool {
	return false
}

type mathBlockParser struct{}

var _ parser.BlockParser = mathBlockParser{}

func (mathBlockParser) Trigger() []byte {
	return []byte{'$'}
}

func (mathBlockParser) Open(parent gast.Node, reader text.Reader, pc parser.Context) (gast.Node, parser.State) {
	line, _ := reader.PeekLine()
	if strings.TrimSpace(string(line)) != "$$" {
		return nil, parser.NoChildren
	}
	return &mathBlockNode{}, parser.NoChildren
}

func (mathBlockParser) Continue(node gast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, segment := reader.PeekLine()
	if strings.TrimSpace(string(line)) == "$$" {
		advanceToNewline(reader, line, segment)
		return parser.Close
	}

	node.(*mathBlockNode).Source += string(line)
	return parser.Continue | parser.NoChildren
}

func (mathBlockParser) Close(node gast.Node, reader text.Reader, pc parser.Context) {}

func (mathBlockParser) CanInterruptParagraph() bool {
	return true
}

func (mathBlockParser) CanAcceptIndentedLine() bool {
	return false
}

// ----------------------
// Inline parsers
// ----------------------

func precededByWord(block text.Reader) bool {
	prev := block.PrecendingCharacter()
	return prev >= utf8.RuneSelf || isWordByte(byte(prev))
}

type textDirectiveParser struct{}

var _ parser.InlineParser = textDirectiveParser{}

func (textDirectiveParser) Trigger() []byte {
	return []byte{':'}
}

func (textDirectiveParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	if precededByWord(block) {
		return nil
	}
	line, _ := block.PeekLine()
	d, n, ok := parseText(line)
	if !ok {
		return nil
	}
	block.Advance(n)
	return &textDirectiveNode{D: d}
}

type inlineMathParser struct{}

var _ parser.InlineParser = inlineMathParser{}

func (inlineMathParser) Trigger() []byte {
	return []byte{'$'}
}

func (inlineMathParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	line, _ := block.PeekLine()

	if bytes.HasPrefix(line, []byte("$$")) {
		end := bytes.Index(line[2:], []byte("$$"))
		if end <= 0 {
			return nil
		}
		block.Advance(end + 4)
		return &inlineMathNode{Source: string(line[2 : 2+end]), Display: true}
	}

	for j := 1; j < len(line) && line[j] != '\n'; j++ {
		if line[j] != '$' || line[j-1] == '\\' {
			continue
		}
		inner := line[1:j]
		// "$5 and $10" is prose, not math
		if len(inner) == 0 || inner[0] == ' ' || inner[len(inner)-1] == ' ' {
			return nil
		}
		block.Advance(j + 1)
		return &inlineMathNode{Source: string(inner)}
	}
	return nil
}

// ----------------------
// Renderer
// ----------------------

type goldmarkRenderer struct {
	st *renderState
}

func (r *goldmarkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDirective, r.renderDirectiveNode)
	reg.Register(KindTextDirective, r.renderTextDirective)
	reg.Register(KindLatex, r.renderLatex)
	reg.Register(KindMathBlock, r.renderMathBlock)
	reg.Register(KindInlineMath, r.renderInlineMath)
	reg.Register(gast.KindFencedCodeBlock, r.renderCodeBlock)
	reg.Register(gast.KindCodeBlock, r.renderCodeBlock)
	reg.Register(gast.KindCodeSpan, r.renderCodeSpan)
	reg.Register(gast.KindImage, r.renderImage)
	reg.Register(gast.KindRawHTML, r.renderRawHTML)
	reg.Register(gast.KindHTMLBlock, r.renderHTMLBlock)
	reg.Register(gast.KindParagraph, r.renderParagraph)
}

func (r *goldmarkRenderer) renderDirectiveNode(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	n := node.(*directiveNode)
	if n.D.Type != ContainerDirective {
		if entering {
			renderDirective(w, n.D, true)
		}
		return gast.WalkSkipChildren, nil
	}
	renderDirective(w, n.D, entering)
	return gast.WalkContinue, nil
}

func (r *goldmarkRenderer) renderTextDirective(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		renderDirective(w, node.(*textDirectiveNode).D, true)
	}
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderLatex(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		n := node.(*latexNode)
		r.st.writeLatexPanel(w, n.Lang, n.Source)
	}
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderMathBlock(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		writeMath(w, node.(*mathBlockNode).Source, true)
	}
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderInlineMath(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkSkipChildren, nil
	}
	n := node.(*inlineMathNode)
	if n.Display {
		fmt.Fprintf(w, `<span class="math display">\[%s\]</span>`, html.EscapeString(strings.TrimSpace(n.Source)))
	} else {
		writeMath(w, n.Source, false)
	}
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderCodeBlock(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkSkipChildren, nil
	}

	var info string
	if fc, ok := node.(*gast.FencedCodeBlock); ok && fc.Info != nil {
		info = string(fc.Info.Segment.Value(source))
	}

	var code strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	writeCodeBlock(w, code.String(), info, r.st.opts.SyntaxTheme)
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderCodeSpan(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkSkipChildren, nil
	}

	var code bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *gast.Text:
			v := t.Segment.Value(source)
			if bytes.HasSuffix(v, []byte("\n")) {
				code.Write(v[:len(v)-1])
				code.WriteByte(' ')
			} else {
				code.Write(v)
			}
		case *gast.String:
			code.Write(t.Value)
		}
	}

	writeInlineCode(w, code.String())
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderImage(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		n := node.(*gast.Image)
		r.st.writeFigure(w, &figure{
			Src:   string(n.Destination),
			Alt:   goldmarkText(n, source),
			Title: string(n.Title),
		})
	}
	return gast.WalkSkipChildren, nil
}

func rawHTMLValue(n *gast.RawHTML, source []byte) []byte {
	var b bytes.Buffer
	for i := 0; i < n.Segments.Len(); i++ {
		seg := n.Segments.At(i)
		b.Write(seg.Value(source))
	}
	return b.Bytes()
}

func (r *goldmarkRenderer) renderRawHTML(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkSkipChildren, nil
	}
	raw := rawHTMLValue(node.(*gast.RawHTML), source)
	if fig, ok := parseImgTag(string(raw)); ok {
		r.st.writeFigure(w, fig)
		return gast.WalkSkipChildren, nil
	}
	_, _ = w.Write(raw)
	return gast.WalkSkipChildren, nil
}

func (r *goldmarkRenderer) renderHTMLBlock(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	n := node.(*gast.HTMLBlock)
	if !entering {
		if n.HasClosure() {
			_, _ = w.Write(n.ClosureLine.Value(source))
		}
		return gast.WalkContinue, nil
	}

	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}

	if fig, ok := parseImgTag(b.String()); ok && !n.HasClosure() {
		r.st.writeFigure(w, fig)
		_ = w.WriteByte('\n')
		return gast.WalkContinue, nil
	}
	_, _ = w.Write(b.Bytes())
	return gast.WalkContinue, nil
}

func (r *goldmarkRenderer) renderParagraph(w gmutil.BufWriter, source []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if goldmarkOnlyFigures(node, source) {
		if !entering {
			_ = w.WriteByte('\n')
		}
		return gast.WalkContinue, nil
	}
	if entering {
		if node.Attributes() != nil {
			_, _ = w.WriteString("<p")
			gmhtml.RenderAttributes(w, node, gmhtml.ParagraphAttributeFilter)
			_ = w.WriteByte('>')
		} else {
			_, _ = w.WriteString("<p>")
		}
	} else {
		_, _ = w.WriteString("</p>\n")
	}
	return gast.WalkContinue, nil
}

func goldmarkOnlyFigures(p gast.Node, source []byte) bool {
	figures := 0
	for c := p.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *gast.Image:
			figures++
		case *gast.RawHTML:
			if _, ok := parseImgTag(string(rawHTMLValue(n, source))); !ok {
				return false
			}
			figures++
		case *gast.Text:
			if len(bytes.TrimSpace(n.Segment.Value(source))) != 0 {
				return false
			}
		default:
			return false
		}
	}
	return figures > 0
}

func goldmarkText(n gast.Node, source []byte) string {
	var b strings.Builder
	_ = gast.Walk(n, func(c gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *gast.String:
			b.Write(t.Value)
		}
		return gast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
