package render

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

// DirectiveType distinguishes the three directive forms.
type DirectiveType int

const (
	ContainerDirective DirectiveType = iota // :::name ... :::
	LeafDirective                           // ::name[label]{attrs}
	TextDirective                           // :name[label]{attrs}
)

// Directive is one parsed directive. Children are owned by the engine's tree.
type Directive struct {
	Type    DirectiveType
	Name    string
	Label   string
	Title   string
	ID      string
	Classes []string
	Attrs   map[string]string
}

// Admonition is the fixed presentation of a known directive kind.
type Admonition struct {
	Color string
	Icon  string
	Label string
}

var Admonitions = map[string]Admonition{
	"note":     {Color: "#448aff", Icon: "fa-pen", Label: "Note"},
	"info":     {Color: "#06b8d4", Icon: "fa-circle-info", Label: "Info"},
	"tip":      {Color: "#01bfa5", Icon: "fa-lightbulb", Label: "Tip"},
	"question": {Color: "#64dd17", Icon: "fa-circle-question", Label: "Question"},
	"warning":  {Color: "#ff9101", Icon: "fa-triangle-exclamation", Label: "Warning"},
	"danger":   {Color: "#ff1844", Icon: "fa-bolt", Label: "Danger"},
	"example":  {Color: "#7d4dff", Icon: "fa-list", Label: "Example"},
}

// AdmonitionKinds lists the known kinds in display order.
var AdmonitionKinds = []string{"note", "info", "tip", "question", "warning", "danger", "example"}

// DirectiveRendererFunc writes the opening markup of d when entering and the
// closing markup when leaving. Leaf and text directives are only entered.
type DirectiveRendererFunc func(w io.Writer, d *Directive, entering bool)

var directiveRenderers = map[string]DirectiveRendererFunc{}

func init() {
	for kind := range Admonitions {
		directiveRenderers[kind] = renderAdmonition
	}
}

// RegisterDirective adds or replaces the renderer for a directive name.
func RegisterDirective(name string, fn DirectiveRendererFunc) {
	directiveRenderers[strings.ToLower(name)] = fn
}

func directiveRenderer(name string) DirectiveRendererFunc {
	if fn, ok := directiveRenderers[strings.ToLower(name)]; ok {
		return fn
	}
	return renderGenericDirective
}

func renderDirective(w io.Writer, d *Directive, entering bool) {
	directiveRenderer(d.Name)(w, d, entering)
}

func renderAdmonition(w io.Writer, d *Directive, entering bool) {
	kind := strings.ToLower(d.Name)
	a := Admonitions[kind]
	title := d.Title
	if title == "" {
		title = d.Label
	}
	if title == "" {
		title = a.Label
	}

	if d.Type == TextDirective {
		fmt.Fprintf(w, `<span class="admonition-inline admonition-%s" data-directive="%s" style="color:%s"><i class="fas %s"></i> %s</span>`,
			kind, kind, a.Color, a.Icon, html.EscapeString(d.Label))
		return
	}

	if !entering {
		if d.Type == ContainerDirective {
			io.WriteString(w, "</div></div>\n")
		}
		return
	}

	fmt.Fprintf(w, `<div class="admonition admonition-%s%s" data-directive="%s" style="--admonition-color:%s"%s>`,
		kind, extraClasses(d), kind, a.Color, idAttr(d))
	fmt.Fprintf(w, `<div class="admonition-title"><i class="fas %s"></i> <span>%s</span></div>`, a.Icon, html.EscapeString(title))
	if d.Type == ContainerDirective {
		io.WriteString(w, `<div class="admonition-body">`+"\n")
		return
	}
	io.WriteString(w, "</div>\n")
}

func renderGenericDirective(w io.Writer, d *Directive, entering bool) {
	name := html.EscapeString(strings.ToLower(d.Name))
	switch d.Type {
	case TextDirective:
		fmt.Fprintf(w, `<span class="directive%s" data-directive="%s"%s>%s</span>`, extraClasses(d), name, idAttr(d), html.EscapeString(d.Label))
	case LeafDirective:
		if entering {
			fmt.Fprintf(w, `<div class="directive%s" data-directive="%s"%s>%s</div>`+"\n", extraClasses(d), name, idAttr(d), html.EscapeString(d.Label))
		}
	default:
		if !entering {
			io.WriteString(w, "</div>\n")
			return
		}
		fmt.Fprintf(w, `<div class="directive%s" data-directive="%s"%s>`+"\n", extraClasses(d), name, idAttr(d))
		if d.Title != "" {
			fmt.Fprintf(w, `<div class="directive-title">%s</div>`+"\n", html.EscapeString(d.Title))
		}
	}
}

func idAttr(d *Directive) string {
	if d.ID == "" {
		return ""
	}
	return ` id="` + html.EscapeString(d.ID) + `"`
}

func extraClasses(d *Directive) string {
	if len(d.Classes) == 0 {
		return ""
	}
	return " " + html.EscapeString(strings.Join(d.Classes, " "))
}

var (
	containerOpenRe = regexp.MustCompile(`^(:{3,})[ \t]*([A-Za-z][\w-]*)[ \t]*(?:\[([^\]\n]*)\])?[ \t]*(\{[^\n]*\})?[ \t]*$`)
	leafRe          = regexp.MustCompile(`^::([A-Za-z][\w-]*)(?:\[([^\]\n]*)\])?[ \t]*(\{[^\n]*\})?[ \t]*$`)
	textRe          = regexp.MustCompile(`^:([A-Za-z][\w-]*)\[([^\]\n]*)\](\{[^}\n]*\})?`)
)

// trimIndent drops up to three leading spaces and the line ending.
func trimIndent(line []byte) []byte {
	line = bytes.TrimRight(line, "\r\n")
	for i := 0; i < 3 && len(line) > 0 && line[0] == ' '; i++ {
		line = line[1:]
	}
	return line
}

// parseContainerOpen parses a ":::name[label]{attrs}" line and returns the
// directive and the length of its colon fence.
func parseContainerOpen(line []byte) (*Directive, int, bool) {
	m := containerOpenRe.FindSubmatch(trimIndent(line))
	if m == nil {
		return nil, 0, false
	}
	d := newDirective(ContainerDirective, string(m[2]), string(m[3]), string(m[4]))
	return d, len(m[1]), true
}

func parseLeaf(line []byte) (*Directive, bool) {
	m := leafRe.FindSubmatch(trimIndent(line))
	if m == nil {
		return nil, false
	}
	return newDirective(LeafDirective, string(m[1]), string(m[2]), string(m[3])), true
}

// parseText matches a text directive at the start of data and returns the
// number of bytes it spans.
func parseText(data []byte) (*Directive, int, bool) {
	m := textRe.FindSubmatch(data)
	if m == nil {
		return nil, 0, false
	}
	return newDirective(TextDirective, string(m[1]), string(m[2]), string(m[3])), len(m[0]), true
}

func newDirective(typ DirectiveType, name, label, attrs string) *Directive {
	d := &Directive{
		Type:  typ,
		Name:  strings.ToLower(name),
		Label: label,
		Attrs: map[string]string{},
	}
	parseAttrs(d, attrs)
	if t, ok := d.Attrs["title"]; ok {
		d.Title = t
	} else if typ == ContainerDirective {
		d.Title = label
	}
	return d
}

// parseAttrs reads a {key="v" key='v' key=v #id .class} block into d.
func parseAttrs(d *Directive, s string) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")

	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}

		switch s[i] {
		case '#', '.':
			sigil := s[i]
			j := i + 1
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != '#' && s[j] != '.' {
				j++
			}
			if v := s[i+1 : j]; v != "" {
				if sigil == '#' {
					d.ID = v
				} else {
					d.Classes = append(d.Classes, v)
				}
			}
			i = j
			continue
		}

		j := i
		for j < len(s) && s[j] != '=' && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		key := s[i:j]
		if j >= len(s) || s[j] != '=' {
			if key != "" {
				d.Attrs[key] = ""
			}
			i = j
			continue
		}

		j++
		var val string
		if j < len(s) && (s[j] == '"' || s[j] == '\'') {
			quote := s[j]
			k := strings.IndexByte(s[j+1:], quote)
			if k < 0 {
				val = s[j+1:]
				j = len(s)
			} else {
				val = s[j+1 : j+1+k]
				j = j + 2 + k
			}
		} else {
			k := j
			for k < len(s) && s[k] != ' ' && s[k] != '\t' {
				k++
			}
			val = s[j:k]
			j = k
		}

		switch key {
		case "id":
			d.ID = val
		case "class":
			d.Classes = append(d.Classes, strings.Fields(val)...)
		default:
			d.Attrs[key] = val
		}
		i = j
	}
}

// fenceTracker follows the lines of a container body and reports the line
// that closes it. Fenced code is skipped and nested containers are counted.
type fenceTracker struct {
	colons  int
	depth   int
	code    byte
	codeLen int
}

func runLength(b []byte, c byte) int {
	n := 0
	for n < len(b) && b[n] == c {
		n++
	}
	return n
}

func (f *fenceTracker) closes(line []byte) bool {
	t := trimIndent(line)

	if f.code != 0 {
		if n := runLength(t, f.code); n >= f.codeLen && len(bytes.TrimSpace(t[n:])) == 0 {
			f.code = 0
		}
		return false
	}

	for _, c := range []byte{'`', '~'} {
		if n := runLength(t, c); n >= 3 {
			f.code, f.codeLen = c, n
			return false
		}
	}

	n := runLength(t, ':')
	if n < 3 {
		return false
	}
	if len(bytes.TrimSpace(t[n:])) == 0 {
		if f.depth > 0 {
			f.depth--
			return false
		}
		return n >= f.colons
	}
	if _, _, ok := parseContainerOpen(t); ok {
		f.depth++
	}
	return false
}

// splitContainer splits data, which starts with a container opener, into the
// directive, its body and the bytes consumed including the closing fence.
// A container without a closing fence runs to the end of data.
func splitContainer(data []byte) (*Directive, []byte, int, bool) {
	eol := lineEnd(data, 0)
	d, colons, ok := parseContainerOpen(data[:eol])
	if !ok {
		return nil, nil, 0, false
	}

	f := &fenceTracker{colons: colons}
	start := eol
	for pos := start; pos < len(data); {
		next := lineEnd(data, pos)
		if f.closes(data[pos:next]) {
			return d, data[start:pos], next, true
		}
		pos = next
	}
	return d, data[start:], len(data), true
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(data []byte, pos int) int {
	if i := bytes.IndexByte(data[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(data)
}

// padBlockOpeners inserts a blank line before directive and latex openers
// that directly follow paragraph text, so block parsers see them at a block start.
func padBlockOpeners(md []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(md) + 64)

	var code byte
	var codeLen int
	inLatex := false
	prevBlank := true

	for pos := 0; pos < len(md); {
		next := lineEnd(md, pos)
		line := md[pos:next]
		t := trimIndent(line)
		blank := len(bytes.TrimSpace(line)) == 0

		switch {
		case code != 0:
			if n := runLength(t, code); n >= codeLen && len(bytes.TrimSpace(t[n:])) == 0 {
				code = 0
			}
		case inLatex:
			if bytes.Contains(line, []byte("</latex>")) {
				inLatex = false
			}
		case runLength(t, '`') >= 3:
			code, codeLen = '`', runLength(t, '`')
		case runLength(t, '~') >= 3:
			code, codeLen = '~', runLength(t, '~')
		default:
			opener := false
			if latexOpenRe.Match(t) {
				opener = true
				inLatex = !bytes.Contains(t, []byte("</latex>"))
			} else if _, _, ok := parseContainerOpen(t); ok {
				opener = true
			} else if _, ok := parseLeaf(t); ok {
				opener = true
			}
			if opener && !prevBlank {
				out.WriteByte('\n')
			}
		}

		out.Write(line)
		prevBlank = blank
		pos = next
	}
	return out.Bytes()
}
