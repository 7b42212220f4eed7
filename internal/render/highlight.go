package render

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/theme"
)

// HighlightCode formats code with chroma. Callout markers such as // <<1>>
// become numbered badges.
func HighlightCode(code, language, highlightTheme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>"
	}

	var buf strings.Builder
	if err := theme.GetFormatter().Format(&buf, styles.Get(highlightTheme), iterator); err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>"
	}

	return config.RegexCallout.ReplaceAllString(buf.String(), `<span class="callout">$1</span>`)
}

// codeLanguage returns the first word of a fence info string.
func codeLanguage(info string) string {
	if f := strings.Fields(info); len(f) > 0 {
		return f[0]
	}
	return ""
}

func writeCodeBlock(w io.Writer, code, info, highlightTheme string) {
	lang := codeLanguage(info)
	label := strings.ToUpper(lang)
	if label == "" {
		label = "TEXT"
	}
	fmt.Fprintf(w, `<div class="code-block"><div class="code-block-header"><span class="code-lang"><i class="fas fa-terminal"></i> %s</span>`, html.EscapeString(label))
	io.WriteString(w, `<button type="button" class="code-copy" data-copy-code title="Copy code"><i class="far fa-copy"></i> <span>Copy</span></button></div>`)
	fmt.Fprintf(w, `<div class="highlight">%s</div></div>`+"\n", HighlightCode(code, lang, highlightTheme))
}

func writeInlineCode(w io.Writer, code string) {
	fmt.Fprintf(w, `<code class="inline-code">%s</code>`, html.EscapeString(code))
}

// writeMath emits KaTeX-ready delimiters around escaped TeX.
func writeMath(w io.Writer, tex string, display bool) {
	if display {
		fmt.Fprintf(w, `<div class="math display">\[%s\]</div>`+"\n", html.EscapeString(strings.TrimSpace(tex)))
		return
	}
	fmt.Fprintf(w, `<span class="math inline">\(%s\)</span>`, html.EscapeString(tex))
}
