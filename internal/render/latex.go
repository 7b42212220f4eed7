package render

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/debemdeboas/folio/internal/config"
)

// LatexBlock is one <latex> block found in a document.
type LatexBlock struct {
	Key    string
	Lang   string
	Source string
}

var (
	latexOpenRe = regexp.MustCompile(`^<latex(?:\s+lang\s*=\s*["']?([A-Za-z-]*)["']?)?\s*>`)
	latexClose  = []byte("</latex>")
)

var latexEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// UnescapeLatex decodes the entities an editor may have written into a latex block.
func UnescapeLatex(s string) string {
	return latexEntities.Replace(s)
}

// splitLatex splits data, which starts with a <latex> tag, into the block and
// the bytes consumed through the end of the closing tag's line. An unclosed
// block runs to the end of data.
func splitLatex(data []byte) (lang string, source string, consumed int, ok bool) {
	line := trimIndent(data[:lineEnd(data, 0)])
	m := latexOpenRe.FindSubmatch(line)
	if m == nil {
		return "", "", 0, false
	}
	lang = string(m[1])

	start := bytes.Index(data, m[0]) + len(m[0])
	rest := data[start:]
	end := bytes.Index(rest, latexClose)
	if end < 0 {
		return lang, cleanLatex(rest), len(data), true
	}
	return lang, cleanLatex(rest[:end]), lineEnd(data, start+end), true
}

func cleanLatex(b []byte) string {
	s := strings.TrimPrefix(string(b), "\r")
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimRight(s, " \t\r\n")
	return UnescapeLatex(s)
}

// writeLatexPanel renders the compile panel for one block. The panel compiles
// through the latex handlers and receives its state over the event stream.
func (st *renderState) writeLatexPanel(w io.Writer, lang, source string) {
	if lang == "" {
		lang = st.opts.LatexLang
	}
	key := fmt.Sprintf("latex-%d", len(st.meta.Latex)+1)
	st.meta.Latex = append(st.meta.Latex, LatexBlock{Key: key, Lang: lang, Source: source})

	fmt.Fprintf(w, `<div class="latex-panel" id="%s" data-panel="%s" data-lang="%s">`, key, key, html.EscapeString(lang))
	fmt.Fprintf(w, `<form class="latex-form" hx-post="/latex/compile" hx-target="#%s-state" hx-swap="innerHTML">`, key)
	fmt.Fprintf(w, `<input type="hidden" name="panel" value="%s" />`, key)
	io.WriteString(w, `<div class="latex-toolbar"><select name="lang" class="latex-lang">`)
	for _, l := range []string{config.LangZh, config.LangEn} {
		sel := ""
		if l == lang {
			sel = " selected"
		}
		fmt.Fprintf(w, `<option value="%s"%s>%s</option>`, l, sel, strings.ToUpper(l))
	}
	io.WriteString(w, `</select><button type="submit" class="latex-compile"><i class="fas fa-play"></i> Compile</button></div>`)
	fmt.Fprintf(w, `<textarea name="source" class="latex-source" spellcheck="false" rows="12">%s</textarea>`, html.EscapeString(source))
	io.WriteString(w, `</form>`)
	fmt.Fprintf(w, `<div class="latex-state" id="%s-state" data-status="idle"></div>`, key)
	io.WriteString(w, "</div>\n")
}
