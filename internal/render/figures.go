package render

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/debemdeboas/folio/internal/config"
)

var figureRefRe = regexp.MustCompile(`@(fig-[\w-]+)`)

// RewriteFigureRefs turns every @fig-<id> citation into a #fig-<id> anchor.
// No other @ text is changed, so applying it twice is the same as once.
func RewriteFigureRefs(s string) string {
	return figureRefRe.ReplaceAllString(s, "#$1")
}

var (
	imgTagRe  = regexp.MustCompile(`(?is)^\s*<img\b([^>]*?)/?>\s*$`)
	htmlAttRe = regexp.MustCompile(`([A-Za-z_:][\w:.-]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>/]+))`)
)

type figure struct {
	ID    string
	Src   string
	Alt   string
	Title string
	// Remaining attributes of a raw <img>, in source order.
	Extra [][2]string
}

// parseImgTag reads a raw <img ...> tag. Attribute values stay HTML-encoded.
func parseImgTag(tag string) (*figure, bool) {
	m := imgTagRe.FindStringSubmatch(tag)
	if m == nil {
		return nil, false
	}
	fig := &figure{}
	for _, a := range htmlAttRe.FindAllStringSubmatch(m[1], -1) {
		val := a[2] + a[3] + a[4]
		switch strings.ToLower(a[1]) {
		case "id":
			fig.ID = html.UnescapeString(val)
		case "src":
			fig.Src = html.UnescapeString(val)
		case "alt":
			fig.Alt = html.UnescapeString(val)
		case "title":
			fig.Title = html.UnescapeString(val)
		default:
			fig.Extra = append(fig.Extra, [2]string{a[1], html.UnescapeString(val)})
		}
	}
	return fig, true
}

// CaptionPrefix returns the numbered caption label for lang.
func CaptionPrefix(lang string, n int) string {
	if lang == config.LangZh {
		return fmt.Sprintf("圖 %d：", n)
	}
	return fmt.Sprintf("Figure %d: ", n)
}

// writeFigure renders an image as a numbered figure. Every image advances
// the counter; only images with alt text get a caption.
func (st *renderState) writeFigure(w io.Writer, fig *figure) {
	st.figures++
	if fig.ID != "" {
		st.meta.Figures = append(st.meta.Figures, fig.ID)
	}

	io.WriteString(w, `<figure class="figure"`)
	if fig.ID != "" {
		fmt.Fprintf(w, ` id="%s"`, html.EscapeString(fig.ID))
	}
	fmt.Fprintf(w, ` data-figure="%d"><img src="%s" alt="%s"`, st.figures, html.EscapeString(fig.Src), html.EscapeString(fig.Alt))
	if fig.Title != "" {
		fmt.Fprintf(w, ` title="%s"`, html.EscapeString(fig.Title))
	}
	for _, kv := range fig.Extra {
		fmt.Fprintf(w, ` %s="%s"`, html.EscapeString(kv[0]), html.EscapeString(kv[1]))
	}
	io.WriteString(w, ` loading="lazy" />`)
	if fig.Alt != "" {
		fmt.Fprintf(w, `<figcaption>%s%s</figcaption>`, html.EscapeString(CaptionPrefix(st.opts.CaptionLang, st.figures)), html.EscapeString(fig.Alt))
	}
	io.WriteString(w, "</figure>")
}
