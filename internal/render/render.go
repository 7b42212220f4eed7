// Package render turns post Markdown into HTML: directives, figures, math,
// latex compile panels and highlighted code, on either the mmark or goldmark engine.
package render

import (
	"bytes"
	"html"
	"sync"

	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/util"
	"github.com/rs/zerolog"
)

var renderLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

type Options struct {
	Engine      string
	SyntaxTheme string
	CaptionLang string
	// Default language of latex blocks without a lang attribute.
	LatexLang string
}

// DefaultOptions reads the engine and languages from the loaded configuration.
func DefaultOptions(highlightTheme string) Options {
	return Options{
		Engine:      config.AppConfig.Render.Engine,
		SyntaxTheme: highlightTheme,
		CaptionLang: config.AppConfig.Render.CaptionLang,
		LatexLang:   config.AppConfig.Latex.DefaultLang,
	}
}

type Heading struct {
	Level int
	ID    string
	Text  string
}

// Meta is what a render learned about the document besides its HTML.
type Meta struct {
	// Front matter, nil when the document has none.
	Info     *util.ExtendedTitleData
	Title    string
	Headings []Heading
	// Ids of the figures that carry one, in document order.
	Figures []string
	Latex   []LatexBlock
}

func (m *Meta) LatexCount() int {
	return len(m.Latex)
}

type renderState struct {
	opts    Options
	figures int
	meta    *Meta
}

// RenderMarkdown renders md with the configured engine.
func RenderMarkdown(md []byte, highlightTheme string) ([]byte, *Meta) {
	return RenderWith(md, DefaultOptions(highlightTheme))
}

func RenderWith(md []byte, opts Options) ([]byte, *Meta) {
	if opts.CaptionLang == "" {
		opts.CaptionLang = config.LangEn
	}
	if opts.LatexLang == "" {
		opts.LatexLang = config.LangZh
	}

	st := &renderState{opts: opts, meta: &Meta{}}

	if info, err := util.GetFrontMatter(md); err == nil {
		st.meta.Info = info
		st.meta.Title = info.Title
		md = util.StripFrontMatter(md)
	}

	md = []byte(RewriteFigureRefs(string(md)))

	var body []byte
	switch opts.Engine {
	case config.RendererGoldmark:
		var err error
		body, err = renderGoldmark(md, st)
		if err != nil {
			renderLogger.Error().Err(err).Msg("goldmark conversion failed")
			body = []byte("<pre>" + html.EscapeString(string(md)) + "</pre>")
		}
	default:
		body = renderMmark(md, st)
	}

	var out bytes.Buffer
	out.Grow(len(body) + 64)
	out.WriteString(`<article class="prose reveal-stagger">` + "\n")
	out.Write(body)
	out.WriteString("</article>\n")
	return out.Bytes(), st.meta
}

// Mutex to protect the check-render-set operation in RenderMarkdownCached
var renderCacheMutex sync.Mutex

func RenderMarkdownCached(md []byte, contentHash, highlightTheme string) ([]byte, *Meta) {
	if contentHash == "" {
		renderLogger.Warn().Msg("Content hash is empty, skipping cache check")
		return RenderMarkdown(md, highlightTheme)
	}

	key := cache.RenderKey{
		ContentHash: contentHash,
		SyntaxTheme: highlightTheme,
		Engine:      config.AppConfig.Render.Engine,
	}

	if cached, found := cache.GetRenderedMarkdown(key); found {
		renderLogger.Debug().Str("contentHash", contentHash).Str("highlightTheme", highlightTheme).Msg("Cache hit for rendered markdown")
		meta, _ := cached.Extra.(*Meta)
		return cached.HTML, meta
	}

	renderLogger.Debug().Str("contentHash", contentHash).Str("highlightTheme", highlightTheme).Msg("Cache miss for rendered markdown")
	renderCacheMutex.Lock()
	defer renderCacheMutex.Unlock()

	// Another caller may have filled it while we waited
	if cached, found := cache.GetRenderedMarkdown(key); found {
		meta, _ := cached.Extra.(*Meta)
		return cached.HTML, meta
	}

	out, meta := RenderMarkdown(md, highlightTheme)
	cache.SetRenderedMarkdown(key, out, meta)

	return out, meta
}

// WarmCache pre-renders markdown content asynchronously to warm the cache
func WarmCache(md []byte, contentHash, highlightTheme string) {
	renderLogger.Debug().Str("contentHash", contentHash).Str("highlightTheme", highlightTheme).Msg("Starting cache warming")
	go func() {
		RenderMarkdownCached(md, contentHash, highlightTheme)
		renderLogger.Debug().Str("contentHash", contentHash).Str("highlightTheme", highlightTheme).Msg("Cache warming completed")
	}()
}
