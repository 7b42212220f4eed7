package cache

// RenderedContent represents cached rendered markdown with HTML and extra data.
type RenderedContent struct {
	HTML  []byte
	Extra any
}

// RenderKey identifies one rendering of one document.
type RenderKey struct {
	ContentHash string
	SyntaxTheme string
	Engine      string
}

var renderedMarkdownCache = NewCache[RenderKey, *RenderedContent]()

func GetRenderedMarkdown(key RenderKey) (*RenderedContent, bool) {
	return renderedMarkdownCache.Get(key)
}

func SetRenderedMarkdown(key RenderKey, html []byte, extra any) {
	renderedMarkdownCache.Set(key, &RenderedContent{
		HTML:  html,
		Extra: extra,
	})
}

func ClearRenderedMarkdownCache() {
	renderedMarkdownCache.Clear()
}
