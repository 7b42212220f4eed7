package config

import "regexp"

const (
	RendererMmark    = "mmark"
	RendererGoldmark = "goldmark"

	LangZh = "zh"
	LangEn = "en"
)

var (
	// Matches a // <<n>> callout after chroma has HTML-escaped it.
	RegexCallout = regexp.MustCompile(`//\s*&lt;&lt;(\d+)&gt;&gt;`)
)
