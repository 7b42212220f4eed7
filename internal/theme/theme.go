// Package theme resolves the reader's colour scheme and builds chroma stylesheets for code blocks.
package theme

import (
	"html/template"
	"net/http"
	"slices"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
)

// GetThemeFromRequest returns the page theme from the cookie, ignoring values
// that are neither light nor dark.
func GetThemeFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(config.CookieTheme); err == nil && IsValidTheme(cookie.Value) {
		return cookie.Value
	}
	return config.AppConfig.Theme.Default
}

func IsValidTheme(theme string) bool {
	return theme == config.LightTheme || theme == config.DarkTheme
}

// Toggle flips between the light and dark page themes.
func Toggle(theme string) string {
	if theme == config.LightTheme {
		return config.DarkTheme
	}
	return config.LightTheme
}

func GetDefaultSyntaxTheme(theme string) string {
	return map[string]string{
		config.LightTheme: config.AppConfig.Theme.SyntaxHighlighting.DefaultLight,
		config.DarkTheme:  config.AppConfig.Theme.SyntaxHighlighting.DefaultDark,
	}[theme]
}

func GetSyntaxThemeFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(config.CookieSyntaxTheme); err == nil && IsValidSyntaxTheme(cookie.Value) {
		return cookie.Value
	}
	return GetDefaultSyntaxTheme(GetThemeFromRequest(r))
}

func IsValidSyntaxTheme(name string) bool {
	_, ok := styles.Registry[name]
	return ok
}

func GetSyntaxThemes() []string {
	styleNames := styles.Names()
	slices.Sort(styleNames)
	return styleNames
}

func GetFormatter() *html.Formatter {
	return html.New(
		html.WithClasses(true),
		html.TabWidth(4),
		html.WithLineNumbers(true),
		html.WrapLongLines(true),
	)
}

func GenerateSyntaxCSS(theme string) template.CSS {
	if css, ok := cache.GetSyntaxCSS(theme); ok {
		return css
	}

	var buf strings.Builder
	style := styles.Get(theme)

	bg := style.Get(chroma.Background)
	if !bg.Colour.IsSet() {
		// Themes without a text colour get one that contrasts with their background
		luminance := (0.299*float64(bg.Background.Red()) +
			0.587*float64(bg.Background.Green()) +
			0.114*float64(bg.Background.Blue())) / 255
		if luminance > 0.5 {
			buf.WriteString(".chroma { color: #181818; }\n")
		}
	}

	GetFormatter().WriteCSS(&buf, style)
	css := template.CSS(buf.String())
	cache.SetSyntaxCSS(theme, css)
	return css
}

func GetThemeIcon(theme string) string {
	if theme == config.LightTheme {
		return config.DarkThemeIcon
	}
	return config.LightThemeIcon
}
