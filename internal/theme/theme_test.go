package theme

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
)

func TestGenerateSyntaxCSS(t *testing.T) {
	for _, name := range []string{"monokai", "github", "gruvbox", "nonexistent-theme-12345", ""} {
		t.Run(name, func(t *testing.T) {
			css1 := GenerateSyntaxCSS(name)
			if !strings.Contains(string(css1), ".chroma") {
				t.Errorf("Expected CSS to contain '.chroma' class")
			}

			cached, found := cache.GetSyntaxCSS(name)
			if !found {
				t.Fatal("Expected CSS to be cached")
			}
			if cached != css1 {
				t.Error("Cached CSS does not match generated CSS")
			}

			if css2 := GenerateSyntaxCSS(name); css1 != css2 {
				t.Error("Expected second call to return identical CSS from cache")
			}
		})
	}
}

func TestGetSyntaxThemes(t *testing.T) {
	themes := GetSyntaxThemes()
	if !slices.IsSorted(themes) {
		t.Error("Expected themes to be sorted")
	}
	for _, name := range []string{"github", "monokai", "gruvbox", config.DefaultLightSyntaxTheme} {
		if !slices.Contains(themes, name) {
			t.Errorf("Expected theme %s to be available", name)
		}
	}
}

func TestGetThemeFromRequest(t *testing.T) {
	testCases := []struct {
		name     string
		cookie   string
		expected string
	}{
		{"No cookie uses default", "", config.AppConfig.Theme.Default},
		{"Light cookie", config.LightTheme, config.LightTheme},
		{"Dark cookie", config.DarkTheme, config.DarkTheme},
		{"Unknown cookie falls back", "solarized", config.AppConfig.Theme.Default},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: config.CookieTheme, Value: tc.cookie})
			}
			if got := GetThemeFromRequest(req); got != tc.expected {
				t.Errorf("Expected theme %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestGetSyntaxThemeFromRequest(t *testing.T) {
	testCases := []struct {
		name         string
		themeCookie  string
		syntaxCookie string
		expected     string
	}{
		{"No cookies", "", "", GetDefaultSyntaxTheme(config.AppConfig.Theme.Default)},
		{"Theme cookie only", config.LightTheme, "", GetDefaultSyntaxTheme(config.LightTheme)},
		{"Syntax cookie wins", config.DarkTheme, "monokai", "monokai"},
		{"Unknown syntax cookie ignored", config.LightTheme, "no-such-style", GetDefaultSyntaxTheme(config.LightTheme)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.themeCookie != "" {
				req.AddCookie(&http.Cookie{Name: config.CookieTheme, Value: tc.themeCookie})
			}
			if tc.syntaxCookie != "" {
				req.AddCookie(&http.Cookie{Name: config.CookieSyntaxTheme, Value: tc.syntaxCookie})
			}
			if got := GetSyntaxThemeFromRequest(req); got != tc.expected {
				t.Errorf("Expected syntax theme %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestGetDefaultSyntaxTheme(t *testing.T) {
	if got := GetDefaultSyntaxTheme(config.LightTheme); got != config.AppConfig.Theme.SyntaxHighlighting.DefaultLight {
		t.Errorf("light: got %q", got)
	}
	if got := GetDefaultSyntaxTheme(config.DarkTheme); got != config.AppConfig.Theme.SyntaxHighlighting.DefaultDark {
		t.Errorf("dark: got %q", got)
	}
	if got := GetDefaultSyntaxTheme("unknown"); got != "" {
		t.Errorf("unknown: got %q", got)
	}
}

func TestToggleAndIcon(t *testing.T) {
	if Toggle(config.LightTheme) != config.DarkTheme || Toggle(config.DarkTheme) != config.LightTheme {
		t.Error("Toggle should flip between light and dark")
	}
	if Toggle("garbage") != config.LightTheme {
		t.Error("Toggle of an unknown theme should land on light")
	}
	if GetThemeIcon(config.LightTheme) != config.DarkThemeIcon {
		t.Error("Light theme should offer the dark icon")
	}
	if GetThemeIcon(config.DarkTheme) != config.LightThemeIcon {
		t.Error("Dark theme should offer the light icon")
	}
}

func BenchmarkGenerateSyntaxCSS(b *testing.B) {
	GenerateSyntaxCSS("monokai")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GenerateSyntaxCSS("monokai")
	}
}
