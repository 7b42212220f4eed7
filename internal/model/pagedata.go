package model

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/theme"
)

type PageData struct {
	SiteName    string
	Tagline     string
	Description string
	Meta        config.MetaConfig
	Social      config.SocialConfig

	PageURL string
	Title   string

	Theme string

	SyntaxCSS    template.CSS
	SyntaxTheme  string
	SyntaxThemes []string

	// Signed-in user, nil for anonymous visitors.
	User     *User
	IsAuthor bool

	ShowToolbar  *bool
	IsEditorPage *bool
}

func NewPageData(r *http.Request) *PageData {
	syntaxtheme := theme.GetSyntaxThemeFromRequest(r)
	return &PageData{
		SiteName:     config.AppConfig.Site.Name,
		Tagline:      config.AppConfig.Site.Tagline,
		Description:  config.AppConfig.Site.Description,
		Meta:         config.AppConfig.Meta,
		Social:       config.AppConfig.Social,
		PageURL:      r.URL.Path,
		Title:        config.AppConfig.Site.Name,
		Theme:        theme.GetThemeFromRequest(r),
		SyntaxTheme:  syntaxtheme,
		SyntaxThemes: theme.GetSyntaxThemes(),
		SyntaxCSS:    theme.GenerateSyntaxCSS(syntaxtheme),
	}
}

// WithUser records the signed-in user and whether they may author posts.
func (pd *PageData) WithUser(u *User) *PageData {
	pd.User = u
	pd.IsAuthor = u != nil && config.AppConfig.IsAuthor(u.Username)
	return pd
}

func (pd *PageData) WithTitle(title string) *PageData {
	if title != "" {
		pd.Title = title + " · " + pd.SiteName
	}
	return pd
}

func (pd *PageData) IsPost() bool {
	if pd.ShowToolbar == nil {
		return strings.HasPrefix(pd.PageURL, config.PostsUrlPath)
	}
	return *pd.ShowToolbar
}

func (pd *PageData) IsEditor() bool {
	if pd.IsEditorPage == nil {
		return strings.HasPrefix(pd.PageURL, "/editor")
	}
	return *pd.IsEditorPage
}

func (pd *PageData) SignedIn() bool {
	return pd.User != nil
}
