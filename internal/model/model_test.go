package model

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/util"
	"github.com/google/go-cmp/cmp"
	"github.com/mmarkdown/mmark/v2/mast"
	"github.com/mmarkdown/mmark/v2/mast/reference"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	original := config.AppConfig
	config.AppConfig = c
	t.Cleanup(func() { config.AppConfig = original })
}

func TestPostDecode(t *testing.T) {
	payload := `{
		"id": 42,
		"title": "Regression notes",
		"slug": "regression-notes",
		"content": "# OLS",
		"cover_image": null,
		"is_draft": false,
		"is_published": true,
		"author": {"id": 7, "username": "ana", "email": "ana@example.com", "avatar": null},
		"category": {"id": 1, "name": "Econometrics", "slug": "econometrics"},
		"tags": [{"id": 3, "name": "ols"}],
		"published_at": "2024-03-01T10:00:00Z",
		"created_at": "2024-02-28T09:00:00Z",
		"updated_at": "2024-03-02T09:00:00Z",
		"likes_count": 4
	}`

	var p Post
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if p.ID != 42 || p.Slug != "regression-notes" || p.Author.Username != "ana" {
		t.Errorf("unexpected post %+v", p)
	}
	if p.CoverImage != nil {
		t.Errorf("expected nil cover image, got %q", *p.CoverImage)
	}
	if got := p.CategoryName(); got != "Econometrics" {
		t.Errorf("CategoryName() = %q", got)
	}
	if got := p.Tags[0].Key(); got != "ols" {
		t.Errorf("tag key = %q, want name fallback", got)
	}
	if !p.Visible() {
		t.Error("published post should be visible")
	}
	if want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC); !p.Date().Equal(want) {
		t.Errorf("Date() = %v, want %v", p.Date(), want)
	}

	// Render-side fields never leave the process
	p.MDContentHash = "secret"
	out, err := json.Marshal(&p)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"HTML", "MDContentHash", "Info"} {
		if _, ok := back[k]; ok {
			t.Errorf("field %s should not be serialized", k)
		}
	}
}

func TestPostVisible(t *testing.T) {
	tests := []struct {
		name string
		post Post
		want bool
	}{
		{"published", Post{IsPublished: true}, true},
		{"draft", Post{IsPublished: true, IsDraft: true}, false},
		{"archived", Post{IsPublished: true, IsArchived: true}, false},
		{"unpublished", Post{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.post.Visible(); got != tt.want {
				t.Errorf("Visible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostStatus(t *testing.T) {
	tests := []struct {
		name string
		post Post
		want PostStatus
	}{
		{"published", Post{IsPublished: true}, PostPublished},
		{"draft flag wins over published", Post{IsPublished: true, IsDraft: true}, PostDraft},
		{"archived wins", Post{IsPublished: true, IsArchived: true}, PostArchived},
		{"no flags", Post{}, PostDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.post.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
			if parsed, ok := ParsePostStatus(string(tt.want)); !ok || parsed != tt.want {
				t.Errorf("ParsePostStatus(%q) = %q, %v", tt.want, parsed, ok)
			}
		})
	}
	if _, ok := ParsePostStatus("published"); ok {
		t.Error("ParsePostStatus accepted an unknown status")
	}
}

func TestPostDateFallsBackToCreation(t *testing.T) {
	created := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	zero := time.Time{}
	for _, published := range []*time.Time{nil, &zero} {
		p := Post{CreatedAt: created, PublishedAt: published}
		if !p.Date().Equal(created) {
			t.Errorf("Date() = %v, want %v", p.Date(), created)
		}
	}
}

func TestPostGetTitle(t *testing.T) {
	tests := []struct {
		name string
		info *util.ExtendedTitleData
		want string
	}{
		{"no front matter", nil, "Direct Title"},
		{"empty front matter", &util.ExtendedTitleData{TitleData: &mast.TitleData{}}, "Direct Title"},
		{"front matter title", &util.ExtendedTitleData{TitleData: &mast.TitleData{Title: "Info Title"}}, "Info Title"},
		{
			"series prefix",
			&util.ExtendedTitleData{TitleData: &mast.TitleData{
				Title:      "Episode Title",
				SeriesInfo: reference.SeriesInfo{Name: "MySerial", Value: "5"},
			}},
			"[MySerial-5] Episode Title",
		},
		{
			"partial series ignored",
			&util.ExtendedTitleData{TitleData: &mast.TitleData{
				Title:      "Episode Title",
				SeriesInfo: reference.SeriesInfo{Name: "MySerial"},
			}},
			"Episode Title",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Post{Title: "Direct Title", Info: tt.info}
			if got := p.GetTitle(); got != tt.want {
				t.Errorf("GetTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPostSummary(t *testing.T) {
	tests := []struct {
		name string
		post Post
		max  int
		want string
	}{
		{"excerpt wins", Post{Excerpt: "Short.", Content: "Long body"}, 3, "Short."},
		{"first paragraph", Post{Content: "\nFirst para.\n\nSecond para."}, 0, "First para."},
		{"truncated by runes", Post{Content: "計量經濟學筆記"}, 3, "計量經…"},
		{"shorter than max", Post{Content: "abc"}, 10, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.post.Summary(tt.max); got != tt.want {
				t.Errorf("Summary(%d) = %q, want %q", tt.max, got, tt.want)
			}
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{Username: "ana"}, "ana"},
		{User{Username: "ana", FirstName: "Ana"}, "Ana"},
		{User{Username: "ana", LastName: "Lima"}, "Lima"},
		{User{Username: "ana", FirstName: "Ana", LastName: "Lima"}, "Ana Lima"},
	}
	for _, tt := range tests {
		if got := tt.user.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestCategoryKey(t *testing.T) {
	if got := (&Category{Name: "Stats", Slug: "stats"}).Key(); got != "stats" {
		t.Errorf("Key() = %q", got)
	}
	if got := (&Category{Name: "Stats"}).Key(); got != "Stats" {
		t.Errorf("Key() = %q", got)
	}
}

func TestLoginResponseUser(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	var lr LoginResponse
	err := json.Unmarshal([]byte(`{"access":"a","refresh":"r","user_id":9,"username":"bo","email":"bo@example.com","avatar":"`+avatar+`"}`), &lr)
	if err != nil {
		t.Fatal(err)
	}
	want := User{ID: 9, Username: "bo", Email: "bo@example.com", Avatar: &avatar}
	if diff := cmp.Diff(want, lr.User()); diff != "" {
		t.Errorf("User() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPageData(t *testing.T) {
	c := config.Default()
	c.Site.Name = "Folio Test"
	c.Site.Tagline = "Tagline"
	c.Theme.Default = config.DarkTheme
	withConfig(t, c)

	t.Run("defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test/path", nil)
		pd := NewPageData(req)

		if pd.SiteName != "Folio Test" || pd.Tagline != "Tagline" || pd.Title != "Folio Test" {
			t.Errorf("unexpected site fields %+v", pd)
		}
		if pd.PageURL != "/test/path" {
			t.Errorf("PageURL = %q", pd.PageURL)
		}
		if pd.Theme != config.DarkTheme {
			t.Errorf("Theme = %q", pd.Theme)
		}
		if pd.SyntaxTheme != c.Theme.SyntaxHighlighting.DefaultDark {
			t.Errorf("SyntaxTheme = %q", pd.SyntaxTheme)
		}
		if len(pd.SyntaxThemes) == 0 || pd.SyntaxCSS == "" {
			t.Error("expected syntax themes and css")
		}
		if pd.SignedIn() {
			t.Error("anonymous request should not be signed in")
		}
	})

	t.Run("cookies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: config.CookieTheme, Value: config.LightTheme})
		req.AddCookie(&http.Cookie{Name: config.CookieSyntaxTheme, Value: "monokai"})
		pd := NewPageData(req)
		if pd.Theme != config.LightTheme || pd.SyntaxTheme != "monokai" {
			t.Errorf("got theme %q syntax %q", pd.Theme, pd.SyntaxTheme)
		}
	})

	t.Run("invalid cookies fall back", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: config.CookieTheme, Value: "neon"})
		req.AddCookie(&http.Cookie{Name: config.CookieSyntaxTheme, Value: "no-such-style"})
		pd := NewPageData(req)
		if pd.Theme != config.DarkTheme || pd.SyntaxTheme != c.Theme.SyntaxHighlighting.DefaultDark {
			t.Errorf("got theme %q syntax %q", pd.Theme, pd.SyntaxTheme)
		}
	})
}

func TestPageDataWithTitle(t *testing.T) {
	pd := &PageData{SiteName: "Folio", Title: "Folio"}
	pd.WithTitle("")
	if pd.Title != "Folio" {
		t.Errorf("empty title changed page title to %q", pd.Title)
	}
	pd.WithTitle("Notes")
	if pd.Title != "Notes · Folio" {
		t.Errorf("Title = %q", pd.Title)
	}
}

func TestPageDataWithUser(t *testing.T) {
	c := config.Default()
	c.Features.Editor.Authors = []string{"ana"}
	withConfig(t, c)

	tests := []struct {
		name       string
		user       *User
		signedIn   bool
		wantAuthor bool
	}{
		{"anonymous", nil, false, false},
		{"listed author", &User{Username: "ana"}, true, true},
		{"reader", &User{Username: "bo"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd := (&PageData{}).WithUser(tt.user)
			if pd.SignedIn() != tt.signedIn || pd.IsAuthor != tt.wantAuthor {
				t.Errorf("SignedIn=%v IsAuthor=%v", pd.SignedIn(), pd.IsAuthor)
			}
		})
	}

	t.Run("empty author list admits everyone", func(t *testing.T) {
		c.Features.Editor.Authors = nil
		if !(&PageData{}).WithUser(&User{Username: "bo"}).IsAuthor {
			t.Error("expected any signed-in user to be an author")
		}
	})
}

func TestPageDataIsPostAndIsEditor(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name       string
		url        string
		toolbar    *bool
		editor     *bool
		wantPost   bool
		wantEditor bool
	}{
		{"post path", config.PostsUrlPath + "hello", nil, nil, true, false},
		{"home", "/", nil, nil, false, false},
		{"editor", "/editor/new", nil, nil, false, true},
		{"overrides", "/", &yes, &yes, true, true},
		{"override off", config.PostsUrlPath + "x", &no, &no, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd := &PageData{PageURL: tt.url, ShowToolbar: tt.toolbar, IsEditorPage: tt.editor}
			if pd.IsPost() != tt.wantPost || pd.IsEditor() != tt.wantEditor {
				t.Errorf("IsPost=%v IsEditor=%v", pd.IsPost(), pd.IsEditor())
			}
		})
	}
}
