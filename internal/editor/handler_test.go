package editor

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/blob"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/view"
)

var testTemplates = fstest.MapFS{
	"templates/layout.html":   {Data: []byte(`<main>{{template "content" .}}</main>`)},
	"templates/partials.html": {Data: []byte(`{{define "image-modal"}}modal:{{.FileName}}:{{.Alt}}{{end}}` +
		`{{define "manage-row"}}row:{{.Slug}}:{{.Status}};{{end}}`)},
	"templates/manage.html": {Data: []byte(`{{define "content"}}{{range .Posts}}{{template "manage-row" .}}{{end}}{{end}}`)},
	"templates/editor.html": {Data: []byte(`{{define "content"}}id={{.Editor.ID}} live={{.LiveURL}} ` +
		`actions={{range .Groups}}{{range .}}{{.Name}},{{end}}{{end}} preview={{.Preview}}{{end}}`)},
}

type backend struct {
	mu      sync.Mutex
	created []url.Values
	patched map[string]map[string]bool
}

var managedPosts = []model.Post{
	{ID: 1, Slug: "live", Title: "Live", IsPublished: true},
	{ID: 2, Slug: "wip", Title: "Work in progress", IsDraft: true},
	{ID: 3, Slug: "old", Title: "Old", IsPublished: true, IsArchived: true},
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && (r.URL.Path == "/api/categories/" || r.URL.Path == "/api/tags/"):
		io.WriteString(w, `[]`)
	case r.Method == http.MethodPost && r.URL.Path == "/api/posts/":
		r.ParseMultipartForm(1 << 20)
		b.mu.Lock()
		b.created = append(b.created, r.MultipartForm.Value)
		b.mu.Unlock()
		json.NewEncoder(w).Encode(model.Post{ID: 1, Slug: r.FormValue("slug"), Title: r.FormValue("title")})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts/":
		json.NewEncoder(w).Encode(managedPosts)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/api/posts/"):
		slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/posts/"), "/")
		if !slices.ContainsFunc(managedPosts, func(p model.Post) bool { return p.Slug == slug }) {
			http.NotFound(w, r)
			return
		}
		var flags map[string]bool
		if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		if b.patched == nil {
			b.patched = make(map[string]map[string]bool)
		}
		b.patched[slug] = flags
		b.mu.Unlock()
		json.NewEncoder(w).Encode(model.Post{
			Slug:        slug,
			IsDraft:     flags["is_draft"],
			IsPublished: flags["is_published"],
			IsArchived:  flags["is_archived"],
		})
	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	t       *testing.T
	reg     *Registry
	backend *backend
	handler http.Handler
	client  *api.Client
	user    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	prev := *config.AppConfig
	t.Cleanup(func() { *config.AppConfig = prev })
	config.AppConfig.Features.Editor.Enabled = true
	config.AppConfig.Features.Editor.LivePreview = true
	config.AppConfig.Features.Editor.Authors = []string{"ada"}

	b := &backend{}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	client := api.New(srv.URL+"/api", time.Second)
	mgr := session.NewManager(session.NewMemoryStorage(), client, session.Options{})

	h := &harness{t: t, backend: b, client: client, user: "ada"}
	h.reg = NewRegistry(blob.NewStore(), nil, 1<<20)

	mux := http.NewServeMux()
	NewHandler(h.reg, view.New(testTemplates)).Register(mux)
	h.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := session.NewContext(r.Context(), mgr.Get(r))
		ctx = auth.ContextWithUser(ctx, &model.User{Username: h.user})
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
	return h
}

func (h *harness) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(config.HCType, "application/x-www-form-urlencoded")
	}
	req.Header.Set(config.HHxRequest, "true")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAction(t *testing.T) {
	h := newHarness(t)
	s := h.reg.Create("ada", h.client)

	rec := h.do(http.MethodPost, "/editor/"+s.ID+"/action", url.Values{
		"action": {"bold"}, "content": {""}, "start": {"0"}, "end": {"0"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Content != "****" || snap.Selection.Start != 2 || snap.Selection.End != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	rec = h.do(http.MethodPost, "/editor/"+s.ID+"/action", url.Values{"action": {"blink"}})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Header().Get(config.HHxTrigger), "toast") {
		t.Errorf("unknown action: status %d trigger %q", rec.Code, rec.Header().Get(config.HHxTrigger))
	}
}

func TestHandlerSave(t *testing.T) {
	h := newHarness(t)
	s := h.reg.Create("ada", h.client)

	rec := h.do(http.MethodPost, "/editor/"+s.ID+"/save", url.Values{"content": {"body"}, "title": {""}, "slug": {""}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid save status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get(config.HHxTrigger), config.ErrRequiredFields) {
		t.Errorf("trigger = %q", rec.Header().Get(config.HHxTrigger))
	}

	rec = h.do(http.MethodPost, "/editor/"+s.ID+"/save", url.Values{
		"mode": {"draft"}, "content": {"body"}, "title": {"Hello"}, "slug": {"hello"}, "tags": {"4", "9"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("draft save status = %d, body %s", rec.Code, rec.Body)
	}
	if len(h.backend.created) != 1 {
		t.Fatalf("backend saw %d creates", len(h.backend.created))
	}
	got := h.backend.created[0]
	if got.Get("is_draft") != "true" || got.Get("content") != "body" || strings.Join(got["tags"], ",") != "4,9" {
		t.Errorf("created form = %v", got)
	}
	if s.Snapshot().Slug != "hello" {
		t.Errorf("session slug = %q", s.Snapshot().Slug)
	}
}

func TestHandlerPublishRedirects(t *testing.T) {
	h := newHarness(t)
	s := h.reg.Create("ada", h.client)

	rec := h.do(http.MethodPost, "/editor/"+s.ID+"/save", url.Values{
		"mode": {"publish"}, "content": {"body"}, "title": {"Hello"}, "slug": {"hello"},
	})
	if got := rec.Header().Get(config.HHxRedirect); got != "/posts/hello" {
		t.Errorf("redirect = %q", got)
	}
	if h.reg.Len() != 0 {
		t.Error("published editor session was kept")
	}
}

func TestHandlerSessionOwnership(t *testing.T) {
	h := newHarness(t)
	s := h.reg.Create("ada", h.client)

	if rec := h.do(http.MethodPost, "/editor/nope/sync", url.Values{}); rec.Code != http.StatusGone {
		t.Errorf("unknown session status = %d", rec.Code)
	}

	config.AppConfig.Features.Editor.Authors = nil
	h.user = "eve"
	if rec := h.do(http.MethodPost, "/editor/"+s.ID+"/sync", url.Values{}); rec.Code != http.StatusGone {
		t.Errorf("foreign session status = %d", rec.Code)
	}
}

func TestHandlerRequiresAuthor(t *testing.T) {
	h := newHarness(t)
	h.user = "eve"
	rec := h.do(http.MethodGet, "/editor", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandlerNewPage(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/editor", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	if h.reg.Len() != 1 {
		t.Fatalf("registry holds %d sessions", h.reg.Len())
	}
	for _, want := range []string{"live=/ws/editor/", "actions=bold,italic,h1", "note,info,tip", "Start typing"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q:\n%s", want, body)
		}
	}
}

func TestHandlerImageModal(t *testing.T) {
	h := newHarness(t)
	s := h.reg.Create("ada", h.client)

	rec := h.do(http.MethodGet, "/editor/"+s.ID+"/image", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "modal::" {
		t.Errorf("open = %d %q", rec.Code, rec.Body)
	}
	rec = h.do(http.MethodPost, "/editor/"+s.ID+"/image/upload", url.Values{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("upload without file status = %d", rec.Code)
	}
	if rec := h.do(http.MethodDelete, "/editor/"+s.ID+"/image", nil); rec.Code != http.StatusNoContent {
		t.Errorf("close status = %d", rec.Code)
	}
}

func TestHandlerManageListsAllPosts(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/editor/manage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	want := "<main>row:live:publish;row:wip:draft;row:old:archive;</main>"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestHandlerSetStatus(t *testing.T) {
	tests := []struct {
		status string
		want   map[string]bool
	}{
		{"draft", map[string]bool{"is_draft": true, "is_published": false, "is_archived": false}},
		{"publish", map[string]bool{"is_draft": false, "is_published": true, "is_archived": false}},
		{"archive", map[string]bool{"is_draft": false, "is_published": false, "is_archived": true}},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(http.MethodPost, "/editor/manage/wip/status", url.Values{"status": {tt.status}})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if got, want := rec.Body.String(), "row:wip:"+tt.status+";"; got != want {
				t.Errorf("row = %q, want %q", got, want)
			}
			if !strings.Contains(rec.Header().Get(config.HHxTrigger), "Status updated") {
				t.Errorf("trigger = %q", rec.Header().Get(config.HHxTrigger))
			}
			h.backend.mu.Lock()
			defer h.backend.mu.Unlock()
			if diff := cmp.Diff(tt.want, h.backend.patched["wip"]); diff != "" {
				t.Errorf("PATCH body (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandlerSetStatusRejects(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/editor/manage/wip/status", url.Values{"status": {"deleted"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d", rec.Code)
	}
	if h.backend.patched != nil {
		t.Errorf("backend patched %v", h.backend.patched)
	}

	rec = h.do(http.MethodPost, "/editor/manage/missing/status", url.Values{"status": {"draft"}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing post status = %d, want 404", rec.Code)
	}

	h.user = "eve"
	for _, target := range []string{"/editor/manage", "/editor/manage/wip/status"} {
		method := http.MethodGet
		if strings.HasSuffix(target, "/status") {
			method = http.MethodPost
		}
		if rec := h.do(method, target, url.Values{"status": {"draft"}}); rec.Code != http.StatusForbidden {
			t.Errorf("%s %s by non-author = %d, want 403", method, target, rec.Code)
		}
	}
}
