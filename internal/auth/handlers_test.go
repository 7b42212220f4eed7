package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/view"
)

func TestMain(m *testing.M) {
	SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

var testTemplates = fstest.MapFS{
	"templates/layout.html":   {Data: []byte(`{{template "content" .}}`)},
	"templates/partials.html": {Data: []byte(`{{define "unused"}}{{end}}`)},
	"templates/auth.html": {Data: []byte(`{{define "content"}}form={{.Form}} next={{.Next}} ` +
		`error={{.Error}} notice={{.Notice}} user={{.Username}}{{end}}`)},
	"templates/profile.html": {Data: []byte(`{{define "content"}}profile={{.Profile.Username}} bio={{.Profile.Bio}}{{end}}`)},
}

// backend fakes the account endpoints. ada/pw is the only valid login.
type backend struct {
	mu    sync.Mutex
	calls []string
	body  map[string]map[string]string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in := map[string]string{}
	if strings.HasPrefix(r.Header.Get(config.HCType), config.CTypeJSON) {
		json.NewDecoder(r.Body).Decode(&in)
	}
	b.mu.Lock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	if b.body == nil {
		b.body = make(map[string]map[string]string)
	}
	b.body[r.URL.Path] = in
	b.mu.Unlock()

	authed := r.Header.Get(config.HAuthorization) == "Bearer a1"
	switch r.URL.Path {
	case "/api/auth/login/":
		if in["username"] != "ada" || in["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		io.WriteString(w, `{"access":"a1","refresh":"r1","user_id":1,"username":"ada","email":"ada@example.com"}`)
	case "/api/auth/logout/", "/api/auth/password/change/":
		if !authed {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/auth/register/":
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":2,"username":"`+in["username"]+`"}`)
	case "/api/auth/profile/":
		if !authed {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"id":1,"username":"ada","bio":"fresh"}`)
	case "/api/auth/password-reset/":
		if in["email"] != "ada@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"email":["No account uses this address."]}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/auth/password-reset/confirm/", "/api/auth/verify-email/":
		if in["token"] != "good" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"detail":"Invalid or expired token"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) called(call string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (b *backend) sent(path string) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.body[path]
}

type harness struct {
	t       *testing.T
	backend *backend
	handler http.Handler
	cookie  *http.Cookie
}

const cookieName = "folio-test"

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	client := api.New(srv.URL+"/api", time.Second)
	mgr := session.NewManager(session.NewMemoryStorage(), client, session.Options{
		CookieName: cookieName,
		MaxAge:     time.Hour,
	})

	mux := http.NewServeMux()
	NewHandler(view.New(testTemplates)).Register(mux)
	return &harness{t: t, backend: b, handler: mgr.Middleware(WithUser(mux))}
}

// do sends a form post, or a GET when form is nil, with the session cookie.
func (h *harness) do(method, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(config.HCType, "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set(config.HHxRequest, "true")
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			h.cookie = c
			if c.MaxAge < 0 {
				h.cookie = nil
			}
		}
	}
	return rec
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/"},
		{"/posts/hello", "/posts/hello"},
		{"/editor?draft=1", "/editor?draft=1"},
		{"https://evil.example/", "/"},
		{"//evil.example", "/"},
		{`/\evil.example`, "/"},
		{"posts", "/"},
	}
	for _, tt := range tests {
		if got := SafeNext(tt.next); got != tt.want {
			t.Errorf("SafeNext(%q) = %q, want %q", tt.next, got, tt.want)
		}
	}
}

func TestLoginProfileLogout(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/profile", nil, false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/login?next=%2Fprofile" {
		t.Fatalf("anonymous profile: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = h.do(http.MethodPost, "/auth/login", url.Values{"username": {"ada"}, "password": {"nope"}}, true)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get(config.HHxTrigger), config.ErrLoginFailed) {
		t.Errorf("bad login trigger = %q", rec.Header().Get(config.HHxTrigger))
	}
	if h.cookie != nil {
		t.Fatal("bad login set a session cookie")
	}

	rec = h.do(http.MethodPost, "/auth/login", url.Values{
		"username": {"ada"}, "password": {"pw"}, "next": {"/posts/hello"},
	}, true)
	if rec.Code != http.StatusOK || rec.Header().Get(config.HHxRedirect) != "/posts/hello" {
		t.Fatalf("login: status %d redirect %q", rec.Code, rec.Header().Get(config.HHxRedirect))
	}
	if h.cookie == nil {
		t.Fatal("login set no session cookie")
	}

	rec = h.do(http.MethodGet, "/profile", nil, false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "profile=ada bio=fresh") {
		t.Fatalf("profile: status %d body %q", rec.Code, rec.Body)
	}

	rec = h.do(http.MethodGet, "/auth/login?next=/tags/", nil, false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/tags/" {
		t.Errorf("signed-in login page: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = h.do(http.MethodPost, "/auth/logout", url.Values{}, false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("logout: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}
	if diff := cmp.Diff(map[string]string{"refresh": "r1"}, h.backend.sent("/api/auth/logout/")); diff != "" {
		t.Errorf("logout body mismatch (-want +got):\n%s", diff)
	}
	if h.cookie != nil {
		t.Error("logout left the session cookie")
	}
}

func TestLoginRejectsForeignNext(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/login", url.Values{
		"username": {"ada"}, "password": {"pw"}, "next": {"https://evil.example/"},
	}, true)
	if got := rec.Header().Get(config.HHxRedirect); got != "/" {
		t.Errorf("redirect = %q, want /", got)
	}
}

func TestLoginFormShowsErrorInline(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/login", url.Values{"username": {"ada"}}, false)
	body := rec.Body.String()
	if !strings.Contains(body, "form=login") || !strings.Contains(body, "error="+ErrMissingFields.Error()) {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(body, "user=ada") {
		t.Errorf("username not kept: %q", body)
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		status   int
		redirect string
		notice   bool
	}{
		{
			name:   "password mismatch",
			form:   url.Values{"username": {"ada"}, "email": {"a@x"}, "password": {"pw"}, "password_confirm": {"px"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing email",
			form:   url.Values{"username": {"ada"}, "password": {"pw"}, "password_confirm": {"pw"}},
			status: http.StatusBadRequest,
		},
		{
			name:     "signs in",
			form:     url.Values{"username": {"ada"}, "email": {"a@x"}, "password": {"pw"}, "password_confirm": {"pw"}},
			status:   http.StatusOK,
			redirect: "/",
		},
		{
			name:   "awaits verification",
			form:   url.Values{"username": {"bob"}, "email": {"b@x"}, "password": {"pw"}, "password_confirm": {"pw"}},
			status: http.StatusOK,
			notice: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(http.MethodPost, "/auth/register", tt.form, true)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get(config.HHxRedirect); got != tt.redirect {
				t.Errorf("redirect = %q, want %q", got, tt.redirect)
			}
			if got := strings.Contains(rec.Body.String(), "form=notice"); got != tt.notice {
				t.Errorf("notice shown = %v, body %q", got, rec.Body)
			}
			registered := h.backend.called("POST /api/auth/register/")
			if wantCall := tt.status == http.StatusOK; registered != wantCall {
				t.Errorf("register called = %v", registered)
			}
		})
	}
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/auth/forgot-password", url.Values{"email": {"nobody@example.com"}}, true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "form=notice") {
		t.Errorf("unknown address: status %d body %q", rec.Code, rec.Body)
	}

	rec = h.do(http.MethodPost, "/auth/reset-password", url.Values{"password": {"n"}, "password_confirm": {"n"}}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing uid: status %d", rec.Code)
	}

	form := url.Values{"uid": {"MQ"}, "token": {"stale"}, "password": {"n"}, "password_confirm": {"n"}}
	rec = h.do(http.MethodPost, "/auth/reset-password", form, true)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Header().Get(config.HHxTrigger), "Invalid or expired token") {
		t.Errorf("stale token: status %d trigger %q", rec.Code, rec.Header().Get(config.HHxTrigger))
	}

	form.Set("token", "good")
	rec = h.do(http.MethodPost, "/auth/reset-password", form, true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "notice=Your password was changed") {
		t.Fatalf("reset: status %d body %q", rec.Code, rec.Body)
	}
	want := map[string]string{"uid": "MQ", "token": "good", "new_password": "n"}
	if diff := cmp.Diff(want, h.backend.sent("/api/auth/password-reset/confirm/")); diff != "" {
		t.Errorf("confirm body mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyEmail(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/auth/verify-email?token=good", nil, false)
	if !strings.Contains(rec.Body.String(), "notice=Your email address is verified") {
		t.Errorf("verify: body %q", rec.Body)
	}
	rec = h.do(http.MethodGet, "/auth/verify-email?token=bad", nil, false)
	if !strings.Contains(rec.Body.String(), "error=Invalid or expired token") {
		t.Errorf("bad token: body %q", rec.Body)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/auth/login", url.Values{"username": {"ada"}, "password": {"pw"}}, true)

	rec := h.do(http.MethodPost, "/profile/password", url.Values{
		"old_password": {"pw"}, "new_password": {"a"}, "new_password_confirm": {"b"},
	}, true)
	if rec.Code != http.StatusBadRequest || h.backend.called("POST /api/auth/password/change/") {
		t.Errorf("mismatch: status %d", rec.Code)
	}

	rec = h.do(http.MethodPost, "/profile/password", url.Values{
		"old_password": {"pw"}, "new_password": {"a"}, "new_password_confirm": {"a"},
	}, true)
	if rec.Code != http.StatusNoContent {
		t.Errorf("change: status %d", rec.Code)
	}
}

func TestRequireAuthor(t *testing.T) {
	prev := *config.AppConfig
	t.Cleanup(func() { *config.AppConfig = prev })
	config.AppConfig.Features.Editor.Enabled = true
	config.AppConfig.Features.Editor.Authors = []string{"ada"}

	handler := RequireAuthor(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	tests := []struct {
		name   string
		user   *model.User
		status int
	}{
		{"visitor", nil, http.StatusSeeOther},
		{"reader", &model.User{Username: "bob"}, http.StatusForbidden},
		{"author", &model.User{Username: "ada"}, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/editor", nil)
			if tt.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}
