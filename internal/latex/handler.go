package latex

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/blob"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/sse"
	"github.com/debemdeboas/folio/internal/view"
)

// StatePartial is the template that renders a panel's state.
const StatePartial = "latex-state"

// EventState is the event name carrying a re-rendered state.
const EventState = "state"

type Handler struct {
	reg     *Registry
	view    *view.Renderer
	events  *sse.SSEClients
	timeout time.Duration

	// compiler picks the compiler for a request. It defaults to the backend
	// with the visitor's credentials.
	compiler func(r *http.Request) Compiler
}

func NewHandler(blobs *blob.Store, v *view.Renderer, events *sse.SSEClients, timeout time.Duration) *Handler {
	h := &Handler{view: v, events: events, timeout: timeout}
	h.reg = NewRegistry(blobs, h.broadcast)
	h.compiler = h.apiCompiler
	return h
}

// WithCompiler makes every panel compile through c.
func (h *Handler) WithCompiler(c Compiler) *Handler {
	h.compiler = func(*http.Request) Compiler { return c }
	return h
}

func (h *Handler) Registry() *Registry {
	return h.reg
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /latex/compile", h.serveCompile)
	mux.HandleFunc("GET /latex/panels/{key}", h.serveState)
	mux.HandleFunc("GET /latex/panels/{key}/download", h.serveDownload)
	mux.HandleFunc("DELETE /latex/panels/{key}", h.serveClose)
}

func (h *Handler) apiCompiler(r *http.Request) Compiler {
	return NewAPICompiler(session.FromContext(r.Context()).API(), h.timeout)
}

// broadcast pushes a state change to the pages watching the panel.
func (h *Handler) broadcast(s Snapshot) {
	out, err := h.view.Fragment(StatePartial, s)
	if err != nil {
		latexLogger.Error().Err(err).Str("panel", s.ID).Msg("Failed to render latex state")
		return
	}
	h.events.Broadcast(sse.Event{
		Topic: sse.LatexTopic(s.ID),
		Name:  EventState,
		Data:  string(out),
	})
}

// viewerID names the browser. Panels are private to the browser that
// compiled them, signed in or not.
func viewerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(config.CookieViewerID); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieViewerID,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func existingViewer(r *http.Request) string {
	if c, err := r.Cookie(config.CookieViewerID); err == nil {
		return c.Value
	}
	return ""
}

// pagePath is the document a compile request came from.
func pagePath(r *http.Request) string {
	if p := r.FormValue("page"); p != "" {
		return p
	}
	for _, raw := range []string{r.Header.Get(config.HHxCurrentURL), r.Referer()} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil {
			return u.Path
		}
	}
	return ""
}

func (h *Handler) serveCompile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(r.FormValue("panel"))
	if key == "" {
		view.Fail(w, r, errors.New("Missing latex panel"), http.StatusBadRequest)
		return
	}
	source := r.FormValue("source")
	if strings.TrimSpace(source) == "" {
		view.Fail(w, r, ErrEmptySource, http.StatusBadRequest)
		return
	}

	owner := viewerID(w, r)
	p := h.reg.Panel(owner, pagePath(r), key, h.compiler(r))

	// The compilation outlives this request; Close cancels it
	ctx := context.WithoutCancel(r.Context())
	snap, err := p.Start(ctx, source, r.FormValue("lang"))
	if err != nil {
		view.Fail(w, r, err, http.StatusConflict)
		return
	}

	zerolog.Ctx(r.Context()).Debug().Str("panel", p.ID).Str("lang", snap.Lang).Msg("Compilation started")
	h.view.Partial(w, r, StatePartial, snap)
}

func (h *Handler) panel(w http.ResponseWriter, r *http.Request) (*Panel, bool) {
	p, ok := h.reg.Get(r.PathValue("key"), existingViewer(r))
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	return p, true
}

func (h *Handler) serveState(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	h.view.Partial(w, r, StatePartial, p.Snapshot())
}

func (h *Handler) serveDownload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	b, err := p.Download()
	if err != nil {
		view.Fail(w, r, err, http.StatusConflict)
		return
	}

	w.Header().Set(config.HCType, b.ContentType)
	w.Header().Set(config.HContentDisp, `attachment; filename="`+DownloadName+`"`)
	w.Header().Set(config.HCacheControl, "private, no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(b.Data)
}

func (h *Handler) serveClose(w http.ResponseWriter, r *http.Request) {
	if !h.reg.Remove(r.PathValue("key"), existingViewer(r)) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}
