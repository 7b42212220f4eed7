package editor

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/render"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/theme"
	"github.com/debemdeboas/folio/internal/upload"
	"github.com/debemdeboas/folio/internal/view"
	"github.com/rs/zerolog"
)

const previewPlaceholder = "Start typing in the editor to see a preview here."

type Handler struct {
	reg  *Registry
	view *view.Renderer
}

func NewHandler(reg *Registry, v *view.Renderer) *Handler {
	return &Handler{reg: reg, view: v}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /editor", auth.RequireAuthor(h.ServeNew))
	mux.HandleFunc("GET /editor/{slug}", auth.RequireAuthor(h.ServeEdit))
	mux.HandleFunc("GET /editor/manage", auth.RequireAuthor(h.serveManage))
	mux.HandleFunc("POST /editor/manage/{slug}/status", auth.RequireAuthor(h.serveSetStatus))

	mux.HandleFunc("POST /editor/{id}/sync", h.withSession(h.serveSync))
	mux.HandleFunc("POST /editor/{id}/action", h.withSession(h.serveAction))
	mux.HandleFunc("POST /editor/{id}/preview", h.withSession(h.servePreview))
	mux.HandleFunc("POST /editor/{id}/save", h.withSession(h.serveSave))
	mux.HandleFunc("POST /editor/{id}/cover", h.withSession(h.serveCover))
	mux.HandleFunc("POST /editor/{id}/categories", h.withSession(h.serveCreateCategory))
	mux.HandleFunc("POST /editor/{id}/tags", h.withSession(h.serveCreateTag))
	mux.HandleFunc("DELETE /editor/{id}", h.withSession(h.serveClose))

	mux.HandleFunc("GET /editor/{id}/image", h.withSession(h.serveImageOpen))
	mux.HandleFunc("POST /editor/{id}/image", h.withSession(h.serveImageSelect))
	mux.HandleFunc("POST /editor/{id}/image/alt", h.withSession(h.serveImageAlt))
	mux.HandleFunc("POST /editor/{id}/image/upload", h.withSession(h.serveImageUpload))
	mux.HandleFunc("DELETE /editor/{id}/image", h.withSession(h.serveImageClose))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *Session)

// withSession resolves the editor session in the path. Sessions belong to the
// user that opened them.
func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return auth.RequireAuthor(func(w http.ResponseWriter, r *http.Request) {
		u := auth.UserFromContext(r.Context())
		s, ok := h.reg.Get(r.PathValue("id"), u.Username)
		if !ok {
			view.Toast(w, view.ToastError, "This editor has expired, reload the page")
			w.WriteHeader(http.StatusGone)
			return
		}
		next(w, r, s)
	})
}

// SessionFor returns the editor session id for user, for the live preview
// channel.
func (h *Handler) SessionFor(id, user string) (*Session, bool) {
	return h.reg.Get(id, user)
}

type pageData struct {
	*model.PageData
	Editor     Snapshot
	Groups     [][]Action
	Categories []model.Category
	Tags       []model.Tag
	MaxTags    int
	Preview    template.HTML
	LiveURL    string
}

func (h *Handler) ServeNew(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	s := h.reg.Create(u.Username, session.FromContext(r.Context()).API())
	h.servePage(w, r, s)
}

func (h *Handler) ServeEdit(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	client := session.FromContext(r.Context()).API()

	post, err := client.Post(r.Context(), slug)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if errors.Is(err, api.ErrSessionExpired) {
			view.Fail(w, r, err, http.StatusUnauthorized)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("slug", slug).Msg("Failed to load post for editing")
		http.Error(w, api.Message(err), view.Status(err))
		return
	}

	u := auth.UserFromContext(r.Context())
	s := h.reg.Create(u.Username, client)
	s.LoadPost(post)
	h.servePage(w, r, s)
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, s *Session) {
	client := session.FromContext(r.Context()).API()
	log := zerolog.Ctx(r.Context())

	// The form still works without the taxonomy lists
	categories, err := client.Categories(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load categories")
	}
	tags, err := client.Tags(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load tags")
	}

	snap := s.Snapshot()
	editing := true
	pd := model.NewPageData(r).WithUser(auth.UserFromContext(r.Context()))
	pd.IsEditorPage = &editing
	if snap.Editing() {
		pd.WithTitle("Edit · " + snap.Meta.Title)
	} else {
		pd.WithTitle("New post")
	}

	data := pageData{
		PageData:   pd,
		Editor:     snap,
		Groups:     h.reg.Toolbar().Groups(),
		Categories: categories,
		Tags:       tags,
		MaxTags:    model.MaxTags,
		Preview:    template.HTML(h.render(r, snap.Content)),
	}
	if config.AppConfig.Features.Editor.LivePreview {
		data.LiveURL = "/ws/editor/" + s.ID
	}

	w.Header().Set(config.HCacheControl, "no-store")
	h.view.Page(w, r, config.TemplateEditor, data)
}

func (h *Handler) render(r *http.Request, content string) []byte {
	if strings.TrimSpace(content) == "" {
		content = previewPlaceholder
	}
	out, _ := render.RenderMarkdown([]byte(content), theme.GetSyntaxThemeFromRequest(r))
	return out
}

// readSync applies the textarea and form fields a request carries. Fields
// that are absent leave the session unchanged.
func readSync(r *http.Request, s *Session) error {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}

	if _, ok := r.Form["content"]; ok {
		s.Sync(r.FormValue("content"), Selection{
			Start: formInt(r, "start"),
			End:   formInt(r, "end"),
		})
	}

	if _, ok := r.Form["title"]; !ok {
		return nil
	}
	m := Meta{
		Title:      strings.TrimSpace(r.FormValue("title")),
		Slug:       strings.TrimSpace(r.FormValue("slug")),
		Excerpt:    r.FormValue("excerpt"),
		CategoryID: formInt64(r.FormValue("category")),
	}
	for _, v := range r.Form["tags"] {
		if id := formInt64(v); id != 0 {
			m.TagIDs = append(m.TagIDs, id)
		}
	}
	if len(m.TagIDs) > model.MaxTags {
		return errors.New(config.ErrTooManyTags)
	}
	s.SetMeta(m)
	return nil
}

func formInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.FormValue(key))
	return n
}

func formInt64(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func (h *Handler) serveSync(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := readSync(r, s); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	snap := s.Snapshot()
	view.JSON(w, http.StatusOK, map[string]any{"rev": snap.Rev, "dirty": snap.Dirty})
}

func (h *Handler) serveAction(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := readSync(r, s); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	snap, err := s.Apply(r.FormValue("action"))
	if err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	view.JSON(w, http.StatusOK, snap)
}

func (h *Handler) servePreview(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := readSync(r, s); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	w.Header().Set(config.HCType, config.CTypeHTML+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(h.render(r, s.Snapshot().Content))
}

func (h *Handler) serveSave(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := readSync(r, s); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}

	draft := r.FormValue("mode") != "publish"
	post, err := s.Save(r.Context(), draft)
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		view.Fail(w, r, ve, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, ErrSubmitInFlight):
		view.Fail(w, r, err, http.StatusConflict)
		return
	case err != nil:
		view.Fail(w, r, err, view.Status(err))
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("slug", post.Slug).Bool("draft", draft).Msg("Post saved")
	if !draft {
		h.reg.Remove(s.ID)
		view.Toast(w, view.ToastSuccess, "Post published")
		view.Redirect(w, r, config.PostsUrlPath+post.Slug)
		return
	}
	view.Toast(w, view.ToastSuccess, "Draft saved")
	view.JSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) serveCover(w http.ResponseWriter, r *http.Request, s *Session) {
	f, err := upload.FormFile(r, "cover_image")
	if err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	if err := upload.Validate(f, config.AppConfig.Upload.MaxBytes); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	s.SetCover(f)
	view.Toast(w, view.ToastInfo, "Cover image will be uploaded with the next save")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveCreateCategory(w http.ResponseWriter, r *http.Request, s *Session) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		view.Fail(w, r, errors.New("Category name is required"), http.StatusBadRequest)
		return
	}
	c, err := session.FromContext(r.Context()).API().CreateCategory(r.Context(), name)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}

	// A new category is selected when none was
	snap := s.Snapshot()
	if snap.Meta.CategoryID == 0 {
		m := snap.Meta
		m.CategoryID = c.ID
		s.SetMeta(m)
	}
	view.JSON(w, http.StatusCreated, c)
}

func (h *Handler) serveCreateTag(w http.ResponseWriter, r *http.Request, s *Session) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		view.Fail(w, r, errors.New("Tag name is required"), http.StatusBadRequest)
		return
	}
	t, err := session.FromContext(r.Context()).API().CreateTag(r.Context(), name)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}

	snap := s.Snapshot()
	if len(snap.Meta.TagIDs) < model.MaxTags {
		m := snap.Meta
		m.TagIDs = append(m.TagIDs, t.ID)
		s.SetMeta(m)
	}
	view.JSON(w, http.StatusCreated, t)
}

func (h *Handler) serveClose(w http.ResponseWriter, r *http.Request, s *Session) {
	h.reg.Remove(s.ID)
	w.WriteHeader(http.StatusNoContent)
}

type modalData struct {
	ID string
	upload.State
}

func (h *Handler) serveModal(w http.ResponseWriter, r *http.Request, s *Session, st upload.State) {
	h.view.Partial(w, r, "image-modal", modalData{ID: s.ID, State: st})
}

func (h *Handler) serveImageOpen(w http.ResponseWriter, r *http.Request, s *Session) {
	h.serveModal(w, r, s, s.Modal.Open())
}

func (h *Handler) serveImageSelect(w http.ResponseWriter, r *http.Request, s *Session) {
	f, err := upload.FormFile(r, "image")
	if err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	st, err := s.Modal.Select(*f)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, upload.ErrUploadInFlight) {
			status = http.StatusConflict
		}
		view.Fail(w, r, err, status)
		return
	}
	h.serveModal(w, r, s, st)
}

func (h *Handler) serveImageAlt(w http.ResponseWriter, r *http.Request, s *Session) {
	s.Modal.SetAlt(r.FormValue("alt"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveImageUpload(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := readSync(r, s); err != nil {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}
	if alt, ok := r.Form["alt"]; ok && len(alt) > 0 {
		s.Modal.SetAlt(alt[0])
	}

	_, err := s.Modal.Submit(r.Context(), s.Slug(), s)
	switch {
	case errors.Is(err, upload.ErrUploadInFlight):
		view.Fail(w, r, err, http.StatusConflict)
		return
	case errors.Is(err, upload.ErrNoFile):
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	case errors.Is(err, api.ErrSessionExpired):
		view.Fail(w, r, err, http.StatusUnauthorized)
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Image upload failed")
		view.Toast(w, view.ToastError, config.ErrUploadFailed)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	view.JSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) serveImageClose(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := s.Modal.Close(); err != nil {
		view.Fail(w, r, err, http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
