package editor

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/view"
)

var ErrUnknownStatus = errors.New(config.ErrUnknownStatus)

type manageData struct {
	*model.PageData
	Posts []model.Post
}

// serveManage lists every post of the backend with its status, drafts and
// archived posts included.
func (h *Handler) serveManage(w http.ResponseWriter, r *http.Request) {
	posts, err := session.FromContext(r.Context()).API().AllPosts(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to list posts for management")
		http.Error(w, config.ErrBackendUnavailable, view.Status(err))
		return
	}

	pd := model.NewPageData(r).WithUser(auth.UserFromContext(r.Context())).WithTitle("Manage posts")
	w.Header().Set(config.HCacheControl, "no-store")
	h.view.Page(w, r, config.TemplateManage, &manageData{PageData: pd, Posts: posts})
}

// serveSetStatus switches one post to draft, published or archived and
// answers with its refreshed table row.
func (h *Handler) serveSetStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := model.ParsePostStatus(r.FormValue("status"))
	if !ok {
		view.Fail(w, r, ErrUnknownStatus, http.StatusBadRequest)
		return
	}

	slug := r.PathValue("slug")
	p, err := session.FromContext(r.Context()).API().UpdatePostStatus(r.Context(), slug, status)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("slug", slug).Str("status", string(status)).Msg("Post status changed")
	view.Toast(w, view.ToastSuccess, "Status updated")
	h.view.Partial(w, r, "manage-row", p)
}
