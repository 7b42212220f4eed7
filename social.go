package main

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/routes"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/view"
)

var (
	ErrEmptyComment  = errors.New("A comment cannot be empty")
	ErrInvalidEmail  = errors.New("Please enter a valid email address")
	ErrCommentsOff   = errors.New("Comments are disabled")
	ErrNewsletterOff = errors.New("The newsletter is disabled")
)

func (a *app) registerSocial(mux *http.ServeMux) {
	mux.HandleFunc("POST "+routes.LikePost, auth.RequireUser(a.serveToggleLike))
	mux.HandleFunc("POST "+routes.BookmarkPost, auth.RequireUser(a.serveToggleBookmark))
	mux.HandleFunc("POST "+routes.PostComments, auth.RequireUser(a.serveCreateComment))
	mux.HandleFunc("PATCH "+routes.Comment, auth.RequireUser(a.serveUpdateComment))
	mux.HandleFunc("DELETE "+routes.Comment, auth.RequireUser(a.serveDeleteComment))
	mux.HandleFunc("GET "+routes.Favorites, auth.RequireUser(a.serveFavorites))
	mux.HandleFunc("POST "+routes.Newsletter, a.serveSubscribe)
}

type likeData struct {
	Slug string
	model.LikeStatus
}

type bookmarkData struct {
	Slug       string
	Bookmarked bool
}

type commentData struct {
	Slug string
	model.Comment
	Own bool
}

// socialPost resolves the post an action targets. It writes the failure
// itself and returns nil.
func (a *app) socialPost(w http.ResponseWriter, r *http.Request) *model.Post {
	if !fromBackend() {
		http.NotFound(w, r)
		return nil
	}
	slug := r.PathValue("slug")
	p, err := a.loadPost(r.Context(), slug)
	if err != nil {
		a.failPost(w, r, slug, err)
		return nil
	}
	return p
}

func (a *app) serveToggleLike(w http.ResponseWriter, r *http.Request) {
	p := a.socialPost(w, r)
	if p == nil {
		return
	}
	st, err := session.FromContext(r.Context()).API().ToggleLike(r.Context(), p.ID)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	a.view.Partial(w, r, "like-button", likeData{Slug: p.Slug, LikeStatus: *st})
}

func (a *app) serveToggleBookmark(w http.ResponseWriter, r *http.Request) {
	p := a.socialPost(w, r)
	if p == nil {
		return
	}
	st, err := session.FromContext(r.Context()).API().ToggleBookmark(r.Context(), p.ID)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	if st.Bookmarked {
		view.Toast(w, view.ToastSuccess, "Saved to your favorites")
	} else {
		view.Toast(w, view.ToastInfo, "Removed from your favorites")
	}
	a.view.Partial(w, r, "bookmark-button", bookmarkData{Slug: p.Slug, Bookmarked: st.Bookmarked})
}

func commentsEnabled(w http.ResponseWriter, r *http.Request) bool {
	if !config.AppConfig.Features.Comments.Enabled || !fromBackend() {
		view.Fail(w, r, ErrCommentsOff, http.StatusNotFound)
		return false
	}
	return true
}

func commentContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	content := strings.TrimSpace(r.FormValue("content"))
	if content == "" {
		view.Fail(w, r, ErrEmptyComment, http.StatusBadRequest)
		return "", false
	}
	return content, true
}

func commentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (a *app) serveCreateComment(w http.ResponseWriter, r *http.Request) {
	if !commentsEnabled(w, r) {
		return
	}
	content, ok := commentContent(w, r)
	if !ok {
		return
	}
	p := a.socialPost(w, r)
	if p == nil {
		return
	}

	c, err := session.FromContext(r.Context()).API().CreateComment(r.Context(), p.ID, content)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("slug", p.Slug).Int64("comment", c.ID).Msg("Comment posted")
	a.view.Partial(w, r, "comment", commentData{Slug: p.Slug, Comment: *c, Own: true})
}

func (a *app) serveUpdateComment(w http.ResponseWriter, r *http.Request) {
	if !commentsEnabled(w, r) {
		return
	}
	id, ok := commentID(w, r)
	if !ok {
		return
	}
	content, ok := commentContent(w, r)
	if !ok {
		return
	}

	c, err := session.FromContext(r.Context()).API().UpdateComment(r.Context(), id, content)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	a.view.Partial(w, r, "comment", commentData{Slug: r.FormValue("slug"), Comment: *c, Own: true})
}

func (a *app) serveDeleteComment(w http.ResponseWriter, r *http.Request) {
	if !commentsEnabled(w, r) {
		return
	}
	id, ok := commentID(w, r)
	if !ok {
		return
	}
	if err := session.FromContext(r.Context()).API().DeleteComment(r.Context(), id); err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	view.Toast(w, view.ToastInfo, "Comment deleted")
	// htmx swaps the comment out with the empty body
	w.WriteHeader(http.StatusOK)
}

type favoritesData struct {
	*model.PageData
	Bookmarks []model.Bookmark
}

func (a *app) serveFavorites(w http.ResponseWriter, r *http.Request) {
	if !fromBackend() {
		http.NotFound(w, r)
		return
	}
	bookmarks, err := session.FromContext(r.Context()).API().Bookmarks(r.Context())
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	a.view.Page(w, r, config.TemplateFavorites, &favoritesData{
		PageData:  a.pageData(r, "Favorites"),
		Bookmarks: bookmarks,
	})
}

func (a *app) serveSubscribe(w http.ResponseWriter, r *http.Request) {
	if !config.AppConfig.Features.Newsletter.Enabled || !fromBackend() {
		view.Fail(w, r, ErrNewsletterOff, http.StatusNotFound)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		view.Fail(w, r, ErrInvalidEmail, http.StatusBadRequest)
		return
	}

	if err := a.client.Subscribe(r.Context(), email, strings.TrimSpace(r.FormValue("nickname"))); err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	view.Toast(w, view.ToastSuccess, "Thanks for subscribing!")
	w.WriteHeader(http.StatusNoContent)
}
