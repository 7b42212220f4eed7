package view

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/routes"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/rs/zerolog"
)

const (
	ToastInfo    = "info"
	ToastSuccess = "success"
	ToastError   = "error"
)

const LoginPath = routes.AuthLogin

type toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Toast asks the page to show a transient message. It must be called before
// the status is written.
func Toast(w http.ResponseWriter, level, message string) {
	Trigger(w, map[string]any{"toast": toast{Level: level, Message: message}})
}

// Trigger sets the htmx events fired when the response arrives.
func Trigger(w http.ResponseWriter, events map[string]any) {
	b, err := json.Marshal(events)
	if err != nil {
		viewLogger.Error().Err(err).Msg("Failed to encode htmx trigger")
		return
	}
	w.Header().Set(config.HHxTrigger, string(b))
}

func IsHTMX(r *http.Request) bool {
	return r.Header.Get(config.HHxRequest) != ""
}

// Redirect sends the browser to target, through htmx when it made the request.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMX(r) {
		w.Header().Set(config.HHxRedirect, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// LoginURL is the sign-in page that returns to next afterwards.
func LoginURL(next string) string {
	if next == "" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// RequestURL is the page the user is on: the htmx current URL when present.
func RequestURL(r *http.Request) string {
	if cur := r.Header.Get(config.HHxCurrentURL); cur != "" {
		if u, err := url.Parse(cur); err == nil {
			return u.RequestURI()
		}
	}
	return r.URL.RequestURI()
}

// Fail reports err to the user. An expired session is signed out and sent to
// the login page; anything else becomes an error toast with status.
func Fail(w http.ResponseWriter, r *http.Request, err error, status int) {
	log := zerolog.Ctx(r.Context())

	if errors.Is(err, api.ErrSessionExpired) {
		if s := session.FromContext(r.Context()); s != nil {
			if serr := s.SignOut(r.Context(), w); serr != nil {
				log.Error().Err(serr).Msg("Failed to clear expired session")
			}
		}
		Toast(w, ToastError, config.ErrSessionExpired)
		Redirect(w, r, LoginURL(RequestURL(r)))
		return
	}

	msg := api.Message(err)
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		log.Warn().Err(err).Int("status", apiErr.StatusCode).Msg("Backend rejected request")
	case status < http.StatusInternalServerError:
		// Our own validation, worded for the user
		msg = err.Error()
	default:
		log.Error().Err(err).Msg("Request failed")
	}

	Toast(w, ToastError, msg)
	w.WriteHeader(status)
}

// Status picks the response status for a backend error.
func Status(err error) int {
	switch {
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusForbidden
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		viewLogger.Error().Err(err).Msg("Failed to encode response")
	}
}
