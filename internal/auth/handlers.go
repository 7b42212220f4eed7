package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/upload"
	"github.com/debemdeboas/folio/internal/view"
)

var authLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	authLogger = l
}

// Forms shown by the auth page.
const (
	FormLogin    = "login"
	FormRegister = "register"
	FormForgot   = "forgot"
	FormReset    = "reset"
	FormNotice   = "notice"
)

var (
	ErrLoginFailed      = errors.New(config.ErrLoginFailed)
	ErrPasswordMismatch = errors.New("Passwords do not match")
	ErrMissingFields    = errors.New("Please fill in every field")
	ErrInvalidResetLink = errors.New("This password reset link is invalid")
)

type Handler struct {
	view *view.Renderer
}

func NewHandler(v *view.Renderer) *Handler {
	return &Handler{view: v}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/login", h.serveForm(FormLogin, "Sign in"))
	mux.HandleFunc("POST /auth/login", h.serveLogin)
	mux.HandleFunc("POST /auth/logout", h.serveLogout)
	mux.HandleFunc("GET /auth/register", h.serveForm(FormRegister, "Create an account"))
	mux.HandleFunc("POST /auth/register", h.serveRegister)
	mux.HandleFunc("GET /auth/verify-email", h.serveVerifyEmail)
	mux.HandleFunc("GET /auth/forgot-password", h.serveForm(FormForgot, "Reset your password"))
	mux.HandleFunc("POST /auth/forgot-password", h.serveForgotPassword)
	mux.HandleFunc("GET /auth/reset-password", h.serveForm(FormReset, "Choose a new password"))
	mux.HandleFunc("POST /auth/reset-password", h.serveResetPassword)

	mux.HandleFunc("GET /profile", RequireUser(h.serveProfile))
	mux.HandleFunc("POST /profile", RequireUser(h.serveUpdateProfile))
	mux.HandleFunc("POST /profile/password", RequireUser(h.serveChangePassword))
}

type formData struct {
	*model.PageData
	Form   string
	Next   string
	Error  string
	Notice string

	Username string
	Email    string
	UID      string
	Token    string
}

func (h *Handler) newForm(r *http.Request, form, title string) *formData {
	pd := model.NewPageData(r).WithUser(UserFromContext(r.Context())).WithTitle(title)
	return &formData{
		PageData: pd,
		Form:     form,
		Next:     SafeNext(r.FormValue("next")),
		UID:      r.FormValue("uid"),
		Token:    r.FormValue("token"),
	}
}

func (h *Handler) serveForm(form, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := h.newForm(r, form, title)
		if form == FormLogin && d.User != nil {
			http.Redirect(w, r, d.Next, http.StatusSeeOther)
			return
		}
		h.view.Page(w, r, config.TemplateAuth, d)
	}
}

// fail reports err as a toast to htmx forms and inline otherwise.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, d *formData, err error, status int) {
	if view.IsHTMX(r) || errors.Is(err, api.ErrSessionExpired) {
		view.Fail(w, r, err, status)
		return
	}
	d.Error = api.Message(err)
	var apiErr *api.Error
	if status < http.StatusInternalServerError && !errors.As(err, &apiErr) {
		d.Error = err.Error()
	}
	h.view.Page(w, r, config.TemplateAuth, d)
}

func (h *Handler) notice(w http.ResponseWriter, r *http.Request, title, msg string) {
	d := h.newForm(r, FormNotice, title)
	d.Notice = msg
	if view.IsHTMX(r) {
		view.Toast(w, view.ToastSuccess, msg)
	}
	h.view.Page(w, r, config.TemplateAuth, d)
}

func (h *Handler) serveLogin(w http.ResponseWriter, r *http.Request) {
	d := h.newForm(r, FormLogin, "Sign in")
	d.Username = strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if d.Username == "" || password == "" {
		h.fail(w, r, d, ErrMissingFields, http.StatusBadRequest)
		return
	}

	s := session.FromContext(r.Context())
	lr, err := s.API().Login(r.Context(), d.Username, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			zerolog.Ctx(r.Context()).Info().Str("username", d.Username).Int("status", apiErr.StatusCode).Msg("Login rejected")
			h.fail(w, r, d, ErrLoginFailed, http.StatusUnauthorized)
			return
		}
		h.fail(w, r, d, err, http.StatusBadGateway)
		return
	}

	if err := s.SignIn(r.Context(), w, lr); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to store session")
		h.fail(w, r, d, errors.New(config.ErrInternalServerError), http.StatusInternalServerError)
		return
	}
	authLogger.Info().Str("username", lr.Username).Msg("User signed in")
	view.Redirect(w, r, d.Next)
}

func (h *Handler) serveLogout(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	log := zerolog.Ctx(r.Context())

	if refresh := s.RefreshToken(r.Context()); refresh != "" {
		if err := s.API().Logout(r.Context(), refresh); err != nil {
			log.Warn().Err(err).Msg("Backend logout failed, clearing the local session anyway")
		}
	}
	if err := s.SignOut(r.Context(), w); err != nil {
		log.Error().Err(err).Msg("Failed to clear session")
	}
	view.Redirect(w, r, "/")
}

func (h *Handler) serveRegister(w http.ResponseWriter, r *http.Request) {
	d := h.newForm(r, FormRegister, "Create an account")
	in := &api.RegisterInput{
		Username:        strings.TrimSpace(r.FormValue("username")),
		Email:           strings.TrimSpace(r.FormValue("email")),
		Password:        r.FormValue("password"),
		PasswordConfirm: r.FormValue("password_confirm"),
	}
	d.Username, d.Email = in.Username, in.Email

	switch {
	case in.Username == "" || in.Email == "" || in.Password == "":
		h.fail(w, r, d, ErrMissingFields, http.StatusBadRequest)
		return
	case in.Password != in.PasswordConfirm:
		h.fail(w, r, d, ErrPasswordMismatch, http.StatusBadRequest)
		return
	}

	s := session.FromContext(r.Context())
	if _, err := s.API().Register(r.Context(), in); err != nil {
		h.fail(w, r, d, err, view.Status(err))
		return
	}
	authLogger.Info().Str("username", in.Username).Msg("User registered")

	lr, err := s.API().Login(r.Context(), in.Username, in.Password)
	if err != nil {
		// Accounts that must verify their email first cannot sign in yet
		zerolog.Ctx(r.Context()).Info().Err(err).Str("username", in.Username).Msg("Sign in after registration failed")
		h.notice(w, r, "Check your inbox", "Your account was created. Follow the link we emailed you, then sign in.")
		return
	}
	if err := s.SignIn(r.Context(), w, lr); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to store session")
		h.notice(w, r, "Account created", "Your account was created, please sign in.")
		return
	}
	view.Toast(w, view.ToastSuccess, "Welcome, "+in.Username)
	view.Redirect(w, r, d.Next)
}

func (h *Handler) serveVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		d := h.newForm(r, FormNotice, "Verify your email")
		h.fail(w, r, d, errors.New("The verification link is missing its token"), http.StatusBadRequest)
		return
	}
	if err := session.FromContext(r.Context()).API().VerifyEmail(r.Context(), token); err != nil {
		d := h.newForm(r, FormNotice, "Verify your email")
		h.fail(w, r, d, err, view.Status(err))
		return
	}
	h.notice(w, r, "Email verified", "Your email address is verified. You can sign in now.")
}

func (h *Handler) serveForgotPassword(w http.ResponseWriter, r *http.Request) {
	d := h.newForm(r, FormForgot, "Reset your password")
	d.Email = strings.TrimSpace(r.FormValue("email"))
	if d.Email == "" {
		h.fail(w, r, d, ErrMissingFields, http.StatusBadRequest)
		return
	}
	if err := session.FromContext(r.Context()).API().RequestPasswordReset(r.Context(), d.Email); err != nil {
		var apiErr *api.Error
		if !errors.As(err, &apiErr) {
			h.fail(w, r, d, err, http.StatusBadGateway)
			return
		}
		// Unknown addresses get the same answer as known ones
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("Password reset request rejected")
	}
	h.notice(w, r, "Check your inbox", "If an account uses that address, we sent it a link to reset the password.")
}

func (h *Handler) serveResetPassword(w http.ResponseWriter, r *http.Request) {
	d := h.newForm(r, FormReset, "Choose a new password")
	password := r.FormValue("password")
	switch {
	case d.UID == "" || d.Token == "":
		h.fail(w, r, d, ErrInvalidResetLink, http.StatusBadRequest)
		return
	case password == "":
		h.fail(w, r, d, ErrMissingFields, http.StatusBadRequest)
		return
	case password != r.FormValue("password_confirm"):
		h.fail(w, r, d, ErrPasswordMismatch, http.StatusBadRequest)
		return
	}

	err := session.FromContext(r.Context()).API().ConfirmPasswordReset(r.Context(), d.UID, d.Token, password)
	if err != nil {
		h.fail(w, r, d, err, view.Status(err))
		return
	}
	h.notice(w, r, "Password changed", "Your password was changed. You can sign in with it now.")
}

type profileData struct {
	*model.PageData
	Profile *model.User
}

func (h *Handler) serveProfile(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	u := UserFromContext(r.Context())

	fresh, err := s.API().Profile(r.Context())
	switch {
	case errors.Is(err, api.ErrSessionExpired):
		view.Fail(w, r, err, http.StatusUnauthorized)
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Showing the cached profile")
	default:
		if serr := s.SetUser(r.Context(), fresh); serr != nil {
			zerolog.Ctx(r.Context()).Warn().Err(serr).Msg("Failed to cache profile")
		}
		u = fresh
	}

	pd := model.NewPageData(r).WithUser(u).WithTitle("Profile")
	h.view.Page(w, r, config.TemplateProfile, &profileData{PageData: pd, Profile: u})
}

func (h *Handler) serveUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	}

	in := &api.ProfileInput{
		FirstName: strings.TrimSpace(r.FormValue("first_name")),
		LastName:  strings.TrimSpace(r.FormValue("last_name")),
		Email:     strings.TrimSpace(r.FormValue("email")),
		Bio:       strings.TrimSpace(r.FormValue("bio")),
	}
	avatar, err := upload.FormFile(r, "avatar")
	switch {
	case errors.Is(err, upload.ErrNoFile):
	case err != nil:
		view.Fail(w, r, err, http.StatusBadRequest)
		return
	default:
		if err := upload.Validate(avatar, config.AppConfig.Upload.MaxBytes); err != nil {
			view.Fail(w, r, err, http.StatusBadRequest)
			return
		}
		in.Avatar = avatar
	}

	s := session.FromContext(r.Context())
	u, err := s.API().UpdateProfile(r.Context(), in)
	if err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	if err := s.SetUser(r.Context(), u); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to cache profile")
	}
	view.Toast(w, view.ToastSuccess, "Profile updated")
	view.Redirect(w, r, "/profile")
}

func (h *Handler) serveChangePassword(w http.ResponseWriter, r *http.Request) {
	current := r.FormValue("old_password")
	next := r.FormValue("new_password")
	switch {
	case current == "" || next == "":
		view.Fail(w, r, ErrMissingFields, http.StatusBadRequest)
		return
	case next != r.FormValue("new_password_confirm"):
		view.Fail(w, r, ErrPasswordMismatch, http.StatusBadRequest)
		return
	}

	if err := session.FromContext(r.Context()).API().ChangePassword(r.Context(), current, next); err != nil {
		view.Fail(w, r, err, view.Status(err))
		return
	}
	view.Toast(w, view.ToastSuccess, "Password changed")
	w.WriteHeader(http.StatusNoContent)
}

// SafeNext keeps redirects on this site: anything but a local path becomes "/".
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	return next
}
