package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/blob"
	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/db"
	"github.com/debemdeboas/folio/internal/editor"
	"github.com/debemdeboas/folio/internal/latex"
	"github.com/debemdeboas/folio/internal/livepreview"
	"github.com/debemdeboas/folio/internal/logger"
	"github.com/debemdeboas/folio/internal/render"
	"github.com/debemdeboas/folio/internal/repository"
	"github.com/debemdeboas/folio/internal/routes"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/sse"
	"github.com/debemdeboas/folio/internal/theme"
	"github.com/debemdeboas/folio/internal/upload"
	"github.com/debemdeboas/folio/internal/util"
	"github.com/debemdeboas/folio/internal/view"
)

//go:embed static/* templates/*
var content embed.FS

const (
	janitorInterval = 5 * time.Minute
	editorIdle      = 12 * time.Hour
	panelIdle       = time.Hour
)

// app holds what the site handlers share.
type app struct {
	content  fs.FS
	view     *view.Renderer
	client   *api.Client
	posts    repository.PostRepository
	sessions *session.Manager
	events   *sse.SSEClients
	blobs    *blob.Store

	editors *editor.Registry
	latex   *latex.Handler
}

func newApp(fsys fs.FS, client *api.Client, posts repository.PostRepository, sessions *session.Manager, uploads upload.Uploader) *app {
	a := &app{
		content:  fsys,
		view:     view.New(fsys),
		client:   client,
		posts:    posts,
		sessions: sessions,
		events:   sse.NewSSEClients(),
		blobs:    blob.NewStore(),
	}
	a.editors = editor.NewRegistry(a.blobs, uploads, config.AppConfig.Upload.MaxBytes)
	a.latex = latex.NewHandler(a.blobs, a.view, a.events, config.AppConfig.Latex.Timeout)
	posts.SetReloadNotifier(a.notifyReload)
	return a
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+routes.RobotsPath, serveRobots)
	mux.HandleFunc("GET "+routes.ThemeOppositeIcon, serveThemeOppositeIcon)
	mux.HandleFunc("POST "+routes.ThemeToggle, serveThemeToggle)
	mux.HandleFunc("POST "+routes.SyntaxThemeSet, serveSyntaxThemeSet)
	mux.HandleFunc("GET "+routes.SyntaxThemeGet, serveSyntaxTheme)

	if static, err := fs.Sub(a.content, config.StaticLocalDir); err == nil {
		mux.Handle("GET "+config.StaticUrlPath, http.StripPrefix(config.StaticUrlPath, http.FileServer(http.FS(static))))
	}
	mux.Handle("GET "+config.BlobUrlPath, a.blobs)
	mux.Handle("GET "+routes.SSEPath, a.events)

	mux.HandleFunc("GET "+routes.RootPath, a.serveIndex)
	mux.HandleFunc("GET "+config.PostsUrlPath+"{slug}", a.servePost)
	mux.HandleFunc("GET "+routes.PartialsPost, a.servePostPartial)
	mux.HandleFunc("GET "+routes.Search, a.serveSearch)
	mux.HandleFunc("GET "+config.CategoriesUrlPath+"{$}", a.serveCategories)
	mux.HandleFunc("GET "+config.CategoriesUrlPath+"{key}", a.serveCategory)
	mux.HandleFunc("GET "+config.TagsUrlPath+"{$}", a.serveTags)
	mux.HandleFunc("GET "+config.TagsUrlPath+"{key}", a.serveTag)

	a.registerSocial(mux)

	auth.NewHandler(a.view).Register(mux)

	eh := editor.NewHandler(a.editors, a.view)
	eh.Register(mux)
	livepreview.NewServer(eh, config.AppConfig.Features.Editor.AutosaveInterval, config.AppConfig.Features.Editor.LivePreview).Register(mux)
	a.latex.Register(mux)

	var h http.Handler = auth.WithUser(mux)
	h = a.sessions.Middleware(h)
	h = secureHeaders(h)
	h = cacheIt(h)
	if config.AppConfig.Server.Compress {
		h = compress(h)
	}
	h = withRequestID(h)
	return h
}

// notifyReload tells open pages that posts changed.
func (a *app) notifyReload(slug string) {
	ev := sse.Event{Topic: sse.TopicPosts, Name: "reload", Data: "reload"}
	if slug != repository.ListSlug {
		ev.Topic = sse.PostTopic(slug)
	}
	a.events.Broadcast(ev)
}

// hashStatic records a content hash for every static file, used for cache
// busting and ETags.
func hashStatic(fsys fs.FS) error {
	static, err := fs.Sub(fsys, config.StaticLocalDir)
	if err != nil {
		return err
	}
	return fs.WalkDir(static, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(static, path)
		if err != nil {
			return err
		}
		cache.SetStaticHash(config.StaticUrlPath+path, util.ContentHash(data))
		return nil
	})
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l.With().Str("component", "config").Logger())
	db.SetLogger(l.With().Str("component", "db").Logger())
	api.SetLogger(l.With().Str("component", "api").Logger())
	session.SetLogger(l.With().Str("component", "session").Logger())
	repository.SetLogger(l.With().Str("component", "repository").Logger())
	render.SetLogger(l.With().Str("component", "render").Logger())
	editor.SetLogger(l.With().Str("component", "editor").Logger())
	upload.SetLogger(l.With().Str("component", "upload").Logger())
	latex.SetLogger(l.With().Str("component", "latex").Logger())
	livepreview.SetLogger(l.With().Str("component", "livepreview").Logger())
	sse.SetLogger(l.With().Str("component", "sse").Logger())
	view.SetLogger(l.With().Str("component", "view").Logger())
	auth.SetLogger(l.With().Str("component", "auth").Logger())
}

func main() {
	envErr := godotenv.Load()

	confPath := os.Getenv(config.EnvConfigPath)
	if confPath == "" {
		confPath = config.DefaultConfPath
	}
	if err := config.LoadConfig(confPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig

	l := logger.New(cfg.Logging.Level)
	setLoggers(l)
	if envErr != nil {
		l.Debug().Err(envErr).Msg("No .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hashStatic(content); err != nil {
		l.Fatal().Err(err).Msg("Failed to hash static files")
	}

	client := api.NewFromConfig()

	store, conn, err := session.NewStorage(cfg.Session)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to open session storage")
	}
	if conn != nil {
		defer conn.Close()
	}
	sessions := session.NewManager(store, client, session.Options{
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Session.Secure,
	})

	var snapshots *repository.SnapshotStore
	if conn != nil {
		snapshots = repository.NewSnapshotStore(conn)
	}
	posts, err := repository.New(cfg.Content, client, snapshots)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create post repository")
	}

	var uploads upload.Uploader
	if cfg.Upload.Backend == config.UploadBackendS3 {
		if uploads, err = upload.New(ctx, cfg.Upload, client); err != nil {
			l.Fatal().Err(err).Msg("Failed to configure image uploads")
		}
	}

	a := newApp(content, client, posts, sessions, uploads)

	go func() {
		if err := posts.Init(ctx); err != nil {
			l.Error().Err(err).Msg(config.ErrInitializingPosts)
		}
		l.Info().Int("posts", len(posts.Posts())).Str("source", cfg.Content.Source).Msg("Posts loaded")
		posts.RunReloader(ctx, cfg.Content.ReloadInterval)
	}()
	go sessions.RunJanitor(ctx, janitorInterval)
	go a.editors.RunJanitor(ctx, janitorInterval, editorIdle)
	go a.latex.Registry().RunJanitor(ctx, janitorInterval, panelIdle)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           logger.Middleware(l)(a.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			l.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	l.Info().Str("addr", srv.Addr).Str("backend", cfg.Backend.BaseURL).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Fatal().Err(err).Msg("Server failed")
	}
	l.Info().Msg("Server stopped")
}

// withRequestID forwards the request id to backend calls.
func withRequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := hlog.IDFromRequest(r); ok {
			r = r.WithContext(api.WithRequestID(r.Context(), id.String()))
		}
		h.ServeHTTP(w, r)
	})
}

// isStream reports whether r opens a long-lived connection.
func isStream(r *http.Request) bool {
	return r.URL.Path == routes.SSEPath || strings.HasPrefix(r.URL.Path, routes.WebSocketPrefix)
}

// compress gzips responses except event streams and websockets, which must
// not be buffered.
func compress(h http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStream(r) {
			h.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

func cacheIt(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCacheControl, "no-cache")
		w.Header().Set("Vary", "Cookie")

		// Add etag header to response if it's a static file
		if hash, ok := cache.GetStaticHash(r.URL.Path); ok {
			w.Header().Set(config.HCacheControl, "public, max-age=3600")
			w.Header().Set(config.HETag, hash)
			if r.Header.Get("If-None-Match") == hash {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		h.ServeHTTP(w, r)
	})
}

func secureHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != routes.RobotsPath {
			w.Header().Set("X-Frame-Options", "deny")
			w.Header().Set(config.HContentTypeOpt, "nosniff")
			w.Header().Set("Referrer-Policy", "same-origin")
		}
		h.ServeHTTP(w, r)
	})
}

func serveRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(config.HCType, config.CTypeText)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("User-agent: *\nDisallow: /editor\nDisallow: /profile\nDisallow: /auth/\n"))
}

func serveThemeOppositeIcon(w http.ResponseWriter, r *http.Request) {
	currTheme := r.URL.Query().Get("theme")
	if !theme.IsValidTheme(currTheme) {
		http.Error(w, "theme required", http.StatusBadRequest)
		return
	}

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(theme.GetThemeIcon(theme.Toggle(currTheme))))
}

func serveThemeToggle(w http.ResponseWriter, r *http.Request) {
	if !config.AppConfig.Theme.AllowSwitching {
		http.Error(w, "theme switching is disabled", http.StatusForbidden)
		return
	}
	newTheme := theme.Toggle(theme.GetThemeFromRequest(r))

	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieTheme,
		Value:    newTheme,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	syntaxTheme := theme.GetDefaultSyntaxTheme(newTheme)
	if cookie, err := r.Cookie(config.CookieSyntaxTheme); err == nil && theme.IsValidSyntaxTheme(cookie.Value) {
		syntaxTheme = cookie.Value
	}

	view.Trigger(w, map[string]any{
		"themeChanged": map[string]string{"value": newTheme, "syntaxTheme": syntaxTheme},
	})
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(theme.GetThemeIcon(newTheme)))
}

func serveSyntaxThemeSet(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("syntax-theme-select")
	if !theme.IsValidSyntaxTheme(name) {
		http.Error(w, "unknown syntax theme", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieSyntaxTheme,
		Value:    name,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeSyntaxCSS(w, name)
}

func serveSyntaxTheme(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("theme")
	if !theme.IsValidSyntaxTheme(name) {
		http.NotFound(w, r)
		return
	}
	writeSyntaxCSS(w, name)
}

func writeSyntaxCSS(w http.ResponseWriter, name string) {
	style := []byte(theme.GenerateSyntaxCSS(name))
	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, util.ContentHash(style))
	w.WriteHeader(http.StatusOK)
	w.Write(style)
}
