// Package routes defines the HTTP paths served by the site outside the
// editor and auth handlers.
package routes

// Chrome
const (
	RobotsPath        = "/robots.txt"
	ThemeOppositeIcon = "/theme/opposite-icon"
	ThemeToggle       = "/theme/toggle"
	SyntaxThemeSet    = "/syntax-theme/set"
	SyntaxThemeGet    = "/syntax-theme/{theme}"

	SSEPath = "/sse"
	// Prefix of the editor websocket channels.
	WebSocketPrefix = "/ws/"
)

// Reading
const (
	RootPath     = "/{$}"
	PartialsPost = "/partials/post"
	Search       = "/search"
	Favorites    = "/favorites"
	Newsletter   = "/newsletter"
)

// Reader actions on a post or comment
const (
	LikePost     = "/posts/{slug}/like"
	BookmarkPost = "/posts/{slug}/bookmark"
	PostComments = "/posts/{slug}/comments"
	Comment      = "/comments/{id}"
)

// Auth
const (
	AuthLogin = "/auth/login"
)
