package config

const (
	HCType          = "Content-Type"
	HETag           = "ETag"
	HCacheControl   = "Cache-Control"
	HAuthorization  = "Authorization"
	HContentDisp    = "Content-Disposition"
	HHxRedirect     = "Hx-Redirect"
	HHxTrigger      = "Hx-Trigger"
	HHxRequest      = "Hx-Request"
	HHxCurrentURL   = "Hx-Current-Url"
	HRequestID      = "X-Request-Id"
	HContentTypeOpt = "X-Content-Type-Options"

	CTypeCSS         = "text/css"
	CTypeHTML        = "text/html"
	CTypeJSON        = "application/json"
	CTypePDF         = "application/pdf"
	CTypeText        = "text/plain"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieTheme       = "theme"
	CookieSyntaxTheme = "syntax-theme"
	CookieViewerID    = "folio-viewer"
)

const (
	EnvBackendURL   = "FOLIO_API_URL"
	EnvLogLevel     = "FOLIO_LOG_LEVEL"
	EnvConfigPath   = "FOLIO_CONFIG"
	EnvS3AccessKey  = "FOLIO_S3_ACCESS_KEY_ID"
	EnvS3SecretKey  = "FOLIO_S3_SECRET_ACCESS_KEY"
	DefaultConfPath = "config.yaml"
)
