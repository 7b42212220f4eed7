package config

const (
	SupportedVersion = "1"

	DefaultVersion             = "1"
	DefaultSiteName            = "Folio"
	DefaultServerHost          = "0.0.0.0"
	DefaultServerPort          = "12600"
	DefaultThemeAllowSwitching = true
	DefaultBackendBaseURL      = "http://localhost:8088/api"
	DefaultRenderEngine        = RendererMmark

	ContentSourceAPI = "api"
	ContentSourceFS  = "fs"

	SessionStoreSQLite = "sqlite"
	SessionStoreMemory = "memory"

	UploadBackendAPI = "api"
	UploadBackendS3  = "s3"
)
