package config

const (
	// Backend errors
	ErrBackendUnavailable = "The content service is unavailable, please try again later"
	ErrGetPostsFmt        = "Failed to get posts: %v"

	// Auth errors
	ErrLoginFailed         = "Login failed, check your username and password"
	ErrSessionExpired      = "Your session has expired, please sign in again"
	ErrNotAuthor           = "You do not have permission to open the editor"
	ErrInternalServerError = "Internal server error"

	// Editor errors
	ErrRequiredFields  = "Title, slug and content are required"
	ErrTooManyTags     = "A post may have at most 5 tags"
	ErrSubmitInFlight  = "A save is already in progress"
	ErrUploadFailed    = "Image upload failed, please retry"
	ErrUploadInFlight  = "An upload is already in progress"
	ErrCompileInFlight = "A compilation is already running"
	ErrUnknownStatus   = "Unknown post status"

	// Config errors
	ErrWriteConfigContentFmt = "Failed to write config content: %v"

	// Post processing errors
	ErrInitializingPosts = "Error initializing posts"
	ErrReloadingPosts    = "Error reloading posts"
)
