// Package upload stores editor images and inserts them into the document as
// numbered figures.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/rs/zerolog"
)

var uploadLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	uploadLogger = l
}

var (
	ErrNoFile          = errors.New("no image selected")
	ErrEmptyFile       = errors.New("image is empty")
	ErrTooLarge        = errors.New("image is too large")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrUploadInFlight  = errors.New(config.ErrUploadInFlight)
)

// Uploader stores an image and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, f api.File, slug string) (string, error)
}

type UploaderFunc func(ctx context.Context, f api.File, slug string) (string, error)

func (fn UploaderFunc) Upload(ctx context.Context, f api.File, slug string) (string, error) {
	return fn(ctx, f, slug)
}

// APIUploader hands images to the backend's upload endpoint.
type APIUploader struct {
	client *api.Client
}

func NewAPIUploader(c *api.Client) *APIUploader {
	return &APIUploader{client: c}
}

func (u *APIUploader) Upload(ctx context.Context, f api.File, slug string) (string, error) {
	url, err := u.client.UploadImage(ctx, f, slug)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("upload of %s returned no url", f.Name)
	}
	return url, nil
}

var allowedTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

// Validate checks an image before it is uploaded and fills in its content
// type when the browser left it blank.
func Validate(f *api.File, maxBytes int) error {
	if len(f.Data) == 0 {
		return ErrEmptyFile
	}
	if maxBytes > 0 && len(f.Data) > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, len(f.Data), maxBytes)
	}

	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(f.Data)
	}
	ct, _, _ = strings.Cut(ct, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ct == "text/xml" && strings.EqualFold(path.Ext(f.Name), ".svg") {
		ct = "image/svg+xml"
	}
	if _, ok := allowedTypes[ct]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	f.ContentType = ct
	return nil
}

// Extension is the file extension stored objects of contentType get.
func Extension(contentType string) string {
	return allowedTypes[contentType]
}

// DefaultAlt is the file name without its last extension. A name with no
// extension is used whole.
func DefaultAlt(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name
	}
	return name[:i]
}

// New returns the uploader the configuration selects.
func New(ctx context.Context, cfg config.UploadConfig, client *api.Client) (Uploader, error) {
	switch cfg.Backend {
	case config.UploadBackendS3:
		return NewS3Uploader(ctx, cfg.S3)
	case config.UploadBackendAPI, "":
		return NewAPIUploader(client), nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
}

// FormFile reads the multipart file in field. Reading stops one byte past the
// configured limit, which is enough for Validate to reject it.
func FormFile(r *http.Request, field string) (*api.File, error) {
	file, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrNoFile
		}
		return nil, err
	}
	defer file.Close()

	var src io.Reader = file
	if limit := int64(config.AppConfig.Upload.MaxBytes); limit > 0 {
		src = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hdr.Filename, err)
	}
	return &api.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get(config.HCType),
		Data:        data,
	}, nil
}
