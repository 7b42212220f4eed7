package upload

import (
	"context"
	"fmt"
	"html"
	"sync"

	"github.com/google/uuid"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/blob"
)

// Target receives the figure markup of a finished upload.
type Target interface {
	InsertFigure(tag string)
}

// State is what the modal shows.
type State struct {
	Open       bool
	FileName   string
	Alt        string
	PreviewURL string
	Uploading  bool
	Err        string
}

// Modal is the image dialog of one editor. Selecting a file previews it
// from a blob; submitting uploads it and inserts a figure into the target.
type Modal struct {
	mu        sync.Mutex
	uploader  Uploader
	maxBytes  int
	preview   *blob.Slot
	open      bool
	file      *api.File
	alt       string
	uploading bool
	lastErr   error
}

func NewModal(up Uploader, previews *blob.Store, maxBytes int) *Modal {
	return &Modal{
		uploader: up,
		maxBytes: maxBytes,
		preview:  previews.NewSlot(),
	}
}

func (m *Modal) Open() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return m.stateLocked()
}

func (m *Modal) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Modal) stateLocked() State {
	st := State{
		Open:       m.open,
		Alt:        m.alt,
		PreviewURL: m.preview.URL(),
		Uploading:  m.uploading,
	}
	if m.file != nil {
		st.FileName = m.file.Name
	}
	if m.lastErr != nil {
		st.Err = m.lastErr.Error()
	}
	return st
}

// Select validates f and makes it the pending image. The previous preview
// is released and the alt text defaults to the file name.
func (m *Modal) Select(f api.File) (State, error) {
	if err := Validate(&f, m.maxBytes); err != nil {
		return m.State(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploading {
		return m.stateLocked(), ErrUploadInFlight
	}
	m.preview.Replace(f.Name, f.ContentType, f.Data)
	m.open = true
	m.file = &f
	m.alt = DefaultAlt(f.Name)
	m.lastErr = nil
	return m.stateLocked(), nil
}

func (m *Modal) SetAlt(alt string) {
	m.mu.Lock()
	m.alt = alt
	m.mu.Unlock()
}

// Submit uploads the pending image for the post slug and inserts its figure
// into target. A failed upload keeps the image so it can be retried.
func (m *Modal) Submit(ctx context.Context, slug string, target Target) (string, error) {
	m.mu.Lock()
	if m.uploading {
		m.mu.Unlock()
		return "", ErrUploadInFlight
	}
	if m.file == nil {
		m.mu.Unlock()
		return "", ErrNoFile
	}
	f, alt := *m.file, m.alt
	m.uploading = true
	m.lastErr = nil
	m.mu.Unlock()

	url, err := m.uploader.Upload(ctx, f, slug)

	m.mu.Lock()
	m.uploading = false
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		uploadLogger.Warn().Err(err).Str("file", f.Name).Msg("Image upload failed")
		return "", fmt.Errorf("uploading %s: %w", f.Name, err)
	}
	m.resetLocked()
	m.open = false
	m.mu.Unlock()

	tag := FigureTag(NewFigureID(), url, alt)
	target.InsertFigure(tag)
	return tag, nil
}

// Close dismisses the modal and discards the pending image. It is refused
// while an upload runs.
func (m *Modal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploading {
		return ErrUploadInFlight
	}
	m.resetLocked()
	m.open = false
	return nil
}

func (m *Modal) resetLocked() {
	m.preview.Release()
	m.file = nil
	m.alt = ""
	m.lastErr = nil
}

// NewFigureID returns a fresh fig-<random> id for an inserted image.
func NewFigureID() string {
	return "fig-" + uuid.New().String()[:8]
}

func FigureTag(id, src, alt string) string {
	return fmt.Sprintf(`<img id="%s" src="%s" alt="%s" />`, html.EscapeString(id), html.EscapeString(src), html.EscapeString(alt))
}
