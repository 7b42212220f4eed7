package editor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/upload"
	"github.com/rs/zerolog"
)

var editorLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

// Poster writes posts to the backend. *api.Client implements it.
type Poster interface {
	CreatePost(ctx context.Context, in *api.PostInput) (*model.Post, error)
	UpdatePost(ctx context.Context, slug string, in *api.PostInput) (*model.Post, error)
}

// Meta is the post form next to the text.
type Meta struct {
	Title      string  `json:"title"`
	Slug       string  `json:"slug"`
	Excerpt    string  `json:"excerpt"`
	CategoryID int64   `json:"category"`
	TagIDs     []int64 `json:"tags"`
}

func (m Meta) equal(o Meta) bool {
	return m.Title == o.Title && m.Slug == o.Slug && m.Excerpt == o.Excerpt &&
		m.CategoryID == o.CategoryID && slices.Equal(m.TagIDs, o.TagIDs)
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Selection Selection `json:"selection"`
	Meta      Meta      `json:"meta"`
	// Slug the post is stored under, empty until the first save.
	Slug     string    `json:"slug"`
	CoverURL string    `json:"cover_url,omitempty"`
	Draft    bool      `json:"draft"`
	Dirty    bool      `json:"dirty"`
	Rev      uint64    `json:"rev"`
	SavedAt  time.Time `json:"saved_at"`
}

// Editing reports whether the session updates an existing post.
func (s Snapshot) Editing() bool {
	return s.Slug != ""
}

// Session is one open editor: the buffer mirrored from the browser, the post
// form, and the image modal. All methods are safe for concurrent use.
type Session struct {
	ID    string
	Owner string
	Modal *upload.Modal

	poster  Poster
	toolbar *Toolbar
	submit  Submitter

	mu       sync.Mutex
	buf      *Buffer
	meta     Meta
	cover    *api.File
	coverURL string
	slug     string
	draft    bool
	dirty    bool
	rev      uint64
	savedAt  time.Time
	touched  time.Time
	watchers map[chan struct{}]struct{}
}

func NewSession(id, owner string, poster Poster, toolbar *Toolbar, modal *upload.Modal) *Session {
	return &Session{
		ID:       id,
		Owner:    owner,
		Modal:    modal,
		poster:   poster,
		toolbar:  toolbar,
		buf:      NewBuffer(""),
		draft:    true,
		touched:  time.Now(),
		watchers: make(map[chan struct{}]struct{}),
	}
}

// LoadPost fills the session from a stored post so saving updates it.
func (s *Session) LoadPost(p *model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = NewBuffer(p.Content)
	s.meta = Meta{Title: p.Title, Slug: p.Slug, Excerpt: p.Excerpt}
	if p.Category != nil {
		s.meta.CategoryID = p.Category.ID
	}
	for _, t := range p.Tags {
		s.meta.TagIDs = append(s.meta.TagIDs, t.ID)
	}
	if p.CoverImage != nil {
		s.coverURL = *p.CoverImage
	}
	s.slug = p.Slug
	s.draft = p.IsDraft || !p.IsPublished
	s.dirty = false
	s.rev++
	s.notifyLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        s.ID,
		Content:   s.buf.String(),
		Selection: s.buf.Selection(),
		Meta:      Meta{Title: s.meta.Title, Slug: s.meta.Slug, Excerpt: s.meta.Excerpt, CategoryID: s.meta.CategoryID, TagIDs: slices.Clone(s.meta.TagIDs)},
		Slug:      s.slug,
		CoverURL:  s.coverURL,
		Draft:     s.draft,
		Dirty:     s.dirty,
		Rev:       s.rev,
		SavedAt:   s.savedAt,
	}
}

// Sync replaces the buffer with the browser's textarea.
func (s *Session) Sync(content string, sel Selection) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	if content != s.buf.String() {
		s.buf.Reset(content, sel)
		s.changedLocked()
	} else {
		s.buf.Select(sel.Start, sel.End)
	}
	return s.snapshotLocked()
}

func (s *Session) SetMeta(m Meta) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	if !m.equal(s.meta) {
		s.meta = m
		s.dirty = true
	}
	return s.snapshotLocked()
}

// SetCover attaches a cover image to the next save.
func (s *Session) SetCover(f *api.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cover = f
	s.dirty = true
}

// Apply runs a toolbar action on the current selection.
func (s *Session) Apply(action string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	if _, err := s.toolbar.Apply(s.buf, action); err != nil {
		return s.snapshotLocked(), err
	}
	s.changedLocked()
	return s.snapshotLocked(), nil
}

// InsertFigure puts an uploaded image's markup at the cursor.
func (s *Session) InsertFigure(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Insert(tag, "")
	s.changedLocked()
}

// Slug is the slug images are uploaded under: the stored one, else the form's.
func (s *Session) Slug() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slug != "" {
		return s.slug
	}
	return s.meta.Slug
}

// Watch returns a channel signalled after every change to the text. Signals
// coalesce: a slow reader sees one pending signal, never a backlog.
func (s *Session) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
	}
}

func (s *Session) changedLocked() {
	s.dirty = true
	s.rev++
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Save submits the post, creating it on the first save and updating it after.
// It fails with ErrSubmitInFlight while another save runs.
func (s *Session) Save(ctx context.Context, draft bool) (*model.Post, error) {
	var post *model.Post
	ran, err := s.submit.TryRun(func() error {
		var err error
		post, err = s.save(ctx, draft)
		return err
	})
	if !ran {
		return nil, ErrSubmitInFlight
	}
	return post, err
}

func (s *Session) save(ctx context.Context, draft bool) (*model.Post, error) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	cover := s.cover
	s.mu.Unlock()

	if err := Validate(snap.Meta, snap.Content); err != nil {
		return nil, err
	}

	in := &api.PostInput{
		Title:      snap.Meta.Title,
		Slug:       snap.Meta.Slug,
		Content:    snap.Content,
		Excerpt:    snap.Meta.Excerpt,
		Draft:      draft,
		CategoryID: snap.Meta.CategoryID,
		TagIDs:     snap.Meta.TagIDs,
		Cover:      cover,
	}

	var (
		post *model.Post
		err  error
	)
	if snap.Slug != "" {
		post, err = s.poster.UpdatePost(ctx, snap.Slug, in)
	} else {
		post, err = s.poster.CreatePost(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slug = post.Slug
	if s.slug == "" {
		s.slug = snap.Meta.Slug
	}
	s.draft = draft
	s.savedAt = time.Now()
	if post.CoverImage != nil {
		s.coverURL = *post.CoverImage
	}
	if s.cover == cover {
		s.cover = nil
	}
	// Edits made while the request ran still need saving
	if s.rev == snap.Rev && s.meta.equal(snap.Meta) {
		s.dirty = false
	}
	return post, nil
}

// autosave saves silently when there is something worth saving. It reports
// whether a save ran.
func (s *Session) autosave(ctx context.Context) (bool, error) {
	snap := s.Snapshot()
	if !snap.Dirty || Validate(snap.Meta, snap.Content) != nil {
		return false, nil
	}

	ran, err := s.submit.TryRun(func() error {
		_, err := s.save(ctx, snap.Draft)
		return err
	})
	if !ran {
		editorLogger.Debug().Str("editor", s.ID).Msg("Save in flight, skipping autosave")
	}
	return ran && err == nil, err
}

// RunAutosave saves the session every interval until ctx is done. Failures
// are logged and never reach the author.
func (s *Session) RunAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := s.autosave(ctx)
			if err != nil {
				editorLogger.Warn().Err(err).Str("editor", s.ID).Msg("Autosave failed")
				continue
			}
			if saved {
				editorLogger.Debug().Str("editor", s.ID).Msg("Autosaved")
			}
		}
	}
}

// Close discards the session's pending image. It fails while an upload runs.
func (s *Session) Close() error {
	return s.Modal.Close()
}
