package editor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/blob"
	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/upload"
)

// Registry holds the open editor sessions by id.
type Registry struct {
	sessions *cache.Cache[string, *Session]
	toolbar  *Toolbar
	previews *blob.Store
	uploads  upload.Uploader
	maxBytes int
}

// NewRegistry returns an empty registry. A nil uploader sends images through
// the backend with the author's credentials.
func NewRegistry(previews *blob.Store, uploads upload.Uploader, maxBytes int) *Registry {
	return &Registry{
		sessions: cache.NewCache[string, *Session](),
		toolbar:  DefaultToolbar(),
		previews: previews,
		uploads:  uploads,
		maxBytes: maxBytes,
	}
}

func (r *Registry) Toolbar() *Toolbar {
	return r.toolbar
}

// Create opens a session for owner that saves through client.
func (r *Registry) Create(owner string, client *api.Client) *Session {
	up := r.uploads
	if up == nil {
		up = upload.NewAPIUploader(client)
	}
	s := NewSession(uuid.New().String(), owner, client, r.toolbar, upload.NewModal(up, r.previews, r.maxBytes))
	r.sessions.Set(s.ID, s)
	editorLogger.Debug().Str("editor", s.ID).Str("owner", owner).Msg("Editor session opened")
	return s
}

// Get returns the session id if owner opened it.
func (r *Registry) Get(id, owner string) (*Session, bool) {
	s, ok := r.sessions.Get(id)
	if !ok || s.Owner != owner {
		return nil, false
	}
	return s, true
}

func (r *Registry) Remove(id string) {
	s, ok := r.sessions.Take(id)
	if !ok {
		return
	}
	if err := s.Close(); err != nil {
		editorLogger.Warn().Err(err).Str("editor", id).Msg("Closed editor with an upload running")
	}
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Sweep closes sessions untouched since before idle ago. Sessions with a save
// or upload in flight are kept for the next sweep.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	var stale []*Session
	r.sessions.Range(func(id string, s *Session) bool {
		if s.idleSince().Before(cutoff) && !s.submit.InFlight() {
			stale = append(stale, s)
		}
		return true
	})

	n := 0
	for _, s := range stale {
		if err := s.Close(); err != nil {
			continue
		}
		r.sessions.Delete(s.ID)
		n++
	}
	return n
}

func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				editorLogger.Info().Int("closed", n).Msg("Closed idle editor sessions")
			}
		}
	}
}
