// Package blob keeps short-lived binary objects (image previews, compiled PDFs)
// addressable by URL until their owner releases them.
package blob

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
)

type Blob struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
	Created     time.Time
}

// Store holds live blobs. Every blob created must eventually be revoked,
// usually through a Slot.
type Store struct {
	items *cache.Cache[string, *Blob]
}

func NewStore() *Store {
	return &Store{items: cache.NewCache[string, *Blob]()}
}

func (s *Store) Create(name, contentType string, data []byte) *Blob {
	b := &Blob{
		ID:          uuid.New().String(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Created:     time.Now(),
	}
	s.items.Set(b.ID, b)
	return b
}

func (s *Store) Get(id string) (*Blob, bool) {
	return s.items.Get(id)
}

// Revoke drops the blob. It reports whether the blob was still live.
func (s *Store) Revoke(id string) bool {
	_, ok := s.items.Take(id)
	return ok
}

func (s *Store) Len() int {
	return s.items.Len()
}

// URL returns the path the blob is served from.
func URL(id string) string {
	return config.BlobUrlPath + id
}

// ServeHTTP serves GET /blob/{id}.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, config.BlobUrlPath)
	b, ok := s.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set(config.HCType, b.ContentType)
	w.Header().Set(config.HCacheControl, "private, no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	if b.Name != "" {
		w.Header().Set(config.HContentDisp, `inline; filename="`+b.Name+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(b.Data)
	}
}

// Slot owns at most one blob at a time. Replacing or releasing the slot
// revokes the blob it held.
type Slot struct {
	mu    sync.Mutex
	store *Store
	cur   *Blob
}

func (s *Store) NewSlot() *Slot {
	return &Slot{store: s}
}

func (sl *Slot) Replace(name, contentType string, data []byte) *Blob {
	b := sl.store.Create(name, contentType, data)

	sl.mu.Lock()
	prev := sl.cur
	sl.cur = b
	sl.mu.Unlock()

	if prev != nil {
		sl.store.Revoke(prev.ID)
	}
	return b
}

func (sl *Slot) Current() (*Blob, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.cur, sl.cur != nil
}

// URL returns the served path of the current blob, or "".
func (sl *Slot) URL() string {
	if b, ok := sl.Current(); ok {
		return URL(b.ID)
	}
	return ""
}

func (sl *Slot) Release() {
	sl.mu.Lock()
	prev := sl.cur
	sl.cur = nil
	sl.mu.Unlock()

	if prev != nil {
		sl.store.Revoke(prev.ID)
	}
}
