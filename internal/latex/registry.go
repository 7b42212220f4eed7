package latex

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/debemdeboas/folio/internal/blob"
	"github.com/debemdeboas/folio/internal/cache"
)

type scope struct {
	owner string
	page  string
	key   string
}

// Registry keeps one panel per viewer, page and panel key. Panels are
// addressed by their id once created.
type Registry struct {
	blobs    *blob.Store
	onChange func(Snapshot)

	panels *cache.Cache[string, *Panel]

	mu     sync.Mutex
	scopes map[scope]string
}

func NewRegistry(blobs *blob.Store, onChange func(Snapshot)) *Registry {
	return &Registry{
		blobs:    blobs,
		onChange: onChange,
		panels:   cache.NewCache[string, *Panel](),
		scopes:   make(map[scope]string),
	}
}

// Panel returns the panel key on page for owner, creating it when needed.
// An existing panel compiles through c from now on.
func (r *Registry) Panel(owner, page, key string, c Compiler) *Panel {
	sc := scope{owner: owner, page: page, key: key}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.scopes[sc]; ok {
		if p, ok := r.panels.Get(id); ok {
			p.SetCompiler(c)
			return p
		}
	}

	p := NewPanel(uuid.NewString()[:12], key, owner, c, r.blobs, r.onChange)
	r.panels.Set(p.ID, p)
	r.scopes[sc] = p.ID
	return p
}

// Get returns panel id if owner holds it.
func (r *Registry) Get(id, owner string) (*Panel, bool) {
	p, ok := r.panels.Get(id)
	if !ok || p.Owner != owner {
		return nil, false
	}
	return p, true
}

// Remove closes panel id. It reports whether owner held it.
func (r *Registry) Remove(id, owner string) bool {
	p, ok := r.Get(id, owner)
	if !ok {
		return false
	}
	r.drop(p)
	return true
}

func (r *Registry) drop(p *Panel) {
	r.mu.Lock()
	for sc, id := range r.scopes {
		if id == p.ID {
			delete(r.scopes, sc)
			break
		}
	}
	r.mu.Unlock()

	r.panels.Delete(p.ID)
	p.Close()
}

func (r *Registry) Len() int {
	return r.panels.Len()
}

// Sweep closes panels idle since before idle ago. Compiling panels are kept.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	var stale []*Panel
	r.panels.Range(func(_ string, p *Panel) bool {
		if p.idleSince().Before(cutoff) {
			stale = append(stale, p)
		}
		return true
	})
	for _, p := range stale {
		r.drop(p)
	}
	return len(stale)
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
				latexLogger.Info().Int("closed", n).Msg("Closed idle latex panels")
			}
		}
	}
}
