// Package repository keeps the list of published posts in memory and reloads
// it in the background from the backend or from a directory of Markdown files.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/util"
)

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

var ErrPostNotFound = errors.New("post not found")

// ListSlug is passed to the reload notifier when the listing itself changed.
const ListSlug = ""

type PostRepository interface {
	Init(ctx context.Context) error
	// Posts returns the cached published posts, newest first.
	Posts() []model.Post
	Post(ctx context.Context, slug string) (*model.Post, error)
	Reload(ctx context.Context) error
	RunReloader(ctx context.Context, interval time.Duration)

	// SetReloadNotifier sets a function that will be called with the slug of
	// every post whose content changed on reload, and with ListSlug when
	// posts were added or removed.
	SetReloadNotifier(notifier func(slug string))
}

// New returns the repository for the configured content source.
func New(cfg config.ContentConfig, fetch Fetcher, snapshots *SnapshotStore) (PostRepository, error) {
	switch cfg.Source {
	case config.ContentSourceAPI:
		return NewAPIPostRepository(fetch, snapshots), nil
	case config.ContentSourceFS:
		return NewFSPostRepository(cfg.PostsDir), nil
	}
	return nil, fmt.Errorf("unknown content source %q", cfg.Source)
}

// postCache is the state every repository shares: the sorted list and the
// same posts by slug.
type postCache struct {
	mu     sync.RWMutex
	sorted []model.Post
	bySlug map[string]*model.Post

	notifier func(string)
}

func newPostCache() postCache {
	return postCache{bySlug: make(map[string]*model.Post)}
}

func (c *postCache) SetReloadNotifier(notifier func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = notifier
}

func (c *postCache) Posts() []model.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sorted
}

func (c *postCache) cached(slug string) (*model.Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.bySlug[slug]
	return p, ok
}

// replace swaps in a freshly loaded list and reports what changed: the slugs
// whose content differs, and whether posts were added or removed.
func (c *postCache) replace(posts []model.Post) (changed []string, listChanged bool) {
	if posts == nil {
		posts = []model.Post{}
	}
	slices.SortStableFunc(posts, func(a, b model.Post) int {
		return b.Date().Compare(a.Date())
	})

	bySlug := make(map[string]*model.Post, len(posts))
	for i := range posts {
		p := &posts[i]
		if p.MDContentHash == "" {
			p.MDContentHash = util.ContentHashString(p.Content)
		}
		bySlug[p.Slug] = p
	}

	c.mu.Lock()
	prev := c.bySlug
	first := c.sorted == nil
	c.sorted = posts
	c.bySlug = bySlug
	notifier := c.notifier
	c.mu.Unlock()

	if first {
		return nil, false
	}

	listChanged = len(prev) != len(bySlug)
	for slug, p := range bySlug {
		old, ok := prev[slug]
		if !ok {
			listChanged = true
			continue
		}
		if old.MDContentHash != p.MDContentHash || old.Title != p.Title {
			changed = append(changed, slug)
		}
	}
	slices.Sort(changed)

	if notifier != nil {
		for _, slug := range changed {
			repoLogger.Info().Str("slug", slug).Msg("Post content changed, reloading")
			go notifier(slug)
		}
		if listChanged {
			repoLogger.Info().Int("posts", len(posts)).Msg("Posts have changed, updating listing")
			go notifier(ListSlug)
		}
	}
	return changed, listChanged
}

// runReloader calls reload every interval until ctx ends.
func runReloader(ctx context.Context, interval time.Duration, reload func(context.Context) error) {
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
			if err := reload(ctx); err != nil && ctx.Err() == nil {
				repoLogger.Error().Err(err).Msg(config.ErrReloadingPosts)
			}
		}
	}
}
