package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
)

// Fetcher is the part of the backend client the repository reads from.
type Fetcher interface {
	PublishedPosts(ctx context.Context) ([]model.Post, error)
	Post(ctx context.Context, slug string) (*model.Post, error)
}

// APIPostRepository mirrors the backend's published posts. When snapshots is
// set, every successful load is saved locally and serves as the listing
// while the backend is unreachable at startup.
type APIPostRepository struct { // implements PostRepository
	postCache

	fetch     Fetcher
	snapshots *SnapshotStore
}

func NewAPIPostRepository(fetch Fetcher, snapshots *SnapshotStore) *APIPostRepository {
	return &APIPostRepository{
		postCache: newPostCache(),
		fetch:     fetch,
		snapshots: snapshots,
	}
}

func (r *APIPostRepository) Init(ctx context.Context) error {
	err := r.Reload(ctx)
	if err == nil || r.snapshots == nil {
		return err
	}

	posts, serr := r.snapshots.Load(ctx)
	if serr != nil || len(posts) == 0 {
		return errors.Join(err, serr)
	}
	repoLogger.Warn().Err(err).Int("posts", len(posts)).Msg("Backend unavailable, serving the saved post snapshot")
	r.replace(posts)
	return nil
}

func (r *APIPostRepository) Reload(ctx context.Context) error {
	posts, err := r.fetch.PublishedPosts(ctx)
	if err != nil {
		return fmt.Errorf(config.ErrGetPostsFmt, err)
	}
	r.replace(posts)

	if r.snapshots != nil {
		if err := r.snapshots.Save(ctx, r.Posts()); err != nil {
			repoLogger.Warn().Err(err).Msg("Failed to save post snapshot")
		}
	}
	return nil
}

// Post asks the backend first so counters and comments are current. The
// cached copy answers when the backend cannot.
func (r *APIPostRepository) Post(ctx context.Context, slug string) (*model.Post, error) {
	p, err := r.fetch.Post(ctx, slug)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, api.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if cached, ok := r.cached(slug); ok {
		repoLogger.Warn().Err(err).Str("slug", slug).Msg("Serving cached post")
		cp := *cached
		return &cp, nil
	}
	return nil, err
}

func (r *APIPostRepository) RunReloader(ctx context.Context, interval time.Duration) {
	runReloader(ctx, interval, r.Reload)
}
