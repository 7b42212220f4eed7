package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/util"
)

// FSPostRepository serves the Markdown files of one directory. Front matter
// supplies the post fields; files without it are published under their name.
type FSPostRepository struct { // implements PostRepository
	postCache

	postsPath string
	fsys      fs.FS
}

func NewFSPostRepository(postsPath string) *FSPostRepository {
	r := NewFSPostRepositoryFS(os.DirFS(postsPath))
	r.postsPath = postsPath
	return r
}

func NewFSPostRepositoryFS(fsys fs.FS) *FSPostRepository {
	return &FSPostRepository{
		postCache: newPostCache(),
		postsPath: ".",
		fsys:      fsys,
	}
}

func (r *FSPostRepository) Init(ctx context.Context) error {
	return r.Reload(ctx)
}

// ReadAll parses every Markdown file, drafts included, in directory order.
func (r *FSPostRepository) ReadAll() ([]model.Post, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.postsPath, err)
	}

	var posts []model.Post
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")

		mdContent, err := fs.ReadFile(r.fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		fileInfo, err := entry.Info()
		if err != nil {
			return nil, err
		}

		posts = append(posts, ParsePost(name, mdContent, fileInfo.ModTime()))
	}
	return posts, nil
}

func (r *FSPostRepository) Reload(ctx context.Context) error {
	all, err := r.ReadAll()
	if err != nil {
		return err
	}
	posts := make([]model.Post, 0, len(all))
	for _, p := range all {
		if p.Visible() {
			posts = append(posts, p)
		}
	}
	r.replace(posts)
	return nil
}

func (r *FSPostRepository) Post(_ context.Context, slug string) (*model.Post, error) {
	if post, ok := r.cached(slug); ok {
		cp := *post
		return &cp, nil
	}
	return nil, ErrPostNotFound
}

func (r *FSPostRepository) RunReloader(ctx context.Context, interval time.Duration) {
	runReloader(ctx, interval, r.Reload)
}

// ParsePost builds a post from a Markdown file named name.
func ParsePost(name string, md []byte, modified time.Time) model.Post {
	p := model.Post{
		Title:         name,
		Slug:          util.Slugify(name),
		Content:       string(md),
		IsPublished:   true,
		CreatedAt:     modified,
		UpdatedAt:     modified,
		MDContentHash: util.ContentHash(md),
	}

	info, err := util.GetFrontMatter(md)
	if err != nil {
		if !errors.Is(err, util.ErrNoFrontMatter) {
			repoLogger.Warn().Err(err).Str("post", name).Msg("Ignoring unreadable front matter")
		}
		return p
	}

	p.Info = info
	p.Content = string(util.StripFrontMatter(md))
	if info.Title != "" {
		p.Title = info.Title
	}
	if info.Slug != "" {
		p.Slug = info.Slug
	}
	p.Excerpt = info.Excerpt
	p.IsDraft = info.Draft
	p.IsPublished = !info.Draft
	if !info.Date.IsZero() {
		d := info.Date
		p.PublishedAt = &d
		p.CreatedAt = d
	}
	if c := info.Category(); c != "" {
		p.Category = &model.Category{Name: c, Slug: util.Slugify(c)}
	}
	for _, t := range info.Tags {
		p.Tags = append(p.Tags, model.Tag{Name: t, Slug: util.Slugify(t)})
	}
	if info.CoverImage != "" {
		cover := info.CoverImage
		p.CoverImage = &cover
	}
	return p
}
