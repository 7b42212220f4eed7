package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
)

// PostFilter narrows the post listing. Empty fields are ignored.
type PostFilter struct {
	Category string
	Tag      string
}

func (f PostFilter) query() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	return q
}

func (c *Client) Posts(ctx context.Context, f PostFilter) ([]model.Post, error) {
	var posts []model.Post
	if err := c.get(ctx, "/posts/", f.query(), false, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// PublishedPosts lists the posts readers may see, in backend order.
func (c *Client) PublishedPosts(ctx context.Context) ([]model.Post, error) {
	posts, err := c.Posts(ctx, PostFilter{})
	if err != nil {
		return nil, err
	}
	visible := posts[:0]
	for _, p := range posts {
		if p.Visible() {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// AllPosts lists every post the caller may see, drafts and archived posts
// included.
func (c *Client) AllPosts(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if err := c.get(ctx, "/posts/", nil, true, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

type statusInput struct {
	IsDraft     bool `json:"is_draft"`
	IsPublished bool `json:"is_published"`
	IsArchived  bool `json:"is_archived"`
}

// UpdatePostStatus switches a post to draft, published or archived.
func (c *Client) UpdatePostStatus(ctx context.Context, slug string, status model.PostStatus) (*model.Post, error) {
	in := statusInput{
		IsDraft:     status == model.PostDraft,
		IsPublished: status == model.PostPublished,
		IsArchived:  status == model.PostArchived,
	}
	var p model.Post
	if err := c.sendJSON(ctx, http.MethodPatch, "/posts/"+url.PathEscape(slug)+"/", in, true, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FeaturedPost is the first published post, or nil when there is none.
func (c *Client) FeaturedPost(ctx context.Context) (*model.Post, error) {
	posts, err := c.PublishedPosts(ctx)
	if err != nil || len(posts) == 0 {
		return nil, err
	}
	return &posts[0], nil
}

func (c *Client) Post(ctx context.Context, slug string) (*model.Post, error) {
	var p model.Post
	if err := c.get(ctx, "/posts/"+url.PathEscape(slug)+"/", nil, true, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PostInput is the editable part of a post as submitted by the editor.
type PostInput struct {
	Title   string
	Slug    string
	Content string
	Excerpt string
	Draft   bool
	// Zero means no category.
	CategoryID int64
	TagIDs     []int64
	Cover      *File
}

func (in *PostInput) form() *Form {
	f := &Form{}
	f.Set("title", in.Title).
		Set("slug", in.Slug).
		Set("content", in.Content).
		Set("excerpt", in.Excerpt).
		Set("is_draft", strconv.FormatBool(in.Draft)).
		Set("is_published", strconv.FormatBool(!in.Draft)).
		Set("is_archived", "false")
	if in.CategoryID != 0 {
		f.Set("categories", strconv.FormatInt(in.CategoryID, 10))
	}
	for _, id := range in.TagIDs {
		f.Set("tags", strconv.FormatInt(id, 10))
	}
	if in.Cover != nil {
		f.Attach("cover_image", *in.Cover)
	}
	return f
}

func (c *Client) CreatePost(ctx context.Context, in *PostInput) (*model.Post, error) {
	var p model.Post
	if err := c.sendForm(ctx, http.MethodPost, "/posts/", in.form(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdatePost(ctx context.Context, slug string, in *PostInput) (*model.Post, error) {
	var p model.Post
	if err := c.sendForm(ctx, http.MethodPatch, "/posts/"+url.PathEscape(slug)+"/", in.form(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordView counts a page view. Failures are logged and otherwise ignored.
func (c *Client) RecordView(ctx context.Context, slug string) {
	err := c.doJSON(ctx, &request{method: http.MethodPost, path: "/posts/" + url.PathEscape(slug) + "/view/"}, nil)
	if err != nil {
		apiLogger.Warn().Err(err).Str("slug", slug).Msg("Failed to record post view")
	}
}

// CompileLatex sends source to the backend compiler and returns the PDF.
// A failed compilation is an *Error whose Log holds the compiler output.
func (c *Client) CompileLatex(ctx context.Context, code, lang string) ([]byte, error) {
	r := &request{method: http.MethodPost, path: "/posts/compile_latex/", auth: true}
	body, err := jsonBody(map[string]string{"code": code, "lang": lang})
	if err != nil {
		return nil, err
	}
	r.body, r.contentType = body, config.CTypeJSON

	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// UploadImage stores an image for the post identified by slug and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, f File, slug string) (string, error) {
	form := (&Form{}).Attach("image", f)
	if slug != "" {
		form.Set("slug", slug)
	}

	var out struct {
		Image string `json:"image"`
		URL   string `json:"url"`
	}
	if err := c.sendForm(ctx, http.MethodPost, "/upload/", form, &out); err != nil {
		return "", err
	}
	if out.Image != "" {
		return out.Image, nil
	}
	return out.URL, nil
}
