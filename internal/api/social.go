package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/debemdeboas/folio/internal/model"
)

func postQuery(key string, id model.PostID) url.Values {
	return url.Values{key: {strconv.FormatInt(int64(id), 10)}}
}

func (c *Client) Comments(ctx context.Context, slug string) ([]model.Comment, error) {
	var comments []model.Comment
	if err := c.get(ctx, "/comments/", url.Values{"post_slug": {slug}}, false, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, post model.PostID, content string) (*model.Comment, error) {
	var cm model.Comment
	in := map[string]any{"post": post, "content": content}
	if err := c.sendJSON(ctx, http.MethodPost, "/comments/", in, true, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) UpdateComment(ctx context.Context, id int64, content string) (*model.Comment, error) {
	var cm model.Comment
	path := "/comments/" + strconv.FormatInt(id, 10) + "/"
	if err := c.sendJSON(ctx, http.MethodPatch, path, map[string]string{"content": content}, true, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) DeleteComment(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, "/comments/"+strconv.FormatInt(id, 10)+"/", nil, true, nil)
}

func (c *Client) ToggleLike(ctx context.Context, post model.PostID) (*model.LikeStatus, error) {
	var st model.LikeStatus
	if err := c.sendJSON(ctx, http.MethodPost, "/likes/toggle/", map[string]any{"post": post}, true, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) LikeStatus(ctx context.Context, post model.PostID) (*model.LikeStatus, error) {
	var st model.LikeStatus
	if err := c.get(ctx, "/likes/status/", postQuery("post_id", post), true, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) ToggleBookmark(ctx context.Context, post model.PostID) (*model.BookmarkStatus, error) {
	var st model.BookmarkStatus
	if err := c.sendJSON(ctx, http.MethodPost, "/bookmarks/toggle/", map[string]any{"post": post}, true, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) BookmarkStatus(ctx context.Context, post model.PostID) (*model.BookmarkStatus, error) {
	var st model.BookmarkStatus
	if err := c.get(ctx, "/bookmarks/status/", postQuery("post_id", post), true, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Bookmarks lists the signed-in user's bookmarked posts.
func (c *Client) Bookmarks(ctx context.Context) ([]model.Bookmark, error) {
	var bms []model.Bookmark
	if err := c.get(ctx, "/bookmarks/", nil, true, &bms); err != nil {
		return nil, err
	}
	return bms, nil
}

func (c *Client) Subscribe(ctx context.Context, email, nickname string) error {
	in := map[string]string{"email": email}
	if nickname != "" {
		in["nickname"] = nickname
	}
	return c.sendJSON(ctx, http.MethodPost, "/newsletter/subscribe/", in, false, nil)
}
