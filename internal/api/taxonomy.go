package api

import (
	"context"
	"net/http"

	"github.com/debemdeboas/folio/internal/model"
)

func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var cats []model.Category
	if err := c.get(ctx, "/categories/", nil, false, &cats); err != nil {
		return nil, err
	}
	for i := range cats {
		cats[i].Slug = cats[i].Key()
	}
	return cats, nil
}

func (c *Client) Tags(ctx context.Context) ([]model.Tag, error) {
	var tags []model.Tag
	if err := c.get(ctx, "/tags/", nil, false, &tags); err != nil {
		return nil, err
	}
	for i := range tags {
		tags[i].Slug = tags[i].Key()
	}
	return tags, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	var cat model.Category
	if err := c.sendJSON(ctx, http.MethodPost, "/categories/", map[string]string{"name": name}, true, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) CreateTag(ctx context.Context, name string) (*model.Tag, error) {
	var tag model.Tag
	if err := c.sendJSON(ctx, http.MethodPost, "/tags/", map[string]string{"name": name}, true, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}
