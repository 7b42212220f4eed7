package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/render"
	"github.com/debemdeboas/folio/internal/repository"
	"github.com/debemdeboas/folio/internal/session"
	"github.com/debemdeboas/folio/internal/sse"
	"github.com/debemdeboas/folio/internal/theme"
	"github.com/debemdeboas/folio/internal/util"
)

// fromBackend reports whether social data and taxonomy come from the backend.
// A site serving a local directory has neither.
func fromBackend() bool {
	return config.AppConfig.Content.Source == config.ContentSourceAPI
}

func (a *app) pageData(r *http.Request, title string) *model.PageData {
	return model.NewPageData(r).WithUser(auth.UserFromContext(r.Context())).WithTitle(title)
}

type indexData struct {
	*model.PageData
	Featured *model.Post
	Posts    []model.Post
	Trending []model.Post
	Topic    string

	Page    int
	Pages   int
	PrevURL string
	NextURL string
}

func (a *app) serveIndex(w http.ResponseWriter, r *http.Request) {
	posts := a.posts.Posts()

	perPage := config.AppConfig.Content.PostsPerPage
	if perPage <= 0 {
		perPage = len(posts) + 1
	}
	pages := max(1, (len(posts)+perPage-1)/perPage)
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	if page > pages {
		http.NotFound(w, r)
		return
	}

	data := &indexData{
		PageData: a.pageData(r, ""),
		Trending: trending(posts, trendingLimit),
		Topic:    sse.TopicPosts,
		Page:     page,
		Pages:    pages,
	}
	start := (page - 1) * perPage
	end := min(len(posts), start+perPage)
	data.Posts = posts[start:end]
	if page == 1 && len(data.Posts) > 0 {
		data.Featured = &data.Posts[0]
		data.Posts = data.Posts[1:]
	}
	if page > 1 {
		data.PrevURL = "/?page=" + strconv.Itoa(page-1)
	}
	if page < pages {
		data.NextURL = "/?page=" + strconv.Itoa(page+1)
	}

	a.view.Page(w, r, config.TemplateIndex, data)
}

type postData struct {
	*model.PageData
	Post     *model.Post
	Body     template.HTML
	Headings []render.Heading
	Topic    string

	Likes      model.LikeStatus
	Bookmarked bool

	CommentsEnabled bool
	Comments        []model.Comment
}

// loadPost returns a post readers may see. Unpublished posts are shown to
// their author only.
func (a *app) loadPost(ctx context.Context, slug string) (*model.Post, error) {
	p, err := a.posts.Post(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.Visible() {
		u := auth.UserFromContext(ctx)
		if u == nil || u.Username != p.Author.Username {
			return nil, repository.ErrPostNotFound
		}
	}
	return p, nil
}

func (a *app) failPost(w http.ResponseWriter, r *http.Request, slug string, err error) {
	if errors.Is(err, repository.ErrPostNotFound) {
		http.NotFound(w, r)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Str("slug", slug).Msg("Failed to load post")
	http.Error(w, api.Message(err), http.StatusBadGateway)
}

func renderPost(r *http.Request, p *model.Post) ([]byte, *render.Meta) {
	hash := p.MDContentHash
	if hash == "" {
		hash = util.ContentHashString(p.Content)
	}
	return render.RenderMarkdownCached([]byte(p.Content), hash, theme.GetSyntaxThemeFromRequest(r))
}

func (a *app) servePost(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	p, err := a.loadPost(r.Context(), slug)
	if err != nil {
		a.failPost(w, r, slug, err)
		return
	}

	body, meta := renderPost(r, p)
	data := &postData{
		PageData:        a.pageData(r, p.GetTitle()),
		Post:            p,
		Body:            template.HTML(body),
		Headings:        meta.Headings,
		Topic:           sse.PostTopic(p.Slug),
		Likes:           model.LikeStatus{Liked: p.IsLiked, LikesCount: p.LikesCount},
		CommentsEnabled: config.AppConfig.Features.Comments.Enabled && fromBackend(),
		Comments:        p.Comments,
	}

	if fromBackend() {
		// Views are counted after the response no matter how the request ends
		go a.client.RecordView(context.WithoutCancel(r.Context()), p.Slug)
		a.loadSocial(r, data)
	}

	a.view.Page(w, r, config.TemplatePost, data)
}

// loadSocial fills in likes, bookmark and comments. Each part fails open: the
// page renders with what the post carried.
func (a *app) loadSocial(r *http.Request, data *postData) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)
	client := session.FromContext(ctx).API()
	signedIn := data.User != nil

	var g errgroup.Group
	if signedIn {
		g.Go(func() error {
			st, err := client.LikeStatus(ctx, data.Post.ID)
			if err != nil {
				log.Warn().Err(err).Str("slug", data.Post.Slug).Msg("Failed to load like status")
				return nil
			}
			data.Likes = *st
			return nil
		})
		g.Go(func() error {
			st, err := client.BookmarkStatus(ctx, data.Post.ID)
			if err != nil {
				log.Warn().Err(err).Str("slug", data.Post.Slug).Msg("Failed to load bookmark status")
				return nil
			}
			data.Bookmarked = st.Bookmarked
			return nil
		})
	}
	if data.CommentsEnabled && len(data.Comments) == 0 {
		g.Go(func() error {
			comments, err := a.client.Comments(ctx, data.Post.Slug)
			if err != nil {
				log.Warn().Err(err).Str("slug", data.Post.Slug).Msg("Failed to load comments")
				return nil
			}
			data.Comments = comments
			return nil
		})
	}
	g.Wait()
}

// servePostPartial returns a post's rendered body with its title, for pages
// refreshing after a reload event.
func (a *app) servePostPartial(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("post")
	if slug == "" {
		http.NotFound(w, r)
		return
	}
	p, err := a.loadPost(r.Context(), slug)
	if err != nil {
		a.failPost(w, r, slug, err)
		return
	}

	body, _ := renderPost(r, p)
	w.Header().Set(config.HCType, config.CTypeHTML+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<title>%s</title>\n%s", template.HTMLEscapeString(p.GetTitle()), body)
}

type taxonomyData struct {
	*model.PageData
	Categories []model.Category
	Tags       []model.Tag
}

type listingData struct {
	*model.PageData
	Heading string
	Kind    string
	Posts   []model.Post
}

func (a *app) serveCategories(w http.ResponseWriter, r *http.Request) {
	data := &taxonomyData{PageData: a.pageData(r, "Categories")}
	if fromBackend() {
		cats, err := a.client.Categories(r.Context())
		if err == nil {
			data.Categories = cats
		} else {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Listing categories from cached posts")
		}
	}
	if data.Categories == nil {
		data.Categories = categoriesOf(a.posts.Posts())
	}
	a.view.Page(w, r, config.TemplateCategories, data)
}

func (a *app) serveTags(w http.ResponseWriter, r *http.Request) {
	data := &taxonomyData{PageData: a.pageData(r, "Tags")}
	if fromBackend() {
		tags, err := a.client.Tags(r.Context())
		if err == nil {
			data.Tags = tags
		} else {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Listing tags from cached posts")
		}
	}
	if data.Tags == nil {
		data.Tags = tagsOf(a.posts.Posts())
	}
	a.view.Page(w, r, config.TemplateTags, data)
}

func (a *app) serveCategory(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	posts := a.listing(r, api.PostFilter{Category: key}, func(p *model.Post) bool {
		return p.Category != nil && p.Category.Key() == key
	})
	name := key
	for i := range posts {
		if posts[i].Category != nil {
			name = posts[i].Category.Name
			break
		}
	}
	a.view.Page(w, r, config.TemplateListing, &listingData{
		PageData: a.pageData(r, name),
		Heading:  name,
		Kind:     "category",
		Posts:    posts,
	})
}

func (a *app) serveTag(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	has := func(p *model.Post) bool {
		return slices.ContainsFunc(p.Tags, func(t model.Tag) bool { return t.Key() == key })
	}
	posts := a.listing(r, api.PostFilter{Tag: key}, has)
	name := key
	for i := range posts {
		if j := slices.IndexFunc(posts[i].Tags, func(t model.Tag) bool { return t.Key() == key }); j >= 0 {
			name = posts[i].Tags[j].Name
			break
		}
	}
	a.view.Page(w, r, config.TemplateListing, &listingData{
		PageData: a.pageData(r, "#"+name),
		Heading:  "#" + name,
		Kind:     "tag",
		Posts:    posts,
	})
}

// listing asks the backend for the filtered posts and falls back to
// filtering the cached list.
func (a *app) listing(r *http.Request, f api.PostFilter, keep func(*model.Post) bool) []model.Post {
	if fromBackend() {
		posts, err := a.client.Posts(r.Context(), f)
		if err == nil {
			visible := make([]model.Post, 0, len(posts))
			for _, p := range posts {
				if p.Visible() {
					visible = append(visible, p)
				}
			}
			return visible
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Filtering cached posts")
	}

	var out []model.Post
	for _, p := range a.posts.Posts() {
		if keep(&p) {
			out = append(out, p)
		}
	}
	return out
}

func categoriesOf(posts []model.Post) []model.Category {
	counts := make(map[string]*model.Category)
	var order []string
	for _, p := range posts {
		if p.Category == nil {
			continue
		}
		key := p.Category.Key()
		c, ok := counts[key]
		if !ok {
			cp := *p.Category
			cp.Count = 0
			c = &cp
			counts[key] = c
			order = append(order, key)
		}
		c.Count++
	}
	out := make([]model.Category, 0, len(order))
	for _, k := range order {
		out = append(out, *counts[k])
	}
	slices.SortStableFunc(out, func(a, b model.Category) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

func tagsOf(posts []model.Post) []model.Tag {
	counts := make(map[string]*model.Tag)
	for _, p := range posts {
		for _, t := range p.Tags {
			tag, ok := counts[t.Key()]
			if !ok {
				cp := t
				cp.Count = 0
				tag = &cp
				counts[t.Key()] = tag
			}
			tag.Count++
		}
	}
	out := make([]model.Tag, 0, len(counts))
	for _, t := range counts {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b model.Tag) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

const (
	searchLimit   = 5
	trendingLimit = 5
)

// Field weights of a search hit. A title match outranks a category match,
// which outranks a match in the summary.
const (
	weightTitle    = 7
	weightCategory = 3
	weightSummary  = 2
)

type searchData struct {
	Query string
	Posts []model.Post
}

// searchPosts ranks posts by how many query terms they contain, weighted by
// the field each term was found in. Posts matching no term are left out and
// ties keep the order of posts.
func searchPosts(posts []model.Post, query string, limit int) []model.Post {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	type hit struct {
		post  model.Post
		score int
	}
	var hits []hit
	for _, p := range posts {
		title := strings.ToLower(p.GetTitle())
		category := strings.ToLower(p.CategoryName())
		summary := strings.ToLower(p.Summary(300))

		score := 0
		for _, t := range terms {
			if strings.Contains(title, t) {
				score += weightTitle
			}
			if strings.Contains(category, t) {
				score += weightCategory
			}
			if strings.Contains(summary, t) {
				score += weightSummary
			}
		}
		if score > 0 {
			hits = append(hits, hit{post: p, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return b.score - a.score })

	out := make([]model.Post, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		out = append(out, h.post)
	}
	return out
}

// serveSearch answers the header search box with the best matching posts.
func (a *app) serveSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := &searchData{Query: q}
	if q != "" {
		data.Posts = searchPosts(a.posts.Posts(), q, searchLimit)
	}
	a.view.Partial(w, r, "search-results", data)
}

// trending returns the most viewed posts, newest first among equal counts.
// Posts nobody has viewed are not trending.
func trending(posts []model.Post, limit int) []model.Post {
	var out []model.Post
	for _, p := range posts {
		if p.ViewCount > 0 {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Post) int {
		if a.ViewCount != b.ViewCount {
			return b.ViewCount - a.ViewCount
		}
		return b.Date().Compare(a.Date())
	})
	return out[:min(limit, len(out))]
}
