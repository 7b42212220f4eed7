// Package model defines the entities exchanged with the content backend and the page data shared by templates.
package model

import (
	"html/template"
	"strings"
	"time"

	"github.com/debemdeboas/folio/internal/util"
)

type PostID int64

// MaxTags is the most tags a post may carry.
const MaxTags = 5

type Post struct {
	ID          PostID  `json:"id"`
	UUID        string  `json:"uuid,omitempty"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Content     string  `json:"content"`
	Excerpt     string  `json:"excerpt"`
	CoverImage  *string `json:"cover_image"`
	IsDraft     bool    `json:"is_draft"`
	IsPublished bool    `json:"is_published"`
	IsArchived  bool    `json:"is_archived"`

	Author   User      `json:"author"`
	Category *Category `json:"category"`
	Tags     []Tag     `json:"tags"`

	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	ViewCount  int       `json:"view_count,omitempty"`
	LikesCount int       `json:"likes_count,omitempty"`
	IsLiked    bool      `json:"is_liked,omitempty"`
	Comments   []Comment `json:"comments,omitempty"`

	// Rendered body, filled in by the page handlers.
	HTML template.HTML `json:"-"`

	// Used for cache busting.
	// We cannot use the content hash because the content is already rendered.
	MDContentHash string `json:"-"`

	// Optional data from Mmark front matter.
	Info *util.ExtendedTitleData `json:"-"`
}

// PostStatus is the publication state an author switches a post between.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "publish"
	PostArchived  PostStatus = "archive"
)

// PostStatuses lists every status in the order the manage page offers them.
var PostStatuses = []PostStatus{PostDraft, PostPublished, PostArchived}

func ParsePostStatus(s string) (PostStatus, bool) {
	switch st := PostStatus(s); st {
	case PostDraft, PostPublished, PostArchived:
		return st, true
	}
	return "", false
}

// Status folds the backend's three flags into one state. Archived wins over
// published, and anything else is a draft.
func (p *Post) Status() PostStatus {
	switch {
	case p.IsArchived:
		return PostArchived
	case p.IsPublished && !p.IsDraft:
		return PostPublished
	}
	return PostDraft
}

// Visible reports whether the post belongs on public listings.
func (p *Post) Visible() bool {
	return p.IsPublished && !p.IsDraft && !p.IsArchived
}

func (p *Post) GetTitle() string {
	if p.Info != nil && p.Info.Title != "" {
		var s strings.Builder

		if p.Info.SeriesInfo.Name != "" && p.Info.SeriesInfo.Value != "" {
			s.WriteString("[")
			s.WriteString(p.Info.SeriesInfo.Name)
			s.WriteString("-")
			s.WriteString(p.Info.SeriesInfo.Value)
			s.WriteString("] ")
		}

		s.WriteString(p.Info.Title)

		return s.String()
	}
	return p.Title
}

// Date is the date shown to readers: publication if known, creation otherwise.
func (p *Post) Date() time.Time {
	if p.PublishedAt != nil && !p.PublishedAt.IsZero() {
		return *p.PublishedAt
	}
	return p.CreatedAt
}

func (p *Post) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return p.Category.Name
}

// Summary returns the excerpt, or the first paragraph-ish slice of the body.
func (p *Post) Summary(max int) string {
	if p.Excerpt != "" {
		return p.Excerpt
	}
	s := strings.TrimSpace(p.Content)
	if i := strings.Index(s, "\n\n"); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if max > 0 && len(r) > max {
		return string(r[:max]) + "…"
	}
	return s
}
