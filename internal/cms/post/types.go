package post

import (
	"time"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/sanitize"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 50
	minTitleLen  = 3
)

// CreateInput carries the fields of a new post. Either Content (HTML) or
// Markdown must be set; Content wins when both are.
type CreateInput struct {
	Title              string     `json:"title"`
	Content            string     `json:"content"`
	Markdown           string     `json:"markdown,omitempty"`
	Excerpt            *string    `json:"excerpt,omitempty"`
	FeaturedImage      *string    `json:"featuredImage,omitempty"`
	Published          bool       `json:"published"`
	ScheduledPublishAt *time.Time `json:"scheduledPublishAt,omitempty"`
	MetaTitle          *string    `json:"metaTitle,omitempty"`
	MetaDescription    *string    `json:"metaDescription,omitempty"`
	OgTitle            *string    `json:"ogTitle,omitempty"`
	OgDescription      *string    `json:"ogDescription,omitempty"`
	OgImage            *string    `json:"ogImage,omitempty"`
	CategoryIDs        []string   `json:"categoryIds,omitempty"`
	TagIDs             []string   `json:"tagIds,omitempty"`
}

// UpdateInput carries a partial update. A nil field is left unchanged.
// CategoryIDs and TagIDs replace the whole set when non-nil; an empty
// slice clears it.
type UpdateInput struct {
	Title              *string    `json:"title,omitempty"`
	Content            *string    `json:"content,omitempty"`
	Markdown           *string    `json:"markdown,omitempty"`
	Excerpt            *string    `json:"excerpt,omitempty"`
	FeaturedImage      *string    `json:"featuredImage,omitempty"`
	Published          *bool      `json:"published,omitempty"`
	ScheduledPublishAt *time.Time `json:"scheduledPublishAt,omitempty"`
	// ClearSchedule drops a pending scheduled publish time.
	ClearSchedule   bool     `json:"clearSchedule,omitempty"`
	MetaTitle       *string  `json:"metaTitle,omitempty"`
	MetaDescription *string  `json:"metaDescription,omitempty"`
	OgTitle         *string  `json:"ogTitle,omitempty"`
	OgDescription   *string  `json:"ogDescription,omitempty"`
	OgImage         *string  `json:"ogImage,omitempty"`
	CategoryIDs     []string `json:"categoryIds"`
	TagIDs          []string `json:"tagIds"`
	// ExpectedVersion enables the optimistic concurrency check.
	ExpectedVersion *int `json:"expectedVersion,omitempty"`
}

// Actor is the caller of a mutation.
type Actor struct {
	UserID string
	Role   string
}

// CanEdit reports whether the actor may mutate a post owned by authorID.
func (a Actor) CanEdit(authorID string) bool {
	return a.Role == model.RoleAdmin || (a.UserID != "" && a.UserID == authorID)
}

// ListFilter selects a page of posts. Zero values mean "no filter".
type ListFilter struct {
	Page       int
	Limit      int
	Published  *bool
	AuthorID   string
	CategoryID string
	// DraftsOf limits unpublished posts to this author when set.
	DraftsOf string
}

func (f ListFilter) unfiltered() bool {
	return f.Published == nil && f.AuthorID == "" && f.CategoryID == "" && f.DraftsOf == ""
}

// SearchFilter is a ListFilter plus the user query.
type SearchFilter struct {
	Query      string
	Page       int
	Limit      int
	Published  *bool
	AuthorID   string
	CategoryID string
	DraftsOf   string
}

func (f SearchFilter) list() ListFilter {
	return ListFilter{
		Page:       f.Page,
		Limit:      f.Limit,
		Published:  f.Published,
		AuthorID:   f.AuthorID,
		CategoryID: f.CategoryID,
		DraftsOf:   f.DraftsOf,
	}
}

// normalizePage applies the pagination defaults and bounds.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := 0
	if total > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ListResult is a page of posts.
type ListResult struct {
	Items      []View     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// AuthorView is the public part of the author.
type AuthorView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TermView is a category or tag attached to a post.
type TermView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// View is the read model of a post.
type View struct {
	ID                 string             `json:"id"`
	Slug               string             `json:"slug"`
	Title              string             `json:"title"`
	Content            string             `json:"content"`
	Excerpt            *string            `json:"excerpt,omitempty"`
	FeaturedImage      *string            `json:"featuredImage,omitempty"`
	ReadingTime        int                `json:"readingTime"`
	Published          bool               `json:"published"`
	PublishedAt        *time.Time         `json:"publishedAt,omitempty"`
	ScheduledPublishAt *time.Time         `json:"scheduledPublishAt,omitempty"`
	State              model.PostState    `json:"state"`
	MetaTitle          *string            `json:"metaTitle,omitempty"`
	MetaDescription    *string            `json:"metaDescription,omitempty"`
	OgTitle            *string            `json:"ogTitle,omitempty"`
	OgDescription      *string            `json:"ogDescription,omitempty"`
	OgImage            *string            `json:"ogImage,omitempty"`
	Version            int                `json:"version"`
	AuthorID           string             `json:"authorId"`
	Author             AuthorView         `json:"author"`
	Categories         []TermView         `json:"categories"`
	Tags               []TermView         `json:"tags"`
	ViewCount          int64              `json:"viewCount"`
	CommentCount       int64              `json:"commentCount"`
	TOC                []sanitize.TOCItem `json:"toc,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}
