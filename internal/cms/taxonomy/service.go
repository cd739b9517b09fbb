// Package taxonomy manages categories and tags.
//
// Deletion is asymmetric: a category referenced by any post cannot be
// deleted, while deleting a tag detaches it from its posts first.
package taxonomy

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

// CategoryView is a category with the number of posts filed under it.
type CategoryView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	PostCount   int64     `json:"postCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TagView is a tag with the number of posts carrying it.
type TagView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	PostCount int64     `json:"postCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategoryInput creates a category.
type CategoryInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// CategoryUpdate changes a category. Nil fields are left unchanged.
type CategoryUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Service owns categories and tags.
type Service struct {
	db          *gorm.DB
	logger      logSDK.Logger
	clock       model.Clock
	cache       cache.Cache
	invalidator *cache.Invalidator
}

// NewService constructs a taxonomy service. c may be nil.
func NewService(db *gorm.DB, c cache.Cache, logger logSDK.Logger, clock model.Clock) (*Service, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = log.Logger.Named("taxonomy")
	}
	if clock == nil {
		clock = model.SystemClock
	}
	return &Service{db: db, logger: logger, clock: clock, cache: c, invalidator: cache.NewInvalidator(c)}, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.NewError(model.KindInvalidArgument, "name is required")
	}
	return name, nil
}

// postSlugs lists the slugs of posts linked through joinTable to the term
// in column.
func postSlugs(ctx context.Context, db *gorm.DB, joinTable, column, termID string) ([]string, error) {
	var slugs []string
	if err := db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id IN (SELECT post_id FROM "+joinTable+" WHERE "+column+" = ?)", termID).
		Pluck("slug", &slugs).Error; err != nil {
		return nil, errors.Wrap(err, "list linked post slugs")
	}
	return slugs, nil
}
