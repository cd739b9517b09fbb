// Package post implements the post repository: the publish state machine,
// revision-coupled mutations, cached reads and search.
package post

import (
	"context"
	"strings"
	"unicode/utf8"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/jinzhu/copier"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/metrics"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/revision"
	"github.com/Laisky/laisky-blog-cms/internal/cms/sanitize"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

// Repository owns every post mutation and read.
type Repository struct {
	db          *gorm.DB
	logger      logSDK.Logger
	clock       model.Clock
	cache       cache.Cache
	invalidator *cache.Invalidator
	revisions   *revision.Store
	sanitizer   *sanitize.Sanitizer
	metrics     *metrics.Metrics
	ranked      SearchStrategy
	fallback    SearchStrategy
}

// Option customizes a Repository.
type Option func(*Repository)

// WithMetrics records search degradation on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithSearchStrategies replaces the ranked and fallback search strategies.
// A nil ranked strategy makes every search use the fallback.
func WithSearchStrategies(ranked, fallback SearchStrategy) Option {
	return func(r *Repository) {
		r.ranked = ranked
		if fallback != nil {
			r.fallback = fallback
		}
	}
}

// NewRepository constructs a post repository. c may be nil, in which case
// reads are never cached.
func NewRepository(db *gorm.DB, c cache.Cache, logger logSDK.Logger, clock model.Clock, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = log.Logger.Named("post_repository")
	}
	if clock == nil {
		clock = model.SystemClock
	}

	r := &Repository{
		db:          db,
		logger:      logger,
		clock:       clock,
		cache:       c,
		invalidator: cache.NewInvalidator(c),
		sanitizer:   sanitize.New(),
		ranked:      NewRankedSearch(),
		fallback:    FallbackSearch{},
	}
	for _, opt := range opts {
		opt(r)
	}

	revs, err := revision.NewStore(db, logger.Named("revisions"), clock, r.invalidator)
	if err != nil {
		return nil, errors.Wrap(err, "new revision store")
	}
	r.revisions = revs
	return r, nil
}

// Revisions exposes the revision store sharing this repository's db,
// clock and cache.
func (r *Repository) Revisions() *revision.Store {
	return r.revisions
}

// Invalidator exposes the cache invalidation rules used by the repository.
func (r *Repository) Invalidator() *cache.Invalidator {
	return r.invalidator
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < minTitleLen {
		return "", model.Errorf(model.KindInvalidArgument, "title must be at least %d characters", minTitleLen)
	}
	return title, nil
}

// prepareContent renders markdown when no HTML is given, anchors headings
// and applies the rich policy.
func (r *Repository) prepareContent(html, markdown string) (string, error) {
	if strings.TrimSpace(html) == "" && strings.TrimSpace(markdown) != "" {
		html = sanitize.Markdown(markdown)
	}
	if strings.TrimSpace(html) == "" {
		return "", model.NewError(model.KindInvalidArgument, "content is required")
	}

	clean := strings.TrimSpace(r.sanitizer.Rich(sanitize.AddHeadingIDs(html)))
	if clean == "" {
		return "", model.NewError(model.KindInvalidArgument, "content is empty after sanitization")
	}
	return clean, nil
}

func (r *Repository) prepareExcerpt(excerpt *string) *string {
	if excerpt == nil {
		return nil
	}
	return optional(r.sanitizer.Plain(*excerpt))
}

// optional trims s and maps the empty string to nil.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

func dedup(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ensureExist fails with InvalidArgument unless every id is a row of m.
func ensureExist(ctx context.Context, db *gorm.DB, m any, what string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(m).Where("id IN ?", ids).Count(&n).Error; err != nil {
		return errors.Wrapf(err, "check %s ids", what)
	}
	if int(n) != len(ids) {
		return model.Errorf(model.KindInvalidArgument, "unknown %s id in %v", what, ids)
	}
	return nil
}

// replaceTerms overwrites the category and tag sets of a post. A nil slice
// leaves the corresponding set untouched. It returns the slugs of every
// category the post left or joined.
func replaceTerms(ctx context.Context, tx *gorm.DB, postID string, categoryIDs, tagIDs []string) ([]string, error) {
	var categorySlugs []string
	if categoryIDs != nil {
		ids := dedup(categoryIDs)
		if err := ensureExist(ctx, tx, &model.Category{}, "category", ids); err != nil {
			return nil, err
		}
		slugs, err := attachedCategorySlugs(ctx, tx, postID, ids)
		if err != nil {
			return nil, err
		}
		categorySlugs = slugs

		if err := tx.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.PostCategory{}).Error; err != nil {
			return nil, errors.Wrap(err, "clear post categories")
		}
		if len(ids) > 0 {
			rows := make([]model.PostCategory, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, model.PostCategory{PostID: postID, CategoryID: id})
			}
			if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
				return nil, errors.Wrap(err, "attach post categories")
			}
		}
	}

	if tagIDs != nil {
		ids := dedup(tagIDs)
		if err := ensureExist(ctx, tx, &model.Tag{}, "tag", ids); err != nil {
			return nil, err
		}
		if err := tx.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.PostTag{}).Error; err != nil {
			return nil, errors.Wrap(err, "clear post tags")
		}
		if len(ids) > 0 {
			rows := make([]model.PostTag, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, model.PostTag{PostID: postID, TagID: id})
			}
			if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
				return nil, errors.Wrap(err, "attach post tags")
			}
		}
	}
	return categorySlugs, nil
}

// attachedCategorySlugs returns the slugs of the categories currently
// attached to postID together with those in extraIDs.
func attachedCategorySlugs(ctx context.Context, tx *gorm.DB, postID string, extraIDs []string) ([]string, error) {
	q := tx.WithContext(ctx).Model(&model.Category{}).
		Where("id IN (SELECT category_id FROM post_categories WHERE post_id = ?)", postID)
	if len(extraIDs) > 0 {
		q = q.Or("id IN ?", extraIDs)
	}
	var slugs []string
	if err := q.Order("slug").Pluck("slug", &slugs).Error; err != nil {
		return nil, errors.Wrap(err, "load category slugs")
	}
	return slugs, nil
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Categories").Preload("Tags")
}

// loadPost fetches a post with its author and terms by a single condition.
func (r *Repository) loadPost(ctx context.Context, query string, arg any) (*model.Post, error) {
	var p model.Post
	err := withRelations(r.db.WithContext(ctx)).Where(query, arg).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.Errorf(model.KindNotFound, "post not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load post")
	}
	return &p, nil
}

// loadByIDs fetches posts and returns them in the order of ids.
func (r *Repository) loadByIDs(ctx context.Context, ids []string) ([]model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []model.Post
	if err := withRelations(r.db.WithContext(ctx)).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load posts by id")
	}

	byID := make(map[string]model.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	ordered := make([]model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

type countRow struct {
	PostID string
	N      int64
}

func countBy(ctx context.Context, db *gorm.DB, m any, ids []string) (map[string]int64, error) {
	var rows []countRow
	if err := db.WithContext(ctx).
		Model(m).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", ids).
		Group("post_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.PostID] = row.N
	}
	return out, nil
}

// toViews maps posts to read models carrying view and comment counts.
func (r *Repository) toViews(ctx context.Context, posts []model.Post) ([]View, error) {
	views := make([]View, 0, len(posts))
	if len(posts) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}

	var viewCounts, commentCounts map[string]int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if viewCounts, err = countBy(gctx, r.db, &model.PostView{}, ids); err != nil {
			return errors.Wrap(err, "count views")
		}
		return nil
	})
	g.Go(func() (err error) {
		if commentCounts, err = countBy(gctx, r.db, &model.Comment{}, ids); err != nil {
			return errors.Wrap(err, "count comments")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range posts {
		v, err := toView(&posts[i])
		if err != nil {
			return nil, err
		}
		v.ViewCount = viewCounts[v.ID]
		v.CommentCount = commentCounts[v.ID]
		views = append(views, *v)
	}
	return views, nil
}

func toView(p *model.Post) (*View, error) {
	v := new(View)
	if err := copier.Copy(v, p); err != nil {
		return nil, errors.Wrap(err, "copy post view")
	}
	v.State = p.State()
	if v.Categories == nil {
		v.Categories = []TermView{}
	}
	if v.Tags == nil {
		v.Tags = []TermView{}
	}
	return v, nil
}
