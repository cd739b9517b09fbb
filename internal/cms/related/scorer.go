// Package related recommends published posts that share taxonomy with a
// subject post.
package related

import (
	"context"
	"sort"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

const (
	// DefaultLimit is used when the caller asks for a non-positive limit.
	DefaultLimit = 5
	// MaxLimit bounds a single request.
	MaxLimit = 20

	categoryWeight = 3
	tagWeight      = 1
	recencyBonus   = 1
	recencyWindow  = 30 * 24 * time.Hour
)

// Item is a recommended post with its relevance score.
type Item struct {
	ID            string     `json:"id"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	Excerpt       *string    `json:"excerpt,omitempty"`
	FeaturedImage *string    `json:"featuredImage,omitempty"`
	ReadingTime   int        `json:"readingTime"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Score         int        `json:"score"`
}

// Scorer ranks candidate posts by shared categories and tags.
type Scorer struct {
	db     *gorm.DB
	logger logSDK.Logger
	clock  model.Clock
}

// NewScorer constructs a scorer.
func NewScorer(db *gorm.DB, logger logSDK.Logger, clock model.Clock) (*Scorer, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("related")
	}
	if clock == nil {
		clock = model.SystemClock
	}
	return &Scorer{db: db, logger: logger, clock: clock}, nil
}

// RelatedTo returns up to limit published posts related to postID, best
// first. A missing subject yields an empty result, not an error.
func (s *Scorer) RelatedTo(ctx context.Context, postID string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var subject model.Post
	err := s.db.WithContext(ctx).
		Preload("Categories").
		Preload("Tags").
		Where("id = ?", postID).
		First(&subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug("related posts of unknown subject", zap.String("post_id", postID))
		return []Item{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load subject post")
	}

	categories := termSet(subject.Categories, func(c model.Category) string { return c.ID })
	tags := termSet(subject.Tags, func(t model.Tag) string { return t.ID })
	if len(categories) == 0 && len(tags) == 0 {
		return []Item{}, nil
	}

	candidates, err := s.candidates(ctx, subject.ID, keys(categories), keys(tags), 2*limit)
	if err != nil {
		return nil, err
	}

	bonus := 0
	if subject.PublishedAt != nil && s.clock().Sub(*subject.PublishedAt) < recencyWindow {
		bonus = recencyBonus
	}

	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, Item{
			ID:            c.ID,
			Slug:          c.Slug,
			Title:         c.Title,
			Excerpt:       c.Excerpt,
			FeaturedImage: c.FeaturedImage,
			ReadingTime:   c.ReadingTime,
			PublishedAt:   c.PublishedAt,
			CreatedAt:     c.CreatedAt,
			Score:         score(&c, categories, tags) + bonus,
		})
	}

	// candidates arrive newest first, which is the tie-break
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Scorer) candidates(ctx context.Context, subjectID string, categoryIDs, tagIDs []string, n int) ([]model.Post, error) {
	q := s.db.WithContext(ctx).
		Preload("Categories").
		Preload("Tags").
		Where("published = ? AND id <> ?", true, subjectID)

	switch {
	case len(categoryIDs) > 0 && len(tagIDs) > 0:
		q = q.Where("(id IN (SELECT post_id FROM post_categories WHERE category_id IN ?) OR id IN (SELECT post_id FROM post_tags WHERE tag_id IN ?))",
			categoryIDs, tagIDs)
	case len(categoryIDs) > 0:
		q = q.Where("id IN (SELECT post_id FROM post_categories WHERE category_id IN ?)", categoryIDs)
	default:
		q = q.Where("id IN (SELECT post_id FROM post_tags WHERE tag_id IN ?)", tagIDs)
	}

	var posts []model.Post
	if err := q.Order("created_at DESC").Order("id DESC").Limit(n).Find(&posts).Error; err != nil {
		return nil, errors.Wrap(err, "load related candidates")
	}
	return posts, nil
}

// score weighs the categories and tags c shares with the subject.
func score(c *model.Post, categories, tags map[string]struct{}) int {
	total := 0
	for _, cat := range c.Categories {
		if _, ok := categories[cat.ID]; ok {
			total += categoryWeight
		}
	}
	for _, t := range c.Tags {
		if _, ok := tags[t.ID]; ok {
			total += tagWeight
		}
	}
	return total
}

func termSet[T any](terms []T, id func(T) string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[id(t)] = struct{}{}
	}
	return set
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
