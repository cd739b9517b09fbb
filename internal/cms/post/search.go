package post

import (
	"context"
	"strings"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
)

// SearchStrategy finds the ids of posts matching a query. page and limit are
// already normalized.
type SearchStrategy interface {
	Name() string
	// Probe reports whether the strategy can run against db.
	Probe(ctx context.Context, db *gorm.DB) error
	Search(ctx context.Context, db *gorm.DB, query string, f ListFilter) (ids []string, total int64, err error)
}

// probeRetryBackoff is how long a failed probe is remembered before the
// next search tries the server again.
const probeRetryBackoff = 30 * time.Second

// RankedSearch ranks posts with Postgres full-text search over a weighted
// document of title, excerpt and content.
type RankedSearch struct {
	now func() time.Time

	mu          sync.Mutex
	available   bool
	probeErr    error
	lastFailure time.Time
}

// NewRankedSearch constructs the ranked strategy.
func NewRankedSearch() *RankedSearch {
	return &RankedSearch{now: time.Now}
}

// Name implements SearchStrategy.
func (*RankedSearch) Name() string { return "ranked" }

// Probe checks the dialect and that the server provides
// websearch_to_tsquery. A successful probe is kept for the life of the
// strategy; a failed one is retried once probeRetryBackoff has passed.
func (s *RankedSearch) Probe(ctx context.Context, db *gorm.DB) error {
	if !model.IsPostgres(db) {
		return errors.New("ranked search requires postgres")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available {
		return nil
	}
	now := s.now()
	if s.probeErr != nil && now.Sub(s.lastFailure) < probeRetryBackoff {
		return s.probeErr
	}

	var ok bool
	if err := db.WithContext(ctx).
		Raw("SELECT websearch_to_tsquery('english', 'probe') IS NOT NULL").
		Scan(&ok).Error; err != nil {
		s.probeErr = errors.Wrap(err, "probe websearch_to_tsquery")
		s.lastFailure = now
		return s.probeErr
	}

	s.available = true
	s.probeErr = nil
	return nil
}

const tsQuery = "websearch_to_tsquery('english', ?)"

// Search implements SearchStrategy.
func (*RankedSearch) Search(ctx context.Context, db *gorm.DB, query string, f ListFilter) ([]string, int64, error) {
	where := "(" + model.SearchDocumentSQL + ") @@ " + tsQuery
	args := []any{query}
	if cond, condArgs := filterSQL(f); cond != "" {
		where += " AND " + cond
		args = append(args, condArgs...)
	}

	var total int64
	if err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM posts WHERE "+where, args...).
		Scan(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count ranked search")
	}
	if total == 0 {
		return nil, 0, nil
	}

	pageArgs := append(append([]any{}, args...), query, f.Limit, (f.Page-1)*f.Limit)
	var ids []string
	if err := db.WithContext(ctx).
		Raw("SELECT id FROM posts WHERE "+where+
			" ORDER BY ts_rank("+model.SearchDocumentSQL+", "+tsQuery+") DESC, created_at DESC"+
			" LIMIT ? OFFSET ?", pageArgs...).
		Scan(&ids).Error; err != nil {
		return nil, 0, errors.Wrap(err, "ranked search")
	}
	return ids, total, nil
}

// FallbackSearch is a case-insensitive substring match over title, content
// and excerpt. It runs on any dialect.
type FallbackSearch struct{}

// Name implements SearchStrategy.
func (FallbackSearch) Name() string { return "substring" }

// Probe implements SearchStrategy.
func (FallbackSearch) Probe(context.Context, *gorm.DB) error { return nil }

// Search implements SearchStrategy.
func (FallbackSearch) Search(ctx context.Context, db *gorm.DB, query string, f ListFilter) ([]string, int64, error) {
	pattern := "%" + model.EscapeLike(strings.ToLower(query)) + "%"
	base := func() *gorm.DB {
		return applyFilter(db.WithContext(ctx).Model(&model.Post{}), f).
			Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\' OR LOWER(COALESCE(excerpt, '')) LIKE ? ESCAPE '\')`,
				pattern, pattern, pattern)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count substring search")
	}
	if total == 0 {
		return nil, 0, nil
	}

	var ids []string
	if err := base().
		Order("created_at DESC").
		Order("id DESC").
		Limit(f.Limit).
		Offset((f.Page-1)*f.Limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, 0, errors.Wrap(err, "substring search")
	}
	return ids, total, nil
}

// Search runs the ranked strategy when available and degrades to the
// substring strategy otherwise. Unfiltered pages are cached.
func (r *Repository) Search(ctx context.Context, f SearchFilter) (*ListResult, error) {
	query := strings.TrimSpace(f.Query)
	if query == "" {
		return nil, model.NewError(model.KindInvalidArgument, "search query is required")
	}
	lf := f.list()
	lf.Page, lf.Limit = normalizePage(lf.Page, lf.Limit)

	cacheable := lf.unfiltered()
	key := cache.SearchKey(query, lf.Page, lf.Limit)
	if cacheable {
		var cached ListResult
		if cache.GetJSON(ctx, r.cache, key, &cached) {
			return &cached, nil
		}
	}

	ids, total, err := r.runSearch(ctx, query, lf)
	if err != nil {
		return nil, err
	}
	posts, err := r.loadByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	items, err := r.toViews(ctx, posts)
	if err != nil {
		return nil, err
	}
	result := &ListResult{Items: items, Pagination: newPagination(lf.Page, lf.Limit, total)}

	if cacheable {
		cache.SetJSON(ctx, r.cache, key, result, cache.ListTTL)
	}
	return result, nil
}

func (r *Repository) runSearch(ctx context.Context, query string, f ListFilter) ([]string, int64, error) {
	if r.ranked != nil {
		err := r.ranked.Probe(ctx, r.db)
		if err == nil {
			ids, total, searchErr := r.ranked.Search(ctx, r.db, query, f)
			if searchErr == nil {
				return ids, total, nil
			}
			err = searchErr
		}
		r.metrics.SearchDegraded()
		r.logger.Warn("ranked search unavailable, using substring search",
			zap.String("strategy", r.ranked.Name()),
			zap.Error(err))
	}

	ids, total, err := r.fallback.Search(ctx, r.db, query, f)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "%s search", r.fallback.Name())
	}
	return ids, total, nil
}
