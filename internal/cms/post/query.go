package post

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/sanitize"
)

// filterSQL renders the optional list filters as a condition over the
// posts table. It returns "" when no filter is set.
func filterSQL(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Published != nil {
		conds = append(conds, "published = ?")
		args = append(args, *f.Published)
	}
	if f.AuthorID != "" {
		conds = append(conds, "author_id = ?")
		args = append(args, f.AuthorID)
	}
	if f.CategoryID != "" {
		conds = append(conds, "id IN (SELECT post_id FROM post_categories WHERE category_id = ?)")
		args = append(args, f.CategoryID)
	}
	if f.DraftsOf != "" {
		conds = append(conds, "(published = ? OR author_id = ?)")
		args = append(args, true, f.DraftsOf)
	}
	return strings.Join(conds, " AND "), args
}

func applyFilter(db *gorm.DB, f ListFilter) *gorm.DB {
	if cond, args := filterSQL(f); cond != "" {
		return db.Where(cond, args...)
	}
	return db
}

// List returns a page of posts, newest first. Unfiltered pages are cached.
func (r *Repository) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)

	cacheable := f.unfiltered()
	key := cache.PostsKey(f.Page, f.Limit)
	if cacheable {
		var cached ListResult
		if cache.GetJSON(ctx, r.cache, key, &cached) {
			return &cached, nil
		}
	}

	var (
		total int64
		posts []model.Post
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := applyFilter(r.db.WithContext(gctx).Model(&model.Post{}), f).Count(&total).Error; err != nil {
			return errors.Wrap(err, "count posts")
		}
		return nil
	})
	g.Go(func() error {
		if err := applyFilter(withRelations(r.db.WithContext(gctx)), f).
			Order("created_at DESC").
			Order("id DESC").
			Limit(f.Limit).
			Offset((f.Page - 1) * f.Limit).
			Find(&posts).Error; err != nil {
			return errors.Wrap(err, "list posts")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items, err := r.toViews(ctx, posts)
	if err != nil {
		return nil, err
	}
	result := &ListResult{Items: items, Pagination: newPagination(f.Page, f.Limit, total)}

	if cacheable {
		cache.SetJSON(ctx, r.cache, key, result, cache.ListTTL)
	}
	return result, nil
}

// GetBySlug returns a post with its table of contents. Reads are cached.
func (r *Repository) GetBySlug(ctx context.Context, s string) (*View, error) {
	key := cache.PostKey(s)
	var cached View
	if cache.GetJSON(ctx, r.cache, key, &cached) {
		return &cached, nil
	}

	p, err := r.loadPost(ctx, "slug = ?", s)
	if err != nil {
		return nil, err
	}
	v, err := r.detail(ctx, p)
	if err != nil {
		return nil, err
	}

	cache.SetJSON(ctx, r.cache, key, v, cache.PostTTL)
	return v, nil
}

// GetByID returns a post bypassing the cache.
func (r *Repository) GetByID(ctx context.Context, id string) (*View, error) {
	p, err := r.loadPost(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return r.detail(ctx, p)
}

func (r *Repository) detail(ctx context.Context, p *model.Post) (*View, error) {
	views, err := r.toViews(ctx, []model.Post{*p})
	if err != nil {
		return nil, err
	}
	v := views[0]
	v.TOC = sanitize.TOC(v.Content)
	return &v, nil
}
