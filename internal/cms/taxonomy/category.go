package taxonomy

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/slug"
)

const categoryCountSQL = "(SELECT COUNT(*) FROM post_categories WHERE post_categories.category_id = categories.id) AS post_count"

func (s *Service) categoryQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&model.Category{}).
		Select("categories.*, " + categoryCountSQL)
}

func (s *Service) findCategory(ctx context.Context, column, value string) (*CategoryView, error) {
	var rows []CategoryView
	if err := s.categoryQuery(ctx).Where(column+" = ?", value).Limit(1).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load category")
	}
	if len(rows) == 0 {
		return nil, model.Errorf(model.KindNotFound, "category %s not found", value)
	}
	return &rows[0], nil
}

// CreateCategory stores a category under a unique slug derived from its name.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*CategoryView, error) {
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	c := &model.Category{Name: name, Description: in.Description, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sl, err := slug.Allocate(ctx, tx, &model.Category{}, name, "")
		if err != nil {
			return err
		}
		c.Slug = sl
		if err := tx.Create(c).Error; err != nil {
			return errors.Wrap(err, "create category")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info("category created", zap.String("id", c.ID), zap.String("slug", c.Slug))
	return &CategoryView{
		ID: c.ID, Name: c.Name, Slug: c.Slug, Description: c.Description,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}, nil
}

// ListCategories returns every category by name.
func (s *Service) ListCategories(ctx context.Context) ([]CategoryView, error) {
	rows := []CategoryView{}
	if err := s.categoryQuery(ctx).Order("name ASC").Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return rows, nil
}

// GetCategory loads a category by id.
func (s *Service) GetCategory(ctx context.Context, id string) (*CategoryView, error) {
	return s.findCategory(ctx, "categories.id", id)
}

// GetCategoryBySlug loads a category by slug. Reads are cached.
func (s *Service) GetCategoryBySlug(ctx context.Context, sl string) (*CategoryView, error) {
	key := cache.CategoryKey(sl)
	var cached CategoryView
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	v, err := s.findCategory(ctx, "categories.slug", sl)
	if err != nil {
		return nil, err
	}
	cache.SetJSON(ctx, s.cache, key, v, cache.CategoryTTL)
	return v, nil
}

// UpdateCategory renames or re-describes a category. A rename moves the slug.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryUpdate) (*CategoryView, error) {
	var (
		oldSlug, newSlug string
		affected         []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Category
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "category %s not found", id)
			}
			return errors.Wrap(err, "load category")
		}
		oldSlug, newSlug = c.Slug, c.Slug

		updates := map[string]any{"updated_at": s.clock()}
		if in.Name != nil {
			name, err := validName(*in.Name)
			if err != nil {
				return err
			}
			if name != c.Name {
				sl, err := slug.Allocate(ctx, tx, &model.Category{}, name, c.ID)
				if err != nil {
					return err
				}
				updates["name"] = name
				updates["slug"] = sl
				newSlug = sl
			}
		}
		if in.Description != nil {
			updates["description"] = in.Description
		}

		if err := tx.Model(&model.Category{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update category")
		}

		var err error
		affected, err = postSlugs(ctx, tx, "post_categories", "category_id", id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidator.InvalidateCategory(ctx, oldSlug, newSlug)
	s.invalidator.InvalidatePost(ctx, affected...)
	return s.GetCategory(ctx, id)
}

// DeleteCategory removes a category that no post references.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	var sl string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Category
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "category %s not found", id)
			}
			return errors.Wrap(err, "load category")
		}
		sl = c.Slug

		var n int64
		if err := tx.Model(&model.PostCategory{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
			return errors.Wrap(err, "count category posts")
		}
		if n > 0 {
			return model.Errorf(model.KindConflict, "category %s still has %d posts", c.Slug, n)
		}

		if err := tx.Where("id = ?", id).Delete(&model.Category{}).Error; err != nil {
			return errors.Wrap(err, "delete category")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidator.InvalidateCategory(ctx, sl)
	s.logger.Info("category deleted", zap.String("id", id), zap.String("slug", sl))
	return nil
}
