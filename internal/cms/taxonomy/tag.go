package taxonomy

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/slug"
)

const tagCountSQL = "(SELECT COUNT(*) FROM post_tags WHERE post_tags.tag_id = tags.id) AS post_count"

func (s *Service) tagQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&model.Tag{}).
		Select("tags.*, " + tagCountSQL)
}

func (s *Service) findTag(ctx context.Context, column, value string) (*TagView, error) {
	var rows []TagView
	if err := s.tagQuery(ctx).Where(column+" = ?", value).Limit(1).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load tag")
	}
	if len(rows) == 0 {
		return nil, model.Errorf(model.KindNotFound, "tag %s not found", value)
	}
	return &rows[0], nil
}

// CreateTag stores a tag under a unique slug derived from its name.
func (s *Service) CreateTag(ctx context.Context, name string) (*TagView, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}

	t := &model.Tag{Name: name, CreatedAt: s.clock()}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sl, err := slug.Allocate(ctx, tx, &model.Tag{}, name, "")
		if err != nil {
			return err
		}
		t.Slug = sl
		if err := tx.Create(t).Error; err != nil {
			return errors.Wrap(err, "create tag")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info("tag created", zap.String("id", t.ID), zap.String("slug", t.Slug))
	return &TagView{ID: t.ID, Name: t.Name, Slug: t.Slug, CreatedAt: t.CreatedAt}, nil
}

// ListTags returns every tag by name.
func (s *Service) ListTags(ctx context.Context) ([]TagView, error) {
	rows := []TagView{}
	if err := s.tagQuery(ctx).Order("name ASC").Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list tags")
	}
	return rows, nil
}

// GetTag loads a tag by id.
func (s *Service) GetTag(ctx context.Context, id string) (*TagView, error) {
	return s.findTag(ctx, "tags.id", id)
}

// GetTagBySlug loads a tag by slug.
func (s *Service) GetTagBySlug(ctx context.Context, sl string) (*TagView, error) {
	return s.findTag(ctx, "tags.slug", sl)
}

// UpdateTag renames a tag and moves its slug.
func (s *Service) UpdateTag(ctx context.Context, id, name string) (*TagView, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}

	var affected []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.Tag
		if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "tag %s not found", id)
			}
			return errors.Wrap(err, "load tag")
		}
		if name == t.Name {
			return nil
		}

		sl, err := slug.Allocate(ctx, tx, &model.Tag{}, name, t.ID)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.Tag{}).Where("id = ?", id).
			Updates(map[string]any{"name": name, "slug": sl}).Error; err != nil {
			return errors.Wrap(err, "update tag")
		}

		affected, err = postSlugs(ctx, tx, "post_tags", "tag_id", id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidator.InvalidatePost(ctx, affected...)
	return s.GetTag(ctx, id)
}

// DeleteTag detaches a tag from every post and removes it.
func (s *Service) DeleteTag(ctx context.Context, id string) error {
	var affected []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.Tag
		if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "tag %s not found", id)
			}
			return errors.Wrap(err, "load tag")
		}

		var err error
		if affected, err = postSlugs(ctx, tx, "post_tags", "tag_id", id); err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", id).Delete(&model.PostTag{}).Error; err != nil {
			return errors.Wrap(err, "detach tag")
		}
		if err := tx.Where("id = ?", id).Delete(&model.Tag{}).Error; err != nil {
			return errors.Wrap(err, "delete tag")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidator.InvalidatePost(ctx, affected...)
	s.logger.Info("tag deleted", zap.String("id", id), zap.Int("detached_posts", len(affected)))
	return nil
}
