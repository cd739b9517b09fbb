package post

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
)

// PublishDue lists the scheduled posts whose publish time is not after now,
// oldest schedule first.
func (r *Repository) PublishDue(ctx context.Context, now time.Time) ([]model.Post, error) {
	var due []model.Post
	if err := r.db.WithContext(ctx).
		Where("published = ? AND scheduled_publish_at IS NOT NULL AND scheduled_publish_at <= ?", false, now.UTC()).
		Order("scheduled_publish_at ASC").
		Find(&due).Error; err != nil {
		return nil, errors.Wrap(err, "list due scheduled posts")
	}
	return due, nil
}

// PromoteScheduled publishes one due post. The update only matches while the
// post is still scheduled and due, so concurrent sweeps promote it once; the
// loser gets false.
func (r *Repository) PromoteScheduled(ctx context.Context, id string, now time.Time) (bool, error) {
	now = now.UTC()
	res := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ? AND published = ? AND scheduled_publish_at IS NOT NULL AND scheduled_publish_at <= ?", id, false, now).
		Updates(map[string]any{
			"published":            true,
			"published_at":         now,
			"scheduled_publish_at": nil,
			"updated_at":           now,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "promote post %s", id)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	var slugs []string
	if err := r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).Pluck("slug", &slugs).Error; err != nil {
		r.logger.Warn("load slug of promoted post", zap.String("post_id", id), zap.Error(err))
	}
	r.invalidator.InvalidatePost(ctx, slugs...)
	return true, nil
}
