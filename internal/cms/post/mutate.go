package post

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/revision"
	"github.com/Laisky/laisky-blog-cms/internal/cms/sanitize"
	"github.com/Laisky/laisky-blog-cms/internal/cms/slug"
)

// Create validates, sanitizes and stores a new post together with its
// version 0 revision.
func (r *Repository) Create(ctx context.Context, in CreateInput, authorID string) (*View, error) {
	if authorID == "" {
		return nil, model.NewError(model.KindInvalidArgument, "author id is required")
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	content, err := r.prepareContent(in.Content, in.Markdown)
	if err != nil {
		return nil, err
	}

	now := r.clock()
	var categorySlugs []string
	post := &model.Post{
		Title:           title,
		Content:         content,
		Excerpt:         r.prepareExcerpt(in.Excerpt),
		FeaturedImage:   optionalPtr(in.FeaturedImage),
		ReadingTime:     sanitize.ReadingTime(content),
		MetaTitle:       optionalPtr(in.MetaTitle),
		MetaDescription: optionalPtr(in.MetaDescription),
		OgTitle:         optionalPtr(in.OgTitle),
		OgDescription:   optionalPtr(in.OgDescription),
		OgImage:         optionalPtr(in.OgImage),
		AuthorID:        authorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch {
	case in.ScheduledPublishAt != nil:
		at, err := futureTime(*in.ScheduledPublishAt, now)
		if err != nil {
			return nil, err
		}
		post.ScheduledPublishAt = &at
	case in.Published:
		post.Published = true
		post.PublishedAt = &now
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureExist(ctx, tx, &model.User{}, "author", []string{authorID}); err != nil {
			return err
		}

		s, err := slug.Allocate(ctx, tx, &model.Post{}, title, "")
		if err != nil {
			return err
		}
		post.Slug = s

		if err := tx.Omit(clause.Associations).Create(post).Error; err != nil {
			return errors.Wrap(err, "create post")
		}
		categorySlugs, err = replaceTerms(ctx, tx, post.ID, emptyIfNil(in.CategoryIDs), emptyIfNil(in.TagIDs))
		if err != nil {
			return err
		}

		if _, err := r.revisions.With(tx).Snapshot(ctx, post.ID, authorID, revision.Snapshot{
			Title:   post.Title,
			Content: post.Content,
			Excerpt: post.Excerpt,
		}, model.RevisionCreate); err != nil {
			return errors.Wrap(err, "write initial revision")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.invalidator.InvalidateCategory(ctx, categorySlugs...)
	r.logger.Info("post created",
		zap.String("post_id", post.ID),
		zap.String("slug", post.Slug),
		zap.String("state", string(post.State())))
	return r.GetByID(ctx, post.ID)
}

// Update applies a partial update. The pre-update text is snapshotted as a
// revision in the same transaction.
func (r *Repository) Update(ctx context.Context, id string, in UpdateInput, actor Actor) (*View, error) {
	var (
		oldSlug       string
		newSlug       string
		categorySlugs []string
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if model.IsPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var post model.Post
		if err := q.Where("id = ?", id).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "post %s not found", id)
			}
			return errors.Wrap(err, "load post")
		}
		if !actor.CanEdit(post.AuthorID) {
			return model.NewError(model.KindForbidden, "not allowed to edit this post")
		}
		if in.ExpectedVersion != nil && *in.ExpectedVersion != post.Version {
			return model.Errorf(model.KindConflict,
				"post was modified concurrently: expected version %d, found %d", *in.ExpectedVersion, post.Version)
		}

		if _, err := r.revisions.With(tx).Snapshot(ctx, post.ID, actor.UserID, revision.Snapshot{
			Title:   post.Title,
			Content: post.Content,
			Excerpt: post.Excerpt,
		}, model.RevisionUpdate); err != nil {
			return errors.Wrap(err, "snapshot before update")
		}

		now := r.clock()
		oldSlug, newSlug = post.Slug, post.Slug
		updates := map[string]any{
			"version":    post.Version + 1,
			"updated_at": now,
		}

		if in.Title != nil {
			title, err := validateTitle(*in.Title)
			if err != nil {
				return err
			}
			if title != post.Title {
				s, err := slug.Allocate(ctx, tx, &model.Post{}, title, post.ID)
				if err != nil {
					return err
				}
				newSlug = s
				updates["slug"] = s
			}
			updates["title"] = title
		}

		if in.Content != nil || in.Markdown != nil {
			content, err := r.prepareContent(deref(in.Content), deref(in.Markdown))
			if err != nil {
				return err
			}
			updates["content"] = content
			updates["reading_time"] = sanitize.ReadingTime(content)
		}
		if in.Excerpt != nil {
			updates["excerpt"] = r.prepareExcerpt(in.Excerpt)
		}

		for column, v := range map[string]*string{
			"featured_image":   in.FeaturedImage,
			"meta_title":       in.MetaTitle,
			"meta_description": in.MetaDescription,
			"og_title":         in.OgTitle,
			"og_description":   in.OgDescription,
			"og_image":         in.OgImage,
		} {
			if v != nil {
				updates[column] = optional(*v)
			}
		}

		if err := applyTransition(&post, in, now, updates); err != nil {
			return err
		}

		res := tx.Model(&model.Post{}).
			Where("id = ? AND version = ?", post.ID, post.Version).
			Updates(updates)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update post")
		}
		if res.RowsAffected == 0 {
			return model.Errorf(model.KindConflict, "post %s was modified concurrently", post.ID)
		}

		slugs, err := replaceTerms(ctx, tx, post.ID, in.CategoryIDs, in.TagIDs)
		categorySlugs = slugs
		return err
	})
	if err != nil {
		return nil, err
	}

	r.invalidator.InvalidatePost(ctx, oldSlug, newSlug)
	r.invalidator.InvalidateCategory(ctx, categorySlugs...)
	r.logger.Info("post updated",
		zap.String("post_id", id),
		zap.String("actor", actor.UserID),
		zap.String("slug", newSlug))
	return r.GetByID(ctx, id)
}

// applyTransition resolves the publish state change requested by in and
// records the touched columns in updates.
//
//	schedule supplied   -> Scheduled, even when currently Published
//	published == true   -> Published, PublishedAt kept when already set
//	published == false  -> unpublished, a pending schedule is kept
//	clearSchedule       -> pending schedule dropped
func applyTransition(post *model.Post, in UpdateInput, now time.Time, updates map[string]any) error {
	if in.ScheduledPublishAt != nil && in.ClearSchedule {
		return model.NewError(model.KindInvalidArgument, "cannot set and clear the schedule at once")
	}
	if in.ClearSchedule {
		updates["scheduled_publish_at"] = nil
	}

	switch {
	case in.ScheduledPublishAt != nil:
		at, err := futureTime(*in.ScheduledPublishAt, now)
		if err != nil {
			return err
		}
		updates["scheduled_publish_at"] = at
		updates["published"] = false
		updates["published_at"] = nil
	case in.Published != nil && *in.Published:
		if post.Published && post.PublishedAt != nil {
			return nil
		}
		updates["published"] = true
		updates["published_at"] = now
		updates["scheduled_publish_at"] = nil
	case in.Published != nil:
		updates["published"] = false
		updates["published_at"] = nil
	}
	return nil
}

// Delete removes a post together with its join rows, revisions, views and
// comments.
func (r *Repository) Delete(ctx context.Context, id string, actor Actor) error {
	var (
		slugToDrop    string
		categorySlugs []string
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post model.Post
		if err := tx.Where("id = ?", id).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "post %s not found", id)
			}
			return errors.Wrap(err, "load post")
		}
		if !actor.CanEdit(post.AuthorID) {
			return model.NewError(model.KindForbidden, "not allowed to delete this post")
		}
		slugToDrop = post.Slug

		slugs, err := attachedCategorySlugs(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		categorySlugs = slugs

		for _, dep := range []struct {
			name  string
			model any
		}{
			{"categories", &model.PostCategory{}},
			{"tags", &model.PostTag{}},
			{"revisions", &model.Revision{}},
			{"views", &model.PostView{}},
			{"comments", &model.Comment{}},
		} {
			if err := tx.Where("post_id = ?", id).Delete(dep.model).Error; err != nil {
				return errors.Wrapf(err, "delete post %s", dep.name)
			}
		}
		if err := tx.Where("id = ?", id).Delete(&model.Post{}).Error; err != nil {
			return errors.Wrap(err, "delete post")
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidator.InvalidatePost(ctx, slugToDrop)
	r.invalidator.InvalidateCategory(ctx, categorySlugs...)
	r.logger.Info("post deleted", zap.String("post_id", id), zap.String("actor", actor.UserID))
	return nil
}

func futureTime(at, now time.Time) (time.Time, error) {
	at = at.UTC()
	if !at.After(now) {
		return time.Time{}, model.NewError(model.KindInvalidArgument, "scheduled publish time must be in the future")
	}
	return at, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
