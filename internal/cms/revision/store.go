// Package revision keeps the immutable edit history of posts.
package revision

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/sanitize"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

// DefaultKeep is how many revisions per post survive a prune.
const DefaultKeep = 10

// Invalidator drops cached read models of posts.
type Invalidator interface {
	InvalidatePost(ctx context.Context, slugs ...string)
}

// Snapshot is the editable text of a post captured by a revision.
type Snapshot struct {
	Title   string
	Content string
	Excerpt *string
}

// Store persists revisions.
type Store struct {
	db          *gorm.DB
	logger      logSDK.Logger
	clock       model.Clock
	invalidator Invalidator
}

// NewStore constructs a revision store. invalidator may be nil.
func NewStore(db *gorm.DB, logger logSDK.Logger, clock model.Clock, invalidator Invalidator) (*Store, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("revision_store")
	}
	if clock == nil {
		clock = model.SystemClock
	}
	return &Store{db: db, logger: logger, clock: clock, invalidator: invalidator}, nil
}

// With returns a copy of the store bound to tx.
func (s *Store) With(tx *gorm.DB) *Store {
	cp := *s
	cp.db = tx
	return &cp
}

// Snapshot appends a revision holding snap. Versions start at 0 and grow by
// one per revision of the post.
func (s *Store) Snapshot(ctx context.Context, postID, editorID string, snap Snapshot, reason model.RevisionReason) (*model.Revision, error) {
	if postID == "" || editorID == "" {
		return nil, model.NewError(model.KindInvalidArgument, "post id and editor id are required")
	}

	var latest struct{ Max *int }
	if err := s.db.WithContext(ctx).
		Model(&model.Revision{}).
		Select("MAX(version) AS max").
		Where("post_id = ?", postID).
		Scan(&latest).Error; err != nil {
		return nil, errors.Wrap(err, "query latest revision version")
	}

	version := 0
	if latest.Max != nil {
		version = *latest.Max + 1
	}

	rev := &model.Revision{
		PostID:    postID,
		Version:   version,
		EditorID:  editorID,
		Reason:    reason,
		Title:     snap.Title,
		Content:   snap.Content,
		Excerpt:   snap.Excerpt,
		CreatedAt: s.clock(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(rev).Error; err != nil {
		return nil, errors.Wrap(err, "create revision")
	}
	return rev, nil
}

// ListByPost returns the revisions of a post, newest first.
func (s *Store) ListByPost(ctx context.Context, postID string) ([]model.Revision, error) {
	var revs []model.Revision
	if err := s.db.WithContext(ctx).
		Preload("Editor").
		Where("post_id = ?", postID).
		Order("version DESC").
		Find(&revs).Error; err != nil {
		return nil, errors.Wrap(err, "list revisions")
	}
	return revs, nil
}

// Get loads one revision.
func (s *Store) Get(ctx context.Context, id string) (*model.Revision, error) {
	var rev model.Revision
	err := s.db.WithContext(ctx).Preload("Editor").Where("id = ?", id).First(&rev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.Errorf(model.KindNotFound, "revision %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load revision")
	}
	return &rev, nil
}

// Restore copies the text of a revision back onto its post. The current text
// is snapshotted first, so a restore can itself be undone. Slug and publish
// state are left untouched.
func (s *Store) Restore(ctx context.Context, revisionID, editorID string) (*model.Post, error) {
	var post model.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rev model.Revision
		if err := tx.Where("id = ?", revisionID).First(&rev).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "revision %s not found", revisionID)
			}
			return errors.Wrap(err, "load revision")
		}

		if err := tx.Where("id = ?", rev.PostID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Errorf(model.KindNotFound, "post %s not found", rev.PostID)
			}
			return errors.Wrap(err, "load post")
		}

		if _, err := s.With(tx).Snapshot(ctx, post.ID, editorID, Snapshot{
			Title:   post.Title,
			Content: post.Content,
			Excerpt: post.Excerpt,
		}, model.RevisionRestore); err != nil {
			return errors.Wrap(err, "snapshot before restore")
		}

		now := s.clock()
		post.Title = rev.Title
		post.Content = rev.Content
		post.Excerpt = rev.Excerpt
		post.ReadingTime = sanitize.ReadingTime(rev.Content)
		post.Version++
		post.UpdatedAt = now

		if err := tx.Model(&model.Post{}).Where("id = ?", post.ID).Updates(map[string]any{
			"title":        post.Title,
			"content":      post.Content,
			"excerpt":      post.Excerpt,
			"reading_time": post.ReadingTime,
			"version":      post.Version,
			"updated_at":   now,
		}).Error; err != nil {
			return errors.Wrap(err, "restore post text")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.InvalidatePost(ctx, post.Slug)
	}
	s.logger.Info("revision restored",
		zap.String("revision_id", revisionID),
		zap.String("post_id", post.ID),
		zap.String("editor_id", editorID))
	return &post, nil
}

// Prune deletes all but the newest keep revisions of a post and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, postID string, keep int) (int64, error) {
	if keep < 0 {
		return 0, model.Errorf(model.KindInvalidArgument, "keep must be >= 0, got %d", keep)
	}

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.Revision{}).
		Where("post_id = ?", postID).
		Order("version DESC").
		Pluck("id", &ids).Error; err != nil {
		return 0, errors.Wrap(err, "list revision ids")
	}
	if len(ids) <= keep {
		return 0, nil
	}
	stale := ids[keep:]

	res := s.db.WithContext(ctx).Where("id IN ?", stale).Delete(&model.Revision{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete stale revisions")
	}
	return res.RowsAffected, nil
}

// PostsExceeding lists the ids of posts holding more than keep revisions.
func (s *Store) PostsExceeding(ctx context.Context, keep int) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.Revision{}).
		Select("post_id").
		Group("post_id").
		Having("COUNT(*) > ?", keep).
		Order("post_id").
		Pluck("post_id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "find posts exceeding revision budget")
	}
	return ids, nil
}
