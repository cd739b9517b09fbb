package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/post"
)

type revisionView struct {
	ID        string               `json:"id"`
	PostID    string               `json:"postId"`
	Version   int                  `json:"version"`
	Reason    model.RevisionReason `json:"reason"`
	Editor    post.AuthorView      `json:"editor"`
	Title     string               `json:"title"`
	Content   string               `json:"content"`
	Excerpt   *string              `json:"excerpt,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

func toRevisionView(r model.Revision) revisionView {
	return revisionView{
		ID:        r.ID,
		PostID:    r.PostID,
		Version:   r.Version,
		Reason:    r.Reason,
		Editor:    post.AuthorView{ID: r.EditorID, Name: r.Editor.Name},
		Title:     r.Title,
		Content:   r.Content,
		Excerpt:   r.Excerpt,
		CreatedAt: r.CreatedAt,
	}
}

// checkEditor fails unless the caller may edit postID.
func (s *Server) checkEditor(ctx context.Context, c *gin.Context, postID string) error {
	actor, _ := actorOf(c)
	v, err := s.deps.Posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if !actor.CanEdit(v.AuthorID) {
		return model.NewError(model.KindForbidden, "not allowed to access this post's history")
	}
	return nil
}

func (s *Server) listRevisions(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := s.checkEditor(ctx, c, id); err != nil {
		s.abort(c, err)
		return
	}

	revs, err := s.deps.Posts.Revisions().ListByPost(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	items := make([]revisionView, 0, len(revs))
	for _, r := range revs {
		items = append(items, toRevisionView(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getRevision(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	rev, err := s.deps.Posts.Revisions().Get(ctx, c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := s.checkEditor(ctx, c, rev.PostID); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toRevisionView(*rev))
}

func (s *Server) restoreRevision(c *gin.Context) {
	actor, _ := actorOf(c)
	ctx, cancel := requestCtx(c)
	defer cancel()

	store := s.deps.Posts.Revisions()
	rev, err := store.Get(ctx, c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := s.checkEditor(ctx, c, rev.PostID); err != nil {
		s.abort(c, err)
		return
	}

	p, err := store.Restore(ctx, rev.ID, actor.UserID)
	if err != nil {
		s.abort(c, err)
		return
	}
	v, err := s.deps.Posts.GetByID(ctx, p.ID)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
