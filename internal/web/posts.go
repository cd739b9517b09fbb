package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/post"
)

func (s *Server) listPosts(c *gin.Context) {
	f, err := listFilter(c)
	if err != nil {
		s.abort(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := s.deps.Posts.List(ctx, f)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) searchPosts(c *gin.Context) {
	f, err := listFilter(c)
	if err != nil {
		s.abort(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	res, err := s.deps.Posts.Search(ctx, post.SearchFilter{
		Query:      c.Query("q"),
		Page:       f.Page,
		Limit:      f.Limit,
		Published:  f.Published,
		AuthorID:   f.AuthorID,
		CategoryID: f.CategoryID,
		DraftsOf:   f.DraftsOf,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getPostBySlug(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Posts.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		s.abort(c, err)
		return
	}
	s.writePost(c, v)
}

func (s *Server) getPost(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Posts.GetByID(ctx, c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	s.writePost(c, v)
}

// writePost hides posts that are not yet published from everyone but
// their editors.
func (s *Server) writePost(c *gin.Context, v *post.View) {
	if v.State != model.StatePublished {
		actor, ok := actorOf(c)
		if !ok || !actor.CanEdit(v.AuthorID) {
			s.abort(c, model.NewError(model.KindNotFound, "post not found"))
			return
		}
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) createPost(c *gin.Context) {
	actor, _ := actorOf(c)
	var in post.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abort(c, badRequest("invalid JSON payload"))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Posts.Create(ctx, in, actor.UserID)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) updatePost(c *gin.Context) {
	actor, _ := actorOf(c)
	var in post.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abort(c, badRequest("invalid JSON payload"))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Posts.Update(ctx, c.Param("id"), in, actor)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) deletePost(c *gin.Context) {
	actor, _ := actorOf(c)
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := s.deps.Posts.Delete(ctx, c.Param("id"), actor); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) relatedPosts(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.abort(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := s.deps.Related.RelatedTo(ctx, c.Param("id"), limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) trackView(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := requestCtx(c)
	defer cancel()
	if _, err := s.deps.Analytics.TrackView(ctx, id, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.abort(c, err)
		return
	}
	n, err := s.deps.Analytics.ViewCount(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"viewCount": n})
}

// listFilter reads the pagination and filter query parameters. Anonymous
// callers only ever see published posts.
func listFilter(c *gin.Context) (post.ListFilter, error) {
	var (
		f   post.ListFilter
		err error
	)
	if f.Page, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if raw := c.Query("published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			return f, badRequest("published must be a boolean")
		}
		f.Published = &published
	}
	f.AuthorID = c.Query("authorId")
	f.CategoryID = c.Query("categoryId")

	// non-admins only see their own drafts
	actor, ok := actorOf(c)
	switch {
	case !ok:
		published := true
		f.Published = &published
	case actor.Role != model.RoleAdmin:
		f.DraftsOf = actor.UserID
	}
	return f, nil
}

// queryInt parses an optional integer query parameter, 0 when absent.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(key + " must be an integer")
	}
	return n, nil
}
