package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-cms/internal/cms/taxonomy"
)

type tagInput struct {
	Name string `json:"name"`
}

func (s *Server) listCategories(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := s.deps.Taxonomy.ListCategories(ctx)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getCategoryBySlug(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Taxonomy.GetCategoryBySlug(ctx, c.Param("slug"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) createCategory(c *gin.Context) {
	var in taxonomy.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abort(c, badRequest("invalid JSON payload"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Taxonomy.CreateCategory(ctx, in)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) updateCategory(c *gin.Context) {
	var in taxonomy.CategoryUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abort(c, badRequest("invalid JSON payload"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Taxonomy.UpdateCategory(ctx, c.Param("id"), in)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) deleteCategory(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := s.deps.Taxonomy.DeleteCategory(ctx, c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listTags(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := s.deps.Taxonomy.ListTags(ctx)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getTagBySlug(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Taxonomy.GetTagBySlug(ctx, c.Param("slug"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) createTag(c *gin.Context) {
	var in tagInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abort(c, badRequest("invalid JSON payload"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Taxonomy.CreateTag(ctx, in.Name)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) updateTag(c *gin.Context) {
	var in tagInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abort(c, badRequest("invalid JSON payload"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	v, err := s.deps.Taxonomy.UpdateTag(ctx, c.Param("id"), in.Name)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) deleteTag(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := s.deps.Taxonomy.DeleteTag(ctx, c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
