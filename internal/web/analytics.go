package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) dashboard(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	stats, err := s.deps.Analytics.DashboardStats(ctx)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) viewTrend(c *gin.Context) {
	days, err := queryInt(c, "days")
	if err != nil {
		s.abort(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	trend, err := s.deps.Analytics.ViewTrend(ctx, days)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": trend})
}

func (s *Server) mostViewed(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.abort(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := s.deps.Analytics.MostViewed(ctx, limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
