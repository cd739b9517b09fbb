// Package web exposes the cms over a gin REST api.
package web

import (
	"context"
	"net/http"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Laisky/laisky-blog-cms/internal/cms/analytics"
	"github.com/Laisky/laisky-blog-cms/internal/cms/post"
	"github.com/Laisky/laisky-blog-cms/internal/cms/related"
	"github.com/Laisky/laisky-blog-cms/internal/cms/taxonomy"
	"github.com/Laisky/laisky-blog-cms/library/jwt"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Deps are the services served by the api.
type Deps struct {
	Posts     *post.Repository
	Taxonomy  *taxonomy.Service
	Related   *related.Scorer
	Analytics *analytics.Service
	Tokens    *jwt.Signer
	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
	Logger   logSDK.Logger
}

// Server is the http front of the cms.
type Server struct {
	engine *gin.Engine
	deps   Deps
	logger logSDK.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Posts == nil:
		return nil, errors.New("post repository is required")
	case deps.Taxonomy == nil:
		return nil, errors.New("taxonomy service is required")
	case deps.Related == nil:
		return nil, errors.New("related scorer is required")
	case deps.Analytics == nil:
		return nil, errors.New("analytics service is required")
	case deps.Tokens == nil:
		return nil, errors.New("token signer is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Logger.Named("web")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{engine: gin.New(), deps: deps, logger: deps.Logger}
	s.engine.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(gmw.WithLogger(deps.Logger.Named("gin"))),
	)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "hello, world")
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api", s.authenticate)

	posts := api.Group("/posts")
	posts.GET("", s.listPosts)
	posts.GET("/search", s.searchPosts)
	posts.GET("/slug/:slug", s.getPostBySlug)
	posts.GET("/:id", s.getPost)
	posts.GET("/:id/related", s.relatedPosts)
	posts.POST("/:id/views", s.trackView)
	posts.POST("", s.requireAuth, s.createPost)
	posts.PATCH("/:id", s.requireAuth, s.updatePost)
	posts.DELETE("/:id", s.requireAuth, s.deletePost)
	posts.GET("/:id/revisions", s.requireAuth, s.listRevisions)

	revisions := api.Group("/revisions", s.requireAuth)
	revisions.GET("/:id", s.getRevision)
	revisions.POST("/:id/restore", s.restoreRevision)

	categories := api.Group("/categories")
	categories.GET("", s.listCategories)
	categories.GET("/slug/:slug", s.getCategoryBySlug)
	categories.POST("", s.requireAuth, s.createCategory)
	categories.PATCH("/:id", s.requireAdmin, s.updateCategory)
	categories.DELETE("/:id", s.requireAdmin, s.deleteCategory)

	tags := api.Group("/tags")
	tags.GET("", s.listTags)
	tags.GET("/slug/:slug", s.getTagBySlug)
	tags.POST("", s.requireAuth, s.createTag)
	tags.PATCH("/:id", s.requireAdmin, s.updateTag)
	tags.DELETE("/:id", s.requireAdmin, s.deleteTag)

	stats := api.Group("/analytics", s.requireAdmin)
	stats.GET("/dashboard", s.dashboard)
	stats.GET("/trend", s.viewTrend)
	stats.GET("/most-viewed", s.mostViewed)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on http", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	s.logger.Info("http server stopped")
	return nil
}

func requestCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
