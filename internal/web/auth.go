package web

import (
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/post"
)

const actorKey = "cms.actor"

// authenticate attaches the bearer token's actor to the request. Requests
// without a token pass through anonymously; a bad token is rejected.
func (s *Server) authenticate(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		c.Next()
		return
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		abortUnauthorized(c, "malformed authorization header")
		return
	}
	claims, err := s.deps.Tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		gmw.GetLogger(c).Debug("reject token", zap.Error(err))
		abortUnauthorized(c, "invalid token")
		return
	}

	c.Set(actorKey, post.Actor{UserID: claims.UserID, Role: claims.Role})
	c.Next()
}

func (s *Server) requireAuth(c *gin.Context) {
	if _, ok := actorOf(c); !ok {
		abortUnauthorized(c, "authentication required")
		return
	}
	c.Next()
}

func (s *Server) requireAdmin(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		abortUnauthorized(c, "authentication required")
		return
	}
	if actor.Role != model.RoleAdmin {
		s.abort(c, model.NewError(model.KindForbidden, "admin role required"))
		return
	}
	c.Next()
}

// actorOf returns the authenticated caller, if any.
func actorOf(c *gin.Context) (post.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return post.Actor{}, false
	}
	actor, ok := v.(post.Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: msg, Kind: "UNAUTHENTICATED"})
}
