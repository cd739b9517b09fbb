package web

import (
	"net/http"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
)

type errorBody struct {
	Error string     `json:"error"`
	Kind  model.Kind `json:"kind,omitempty"`
}

// statusOf maps an error kind to its http status.
func statusOf(err error) int {
	switch model.KindOf(err) {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindInvalidArgument:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	case model.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as json. Kinded errors keep their message, anything
// else is logged and reported as an internal error.
func (s *Server) abort(c *gin.Context, err error) {
	status := statusOf(err)
	kind := model.KindOf(err)
	if kind == "" || status >= http.StatusInternalServerError {
		gmw.GetLogger(c).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}

	body := errorBody{Error: "internal error", Kind: kind}
	if kind != "" {
		var typed *model.Error
		if errors.As(err, &typed) {
			body.Error = typed.Error()
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(msg string) error {
	return model.NewError(model.KindInvalidArgument, msg)
}
