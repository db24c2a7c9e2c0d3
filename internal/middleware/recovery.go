package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/logger"
	"github.com/roadwatch/roadwatch/pkg/response"
)

var errMethodNotAllowed = apperrors.New("METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)

// Recovery turns a panicking handler into a 500 envelope. A handler that already started
// its response keeps it; the panic is only logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.WithModule("http").Error("handler panicked",
				zap.String("method", c.Request.Method),
				zap.String("route", routeLabel(c)),
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
				zap.Bool("response_started", c.Writer.Written()),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			if !c.Writer.Written() {
				response.Error(c, apperrors.ErrInternalServer)
			}
			c.Abort()
		}()
		c.Next()
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// NotFoundHandler answers unknown routes with the JSON error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.ErrNotFound.WithMessage(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}

// MethodNotAllowedHandler answers known routes called with the wrong method.
func MethodNotAllowedHandler(c *gin.Context) {
	response.Error(c, errMethodNotAllowed)
}
