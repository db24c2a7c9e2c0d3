package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext is the context handlers pass to services. Handlers invoked without a
// request, as in unit tests, get context.Background.
func requestContext(c *gin.Context) context.Context {
	if c != nil && c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}
