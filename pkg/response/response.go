package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/logger"
)

// Response is the envelope every API answer is wrapped in.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the client-visible part of an AppError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes pagination metadata.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// NewMeta derives the page count from total and perPage.
func NewMeta(page, perPage int, total int64) *Meta {
	meta := &Meta{Page: page, PerPage: perPage, Total: int(total)}
	if perPage > 0 {
		meta.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return meta
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error renders err through its AppError classification. 5xx answers are logged with the
// internal cause, which stays out of the body.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logServerError(c, appErr)
	}

	c.JSON(status, Response{Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message}})
}

func logServerError(c *gin.Context, appErr *appErrors.AppError) {
	fields := []zap.Field{zap.String("code", appErr.Code), zap.Error(appErr)}
	if c.Request != nil {
		fields = append(fields, zap.String("method", c.Request.Method), zap.String("path", c.Request.URL.Path))
	}
	if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	logger.WithModule("http").Error("request failed", fields...)
}
