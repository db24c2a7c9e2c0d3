package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/response"
	"github.com/roadwatch/roadwatch/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and applies its validate tags. On
// failure the 400 has already been written.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := validator.Struct(dest); err != nil {
		response.Error(c, errors.NewValidation(err.Error()))
		return false
	}
	return true
}

// parseIntQuery reads an integer query parameter. Absent or malformed values yield fallback.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return parsed
}
