package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/roadwatch/roadwatch/internal/auth"
	"github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxRoleKey   = "userRole"
)

// TokenValidator verifies bearer access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*iauth.Claims, error)
}

// Auth enforces JWT authentication using the supplied validator. Every failure answers 401
// with a Bearer challenge.
func Auth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(tokens, c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

func authenticate(tokens TokenValidator, header string) (*iauth.Claims, bool) {
	token := iauth.BearerToken(header)
	if token == "" || tokens == nil {
		return nil, false
	}
	claims, err := tokens.ValidateAccessToken(token)
	if err != nil || claims == nil || strings.TrimSpace(claims.UserID) == "" {
		return nil, false
	}
	return claims, true
}

// RequireRole rejects authenticated callers whose role is not listed. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(c *gin.Context) {
		if c.GetString(CtxUserIDKey) == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[strings.ToLower(c.GetString(CtxRoleKey))]; !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
