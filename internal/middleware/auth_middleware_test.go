package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/roadwatch/roadwatch/internal/auth"
)

func newTestJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "roadwatch",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return jwtSvc
}

func mustToken(t *testing.T, svc *iauth.JWTService, userID, role string) string {
	t.Helper()
	token, err := svc.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func callWithAuthorization(r http.Handler, target, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRejectsWithBearerChallenge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)
	foreign, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "other"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for name, header := range map[string]string{
		"missing header": "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"garbage token":  "Bearer not-a-jwt",
		"foreign secret": "Bearer " + mustToken(t, foreign, "citizen-1", "citizen"),
	} {
		t.Run(name, func(t *testing.T) {
			w := callWithAuthorization(r, "/secure", header)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestAuthExposesClaimsToHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc), func(c *gin.Context) {
		claims, _ := c.Get(CtxClaimsKey)
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"role":    c.GetString(CtxRoleKey),
			"issuer":  claims.(*iauth.Claims).Issuer,
		})
	})

	w := callWithAuthorization(r, "/secure", "Bearer "+mustToken(t, jwtSvc, "staff-3", "Staff"))
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, map[string]string{"user_id": "staff-3", "role": "staff", "issuer": "roadwatch"}, payload)
}

func TestAuthWithoutValidatorRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secure", Auth(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := callWithAuthorization(r, "/secure", "Bearer "+mustToken(t, newTestJWT(t), "u1", "admin"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)

	r := gin.New()
	r.GET("/admin", Auth(jwtSvc), RequireRole(" Admin "), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/bare", RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for role, expected := range map[string]int{
		"admin":   http.StatusNoContent,
		"staff":   http.StatusForbidden,
		"citizen": http.StatusForbidden,
	} {
		w := callWithAuthorization(r, "/admin", "Bearer "+mustToken(t, jwtSvc, "u-"+role, role))
		require.Equal(t, expected, w.Code, role)
	}

	require.Equal(t, http.StatusUnauthorized, callWithAuthorization(r, "/bare", "").Code)
}
