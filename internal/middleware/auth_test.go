package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt("userID"), "email": c.GetString("email")})
	})
	return r
}

func get(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()
	exp := time.Now().Add(time.Hour).Unix()

	valid := sign(t, jwt.MapClaims{"sub": 3, "email": "ops@example.org", "role": "admin", "exp": exp}, secret)
	w := get(r, "Bearer "+valid)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":3,"email":"ops@example.org"}`, w.Body.String())

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(t, jwt.MapClaims{"sub": 3, "role": "admin", "exp": exp}, "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"sub": 3, "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}, secret), http.StatusUnauthorized},
		{"no sub", "Bearer " + sign(t, jwt.MapClaims{"role": "admin", "exp": exp}, secret), http.StatusUnauthorized},
		{"not admin", "Bearer " + sign(t, jwt.MapClaims{"sub": 3, "role": "viewer", "exp": exp}, secret), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(r, tt.auth).Code)
		})
	}
}
