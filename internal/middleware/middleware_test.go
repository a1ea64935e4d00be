package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"messaging-service/internal/auth"
)

func authRouter(verifier auth.Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(verifier))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetString(UserIDKey), "email": c.GetString(UserEmailKey), "type": c.GetString(UserTypeKey)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	verifier := auth.NewJWTVerifier("secret")
	token, err := verifier.Sign(auth.Identity{UserID: "u1", Email: "u1@example.com", UserType: "company"}, time.Hour)
	require.NoError(t, err)
	router := authRouter(verifier)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"id":"u1","email":"u1@example.com","type":"company"}`, rec.Body.String())
}

func TestServiceTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	build := func(token string) *gin.Engine {
		r := gin.New()
		r.POST("/internal", ServiceTokenMiddleware(token), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	do := func(r *gin.Engine, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/internal", nil)
		if header != "" {
			req.Header.Set("X-Internal-Token", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, do(build(""), "anything"))
	assert.Equal(t, http.StatusUnauthorized, do(build("s3cret"), "wrong"))
	assert.Equal(t, http.StatusUnauthorized, do(build("s3cret"), ""))
	assert.Equal(t, http.StatusNoContent, do(build("s3cret"), "s3cret"))
}

func TestAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(AccessLog(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/boom"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", entries[0].ContextMap()["route"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
