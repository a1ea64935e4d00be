package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func TestHealthAndReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := NewHealthHandler(map[string]ReadinessCheck{"db": func(context.Context) error { return nil }})
	broken := NewHealthHandler(map[string]ReadinessCheck{"db": func(context.Context) error { return errors.New("connection refused") }})

	r := gin.New()
	r.GET("/health", healthy.Health)
	r.GET("/ready", healthy.Ready)
	r.GET("/ready-broken", broken.Ready)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready-broken", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

type staticPresence []models.OnlineUser

func (p staticPresence) ListOnline() []models.OnlineUser { return p }

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	online := staticPresence{{UserID: "u1", ConnectionID: "c1", ConnectedAt: time.Now()}}

	disabled := gin.New()
	RegisterDebugRoutes(disabled, online, nil, false)
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/presence", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.messaging", mock.Anything).Return(nil).Once()
	enabled := gin.New()
	RegisterDebugRoutes(enabled, online, newTestAudit(pub), true)

	rec = httptest.NewRecorder()
	enabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/presence", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Online      []models.OnlineUser `json:"online"`
		Connections int                 `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Connections)

	rec = httptest.NewRecorder()
	enabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	pub.AssertExpectations(t)
}
