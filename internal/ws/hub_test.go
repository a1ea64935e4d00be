package ws

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()
	c := newClient(nil, 4, zap.NewNop())

	hub.Add(c)
	assert.Equal(t, 1, hub.Count())

	hub.Remove(c)
	hub.Remove(c)
	assert.Equal(t, 0, hub.Count())
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub()
	a, b := newClient(nil, 1, zap.NewNop()), newClient(nil, 1, zap.NewNop())
	hub.Add(a)
	hub.Add(b)

	hub.CloseAll()
	assert.True(t, a.closed())
	assert.True(t, b.closed())
	assert.Equal(t, websocket.CloseGoingAway, a.closeCode)
}

func TestClientSendShutsDownWhenFull(t *testing.T) {
	c := newClient(nil, 1, zap.NewNop())

	assert.True(t, c.Send(models.Event{Event: models.EventPong}))
	assert.False(t, c.Send(models.Event{Event: models.EventPong}))
	assert.True(t, c.closed())
	assert.Equal(t, websocket.ClosePolicyViolation, c.closeCode)
	assert.False(t, c.Send(models.Event{Event: models.EventPong}))
}

func TestOriginMatches(t *testing.T) {
	assert.True(t, originMatches("*", "https://evil.test"))
	assert.True(t, originMatches("https://*", "https://app.upflyover.com"))
	assert.True(t, originMatches("https://*.upflyover.com", "https://app.upflyover.com"))
	assert.False(t, originMatches("https://*.upflyover.com", "https://upflyover.com.evil.test"))
	assert.False(t, originMatches("https://app.upflyover.com", "http://app.upflyover.com"))
}

func TestConnInfoPayload(t *testing.T) {
	info := ConnInfo{
		ConnID:      "c1",
		UserID:      "u1",
		Client:      observability.ClientInfo{DeviceID: "web", IP: "10.0.0.1"},
		ConnectedAt: time.Now().Add(-time.Second),
	}

	connect := info.payload("ws_connect", "")
	assert.Equal(t, int64(0), connect.DurationMS)
	assert.Equal(t, "web", connect.DeviceID)

	gone := info.payload("ws_disconnect", "client closed")
	assert.GreaterOrEqual(t, gone.DurationMS, int64(1000))
	assert.Equal(t, "client closed", gone.Reason)
	assert.Equal(t, "u1", gone.UserID)
}
