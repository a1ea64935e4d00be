package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
	"messaging-service/internal/notifications"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
)

const testSecret = "ws-test-secret"

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *presence.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := presence.NewRegistry(nil)
	svc := notifications.NewService(repositories.NewMemoryNotificationStore(), reg, nil)
	engine := messaging.NewEngine(repositories.NewMemoryConversationStore(), reg, svc, nil, messaging.Options{})
	handler := NewHandler(engine, auth.NewJWTVerifier(testSecret), NewHub(), nil, Options{AuthTimeout: time.Second})

	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.NewJWTVerifier(testSecret).Sign(auth.Identity{UserID: userID, Email: userID + "@example.com", UserType: "individual"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, userID))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	waitFor(t, conn, models.EventAuthenticated)
	return conn
}

func waitFor(t *testing.T, conn *websocket.Conn, event string) inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var in inbound
		require.NoError(t, conn.ReadJSON(&in))
		if in.Event == event {
			return in
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

func TestHandshakeWithHeaderToken(t *testing.T) {
	srv, reg := newTestServer(t)
	conn := dial(t, srv, "u1")

	assert.Eventually(t, func() bool { return reg.IsOnline("u1") }, time.Second, 10*time.Millisecond)
	send(t, conn, models.EventPing, nil)
	waitFor(t, conn, models.EventPong)
}

func TestHandshakeRejectsBadHeaderToken(t *testing.T) {
	srv, _ := newTestServer(t)
	header := http.Header{}
	header.Set("Authorization", "Bearer nope")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFirstFrameAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, models.EventAuthenticate, map[string]string{"token": token(t, "u7")})
	in := waitFor(t, conn, models.EventAuthenticated)

	var who models.OnlineUser
	require.NoError(t, json.Unmarshal(in.Data, &who))
	assert.Equal(t, "u7", who.UserID)
	assert.NotEmpty(t, who.ConnectionID)
}

func TestFirstFrameAuthenticationFailureCloses(t *testing.T) {
	srv, reg := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, models.EventAuthenticate, map[string]string{"token": "garbage"})
	in := waitFor(t, conn, models.EventError)
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(in.Data, &payload))
	assert.Equal(t, messaging.CodeAuthentication, payload.Code)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	assert.Equal(t, 0, reg.Count())
}

func TestMessageReachesRecipient(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	send(t, alice, models.EventStartConversation, map[string]string{"recipientId": "bob", "message": "Hello"})

	in := waitFor(t, bob, models.EventNewMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(in.Data, &msg))
	assert.Equal(t, "alice", msg.SenderID)
	require.NotNil(t, msg.Body)
	assert.Equal(t, "Hello", *msg.Body)

	waitFor(t, bob, models.EventNewNotification)
	waitFor(t, alice, models.EventNewMessage)
}

func TestMalformedFrameReturnsValidationError(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	in := waitFor(t, conn, models.EventError)
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(in.Data, &payload))
	assert.Equal(t, messaging.CodeValidation, payload.Code)

	send(t, conn, models.EventPing, nil)
	waitFor(t, conn, models.EventPong)
}

func TestDisconnectUnregisters(t *testing.T) {
	srv, reg := newTestServer(t)
	conn := dial(t, srv, "u1")
	require.Eventually(t, func() bool { return reg.IsOnline("u1") }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !reg.IsOnline("u1") }, 2*time.Second, 10*time.Millisecond)
}
