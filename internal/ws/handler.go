package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"messaging-service/internal/auth"
	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Options tunes the websocket transport.
type Options struct {
	SendBuffer     int
	AuthTimeout    time.Duration
	AllowedOrigins []string
}

// Handler upgrades HTTP requests to the live messaging channel.
type Handler struct {
	engine   *messaging.Engine
	verifier auth.Verifier
	hub      *Hub
	log      *zap.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler.
func NewHandler(engine *messaging.Engine, verifier auth.Verifier, hub *Hub, log *zap.Logger, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	h := &Handler{engine: engine, verifier: verifier, hub: hub, log: log, opts: opts}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if originMatches(strings.ToLower(allowed), strings.ToLower(origin)) {
			return true
		}
	}
	return false
}

// originMatches supports a single "*" wildcard, as in "https://*.example.com".
func originMatches(pattern, origin string) bool {
	if pattern == "*" {
		return true
	}
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return pattern == origin
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	return len(origin) >= len(prefix)+len(suffix) && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix)
}

// Handle upgrades the connection and starts the session. A token in the
// request is verified before upgrading; otherwise the first frame must be
// an authenticate command.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var (
		identity      auth.Identity
		authenticated bool
	)
	if token := tokenFromRequest(c.Request); token != "" {
		id, err := h.verifier.Verify(token)
		if err != nil {
			observability.IncWSEvent("ws_auth_failed")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		identity, authenticated = id, true
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	if !authenticated {
		identity, err = h.authenticateFirstFrame(conn)
		if err != nil {
			observability.IncWSEvent("ws_auth_failed")
			h.rejectConn(conn, err)
			return
		}
	}

	info := ConnInfo{
		UserID:      identity.UserID,
		Client:      observability.ClientInfoFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, h.opts.SendBuffer, h.log.With(zap.String("user_id", info.UserID)))
	session := h.engine.Open(identity, client)
	info.ConnID = session.ID()
	client.info = info
	h.hub.Add(client)

	client.Send(models.Event{Event: models.EventAuthenticated, Data: models.OnlineUser{
		UserID:       identity.UserID,
		Email:        identity.Email,
		UserType:     identity.UserType,
		ConnectionID: info.ConnID,
		ConnectedAt:  info.ConnectedAt,
	}})

	sessionCtx := context.WithoutCancel(ctx)
	publishWSEvent(sessionCtx, "ws_connect", info, "")
	client.log.Info("websocket connected", zap.String("conn_id", info.ConnID))

	go client.writePump()
	go h.readPump(sessionCtx, client, session)
}

type authenticatePayload struct {
	Token string `json:"token"`
}

func (h *Handler) authenticateFirstFrame(conn *websocket.Conn) (auth.Identity, error) {
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.AuthTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return auth.Identity{}, errors.New("authentication timed out")
	}
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event != models.EventAuthenticate {
		return auth.Identity{}, errors.New("first frame must be authenticate")
	}
	var p authenticatePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return auth.Identity{}, errors.New("malformed authenticate payload")
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p.Token), "Bearer "))
	identity, err := h.verifier.Verify(token)
	if err != nil {
		return auth.Identity{}, errors.New("invalid token")
	}
	return identity, nil
}

// rejectConn reports an authentication failure and closes with policy violation.
func (h *Handler) rejectConn(conn *websocket.Conn, reason error) {
	defer conn.Close()
	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(models.Event{Event: models.EventError, Data: models.ErrorPayload{
		Command: models.EventAuthenticate,
		Code:    messaging.CodeAuthentication,
		Message: reason.Error(),
	}})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"), deadline)
}

func (h *Handler) readPump(ctx context.Context, client *Client, session *messaging.Session) {
	var closeReason string
	defer func() {
		session.Close()
		h.hub.Remove(client)
		client.Shutdown(websocket.CloseNormalClosure, "")
		publishWSEvent(ctx, "ws_disconnect", client.info, closeReason)
		client.log.Info("websocket disconnected", zap.String("conn_id", client.info.ConnID), zap.String("reason", closeReason))
	}()

	conn := client.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !client.closed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", client.info, closeReason)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			client.Send(models.Event{Event: models.EventError, Data: models.ErrorPayload{
				Code:    messaging.CodeValidation,
				Message: "malformed frame",
			}})
			continue
		}
		session.Handle(ctx, frame)
	}
}
