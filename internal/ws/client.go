package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messaging-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client owns one websocket. Events are queued on send and written by writePump.
// info is set once before the pumps start and is read only by them.
type Client struct {
	conn *websocket.Conn
	send chan models.Event
	done chan struct{}
	info ConnInfo
	log  *zap.Logger

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newClient(conn *websocket.Conn, buffer int, log *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		conn: conn,
		send: make(chan models.Event, buffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Send queues an event without blocking. A client whose buffer is full is
// shut down, since it can no longer keep up.
func (c *Client) Send(ev models.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.log.Warn("websocket send buffer full, closing")
		c.Shutdown(websocket.ClosePolicyViolation, "send buffer full")
		return false
	}
}

// Shutdown stops the write pump, which sends a close frame with code and reason.
func (c *Client) Shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug("websocket write failed", zap.String("conn_id", c.info.ConnID), zap.Error(err))
				c.Shutdown(websocket.CloseAbnormalClosure, err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Shutdown(websocket.CloseAbnormalClosure, err.Error())
				return
			}
		case <-c.done:
			if c.closeCode != websocket.CloseAbnormalClosure {
				c.flush()
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeReason), time.Now().Add(writeWait))
			}
			return
		}
	}
}

// flush writes whatever is already queued, without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}
