package ws

import (
	"time"

	"messaging-service/internal/observability"
)

// ConnInfo describes one live socket for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	Client      observability.ClientInfo
	TraceID     string
	ConnectedAt time.Time
}

// lifecyclePayload is the body of a ws_connect, ws_disconnect or ws_error event.
type lifecyclePayload struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

func (i ConnInfo) payload(event, reason string) lifecyclePayload {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(i.ConnectedAt).Milliseconds()
	}
	return lifecyclePayload{
		Event:      event,
		ConnID:     i.ConnID,
		UserID:     i.UserID,
		DeviceID:   i.Client.DeviceID,
		IP:         i.Client.IP,
		DurationMS: duration,
		Reason:     reason,
	}
}
