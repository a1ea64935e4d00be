package observability

import (
	"net"
	"net/http"
	"strings"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderDeviceID  = "X-Device-Id"
)

// ClientInfo identifies the caller of an HTTP or websocket request for
// events and audit records.
type ClientInfo struct {
	RequestID string
	DeviceID  string
	IP        string
}

// ClientInfoFromRequest reads the caller headers. The IP prefers the first
// X-Forwarded-For hop, then X-Real-IP, then the socket address.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	return ClientInfo{
		RequestID: r.Header.Get(HeaderRequestID),
		DeviceID:  r.Header.Get(HeaderDeviceID),
		IP:        clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
