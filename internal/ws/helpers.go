package ws

import (
	"context"
	"net/http"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
)

// tokenFromRequest reads the token from the Authorization header or the
// token query parameter.
func tokenFromRequest(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents,
		observability.NewEnvelope("ws_events", event, info.Client.RequestID, info.TraceID, info.payload(event, reason)))
}
