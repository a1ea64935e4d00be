package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

const requestIDKey = "request_id"

// requestID returns the caller's X-Request-ID, minting one the first time a
// request without it is audited.
func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := observability.ClientInfoFromRequest(c.Request).RequestID
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	return id
}

// callerID is the authenticated user, or empty on service-token routes.
func callerID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

// emitAudit records action for the current caller.
func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, action, text string, fields map[string]any) {
	audit.Emit(c.Request.Context(), telemetry.Record{
		Action:    action,
		Text:      text,
		RequestID: requestID(c),
		UserID:    callerID(c),
		Fields:    fields,
	})
}
