package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/notifications"
	"messaging-service/internal/telemetry"
)

// NotificationService is the notification fan-out as seen by HTTP handlers.
type NotificationService interface {
	Notify(ctx context.Context, userID string, notificationType models.NotificationType, title, message string, data map[string]any) (models.Notification, error)
	GetForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkOneRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// NotificationHandler exposes the notification history.
type NotificationHandler struct {
	svc   NotificationService
	audit *telemetry.AuditEmitter
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(svc NotificationService, audit *telemetry.AuditEmitter) *NotificationHandler {
	return &NotificationHandler{svc: svc, audit: audit}
}

// List returns a page of notifications, newest first, plus the unread count.
func (h *NotificationHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	userID := callerID(c)
	list, err := h.svc.GetForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	unread, err := h.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unreadCount": unread})
}

// UnreadCount returns how many notifications are unread.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.svc.UnreadCount(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead marks one notification read. Unknown or foreign ids still get 204.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := callerID(c)
	if err := h.svc.MarkOneRead(c.Request.Context(), c.Param("id"), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification"})
		return
	}
	emitAudit(c, h.audit, "notification.read", "notification marked read", map[string]any{
		"notification_id": c.Param("id"),
	})
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks every notification of the caller read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := callerID(c)
	updated, err := h.svc.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications"})
		return
	}
	emitAudit(c, h.audit, "notification.read_all", "notifications marked read", map[string]any{
		"updated": updated,
	})
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// InternalNotify lets other back-office services raise a notification.
func (h *NotificationHandler) InternalNotify(c *gin.Context) {
	var req struct {
		UserID  string                  `json:"userId" binding:"required"`
		Type    models.NotificationType `json:"type" binding:"required"`
		Title   string                  `json:"title" binding:"required"`
		Message string                  `json:"message"`
		Data    map[string]any          `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.svc.Notify(c.Request.Context(), req.UserID, req.Type, req.Title, req.Message, req.Data)
	if errors.Is(err, notifications.ErrInvalidNotification) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}
	c.JSON(http.StatusCreated, n)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
