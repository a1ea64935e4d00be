package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler serves conversation reads for clients without a live connection.
type ConversationHandler struct {
	store repositories.ConversationStore
	audit *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(store repositories.ConversationStore, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{store: store, audit: audit}
}

// ListConversations returns the summaries visible to the authenticated user.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	list, err := h.store.ListForUser(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// GetMessages returns one conversation's ordered history. Non-participants get 404.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conv, msgs, err := h.store.GetHistory(c.Request.Context(), c.Param("id"), callerID(c))
	if errors.Is(err, repositories.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, models.MessagesList{Conversation: conv, Messages: msgs})
}

// CreateGroup creates a multi-party conversation that includes the caller.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name           string   `json:"name" binding:"required"`
		ParticipantIDs []string `json:"participantIds" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	userID := callerID(c)
	conv, err := h.store.CreateGroup(c.Request.Context(), userID, name, req.ParticipantIDs)
	if errors.Is(err, repositories.ErrInvalidParticipants) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a group needs at least one other participant"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	emitAudit(c, h.audit, "conversation.group_create", "group conversation created", map[string]any{
		"conversation_id": conv.ID,
		"participants":    len(conv.Participants),
	})
	c.JSON(http.StatusCreated, conv)
}
