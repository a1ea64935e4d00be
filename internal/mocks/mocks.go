package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type ConversationStoreMock struct {
	mock.Mock
}

func (m *ConversationStoreMock) FindOrCreateDirect(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationStoreMock) CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (models.Conversation, error) {
	args := m.Called(ctx, creatorID, name, participantIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationStoreMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationStoreMock) AppendMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *ConversationStoreMock) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ConversationStoreMock) MarkReadThrough(ctx context.Context, conversationID, userID, lastMessageID string) (int, error) {
	args := m.Called(ctx, conversationID, userID, lastMessageID)
	return args.Int(0), args.Error(1)
}

func (m *ConversationStoreMock) GetSummary(ctx context.Context, conversationID, userID string) (models.ConversationSummary, error) {
	args := m.Called(ctx, conversationID, userID)
	var summary models.ConversationSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.ConversationSummary)
	}
	return summary, args.Error(1)
}

func (m *ConversationStoreMock) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationStoreMock) GetHistory(ctx context.Context, conversationID, userID string) (models.Conversation, []models.Message, error) {
	args := m.Called(ctx, conversationID, userID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	var msgs []models.Message
	if val := args.Get(1); val != nil {
		msgs = val.([]models.Message)
	}
	return conv, msgs, args.Error(2)
}

var _ repositories.ConversationStore = (*ConversationStoreMock)(nil)

type NotificationStoreMock struct {
	mock.Mock
}

func (m *NotificationStoreMock) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	args := m.Called(ctx, n)
	var out models.Notification
	if val := args.Get(0); val != nil {
		out = val.(models.Notification)
	}
	return out, args.Error(1)
}

func (m *NotificationStoreMock) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationStoreMock) MarkRead(ctx context.Context, notificationID, userID string) error {
	args := m.Called(ctx, notificationID, userID)
	return args.Error(0)
}

func (m *NotificationStoreMock) MarkAllRead(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *NotificationStoreMock) UnreadCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

var _ repositories.NotificationStore = (*NotificationStoreMock)(nil)

// NotificationServiceMock stands in for the notification fan-out in handler tests.
type NotificationServiceMock struct {
	mock.Mock
}

func (m *NotificationServiceMock) Notify(ctx context.Context, userID string, notificationType models.NotificationType, title, message string, data map[string]any) (models.Notification, error) {
	args := m.Called(ctx, userID, notificationType, title, message, data)
	var out models.Notification
	if val := args.Get(0); val != nil {
		out = val.(models.Notification)
	}
	return out, args.Error(1)
}

func (m *NotificationServiceMock) GetForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationServiceMock) MarkOneRead(ctx context.Context, notificationID, userID string) error {
	args := m.Called(ctx, notificationID, userID)
	return args.Error(0)
}

func (m *NotificationServiceMock) MarkAllRead(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *NotificationServiceMock) UnreadCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type DelivererMock struct {
	mock.Mock
}

func (m *DelivererMock) Deliver(userID, event string, payload any) int {
	args := m.Called(userID, event, payload)
	return args.Int(0)
}
