// Package notifications stores per-user notifications and pushes them to live
// connections when there are any.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidNotification = errors.New("invalid notification")

// Deliverer pushes an event to every live connection of a user.
type Deliverer interface {
	Deliver(userID, event string, payload any) int
}

// Service is the notification fan-out.
type Service struct {
	store    repositories.NotificationStore
	presence Deliverer
	log      *zap.Logger
}

// NewService constructs a Service. presence may be nil when no live channel exists.
func NewService(store repositories.NotificationStore, presence Deliverer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, presence: presence, log: log}
}

// Notify always stores the notification, then attempts a live push.
func (s *Service) Notify(ctx context.Context, userID string, notificationType models.NotificationType, title, message string, data map[string]any) (models.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return models.Notification{}, fmt.Errorf("%w: user id is required", ErrInvalidNotification)
	}
	if !notificationType.Valid() {
		return models.Notification{}, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, notificationType)
	}
	if strings.TrimSpace(title) == "" {
		return models.Notification{}, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}

	n, err := s.store.Create(ctx, models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return models.Notification{}, fmt.Errorf("store notification: %w", err)
	}
	observability.IncNotificationCreated(string(n.Type))

	if s.presence != nil {
		delivered := s.presence.Deliver(userID, models.EventNewNotification, n)
		observability.AddDeliveries(models.EventNewNotification, delivered)
	}

	env := observability.NewEnvelope("domain_events", "notification.created", "", "", map[string]any{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"type":            n.Type,
		"title":           n.Title,
	})
	if err := observability.PublishEvent(ctx, observability.RoutingNotificationCreated, env); err != nil {
		s.log.Warn("notification event publish failed", zap.String("notification_id", n.ID), zap.Error(err))
	}
	return n, nil
}

// GetForUser pages through notifications newest first.
func (s *Service) GetForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListForUser(ctx, userID, limit, offset)
}

// MarkOneRead marks a notification the user owns. Missing or foreign ids are ignored.
func (s *Service) MarkOneRead(ctx context.Context, notificationID, userID string) error {
	err := s.store.MarkRead(ctx, notificationID, userID)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return nil
	}
	return err
}

// MarkAllRead marks every notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}

// UnreadCount returns how many stored notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}
