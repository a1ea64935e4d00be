package repositories

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationStore persists notifications independently of live delivery.
type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// MemoryNotificationStore keeps notifications in process memory.
type MemoryNotificationStore struct {
	mu     sync.RWMutex
	byID   map[string]*models.Notification
	byUser map[string][]*models.Notification
	now    func() time.Time
}

// NewMemoryNotificationStore constructs an empty store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{
		byID:   make(map[string]*models.Notification),
		byUser: make(map[string][]*models.Notification),
		now:    time.Now,
	}
}

// Create stores n with a fresh id and read=false.
func (s *MemoryNotificationStore) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	n.ID = uuid.NewString()
	n.Read = false
	n.CreatedAt = s.now().UTC()
	n.Data = copyData(n.Data)

	s.mu.Lock()
	stored := n
	s.byID[n.ID] = &stored
	s.byUser[n.UserID] = append(s.byUser[n.UserID], &stored)
	s.mu.Unlock()

	n.Data = copyData(n.Data)
	return n, nil
}

// ListForUser returns the user's notifications newest first.
func (s *MemoryNotificationStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byUser[userID]
	ordered := make([]models.Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		n := *all[i]
		n.Data = copyData(n.Data)
		ordered = append(ordered, n)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	if offset >= len(ordered) {
		return []models.Notification{}, nil
	}
	end := offset + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[offset:end], nil
}

// MarkRead flips one notification the user owns.
func (s *MemoryNotificationStore) MarkRead(ctx context.Context, notificationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[notificationID]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

// MarkAllRead flips every unread notification of the user.
func (s *MemoryNotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, n := range s.byUser[userID] {
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

// UnreadCount counts stored notifications with read=false.
func (s *MemoryNotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.byUser[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

var _ NotificationStore = (*MemoryNotificationStore)(nil)
