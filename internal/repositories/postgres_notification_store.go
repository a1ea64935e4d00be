package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// PostgresNotificationStore is a sqlx implementation of NotificationStore.
type PostgresNotificationStore struct {
	db *sqlx.DB
}

// NewPostgresNotificationStore constructs a PostgresNotificationStore.
func NewPostgresNotificationStore(db *sqlx.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

type notificationRow struct {
	models.Notification
	RawData []byte `db:"data"`
}

func (r notificationRow) model() (models.Notification, error) {
	n := r.Notification
	n.CreatedAt = n.CreatedAt.UTC()
	if len(r.RawData) > 0 && string(r.RawData) != "null" {
		if err := json.Unmarshal(r.RawData, &n.Data); err != nil {
			return models.Notification{}, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return n, nil
}

// Create inserts a notification.
func (s *PostgresNotificationStore) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return models.Notification{}, fmt.Errorf("encode notification data: %w", err)
	}
	n.ID = uuid.NewString()
	n.Read = false
	err = s.db.QueryRowxContext(ctx, `INSERT INTO notifications (id, user_id, type, title, message, data, read)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE) RETURNING created_at`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, raw).Scan(&n.CreatedAt)
	if err != nil {
		return models.Notification{}, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}

// ListForUser pages through the user's notifications newest first.
func (s *PostgresNotificationStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, user_id, type, title, message, data, read, created_at
        FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flips one notification, scoped to its owner.
func (s *PostgresNotificationStore) MarkRead(ctx context.Context, notificationID, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flips every unread notification of the user.
func (s *PostgresNotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// UnreadCount counts unread notifications.
func (s *PostgresNotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID)
	return count, err
}

var _ NotificationStore = (*PostgresNotificationStore)(nil)
