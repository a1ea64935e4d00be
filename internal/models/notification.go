package models

import "time"

// NotificationType enumerates notification kinds.
type NotificationType string

const (
	NotificationNewMessage         NotificationType = "new_message"
	NotificationKYCApproved        NotificationType = "kyc_approved"
	NotificationKYCRejected        NotificationType = "kyc_rejected"
	NotificationApplicationUpdate  NotificationType = "application_update"
	NotificationRequirementUpdate  NotificationType = "requirement_update"
	NotificationSubscriptionUpdate NotificationType = "subscription_update"
	NotificationSystem             NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewMessage, NotificationKYCApproved, NotificationKYCRejected,
		NotificationApplicationUpdate, NotificationRequirementUpdate,
		NotificationSubscriptionUpdate, NotificationSystem:
		return true
	}
	return false
}

// Notification is a durable, per-user notice.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Data      map[string]any   `db:"-" json:"data,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}
