package models

import "time"

// MessageKind is the payload kind of a message.
type MessageKind string

const (
	MessageText MessageKind = "text"
	MessageFile MessageKind = "file"
)

// Message is an append-only entry of a conversation.
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversationId"`
	SenderID       string      `db:"sender_id" json:"senderId"`
	SenderEmail    string      `db:"sender_email" json:"senderEmail"`
	Body           *string     `db:"body" json:"message"`
	AttachmentURL  *string     `db:"attachment_url" json:"fileUrl"`
	Kind           MessageKind `db:"kind" json:"type"`
	SentAt         time.Time   `db:"sent_at" json:"timestamp"`
	ReadBy         []string    `db:"-" json:"readBy"`
}

// IsReadBy reports whether userID acknowledged the message.
func (m Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// FilePreview stands in for the body of a file message without text.
const FilePreview = "Sent a file"

// Preview is the text shown for the message in conversation lists and
// notifications. A positive limit truncates the body to that many runes.
func (m Message) Preview(limit int) string {
	if m.Body == nil || *m.Body == "" {
		if m.Kind == MessageFile {
			return FilePreview
		}
		return ""
	}
	runes := []rune(*m.Body)
	if limit <= 0 || len(runes) <= limit {
		return *m.Body
	}
	return string(runes[:limit]) + "..."
}

// NewMessage carries the fields of a message about to be appended.
type NewMessage struct {
	ConversationID string
	SenderID       string
	SenderEmail    string
	Body           *string
	AttachmentURL  *string
	Kind           MessageKind
}
