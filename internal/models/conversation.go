package models

import "time"

// ConversationType distinguishes pairwise chats from multi-party ones.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation groups participants exchanging messages.
type Conversation struct {
	ID           string           `db:"id" json:"id"`
	Participants []string         `db:"-" json:"participants"`
	Type         ConversationType `db:"type" json:"type"`
	Name         string           `db:"name" json:"name,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns everyone except userID.
func (c Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	Conversation
	LastMessage   *string    `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	UnreadCount   int        `json:"unreadCount"`
}
