package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrInvalidParticipants  = errors.New("invalid participants")
)

// ConversationStore is the single source of truth for conversations and messages.
type ConversationStore interface {
	FindOrCreateDirect(ctx context.Context, userA, userB string) (models.Conversation, error)
	CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	AppendMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
	MarkReadThrough(ctx context.Context, conversationID, userID, lastMessageID string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	GetSummary(ctx context.Context, conversationID, userID string) (models.ConversationSummary, error)
	GetHistory(ctx context.Context, conversationID, userID string) (models.Conversation, []models.Message, error)
}

// directKey is the uniqueness key of a direct conversation: the sorted pair.
func directKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

func validateDirectPair(userA, userB string) error {
	if strings.TrimSpace(userA) == "" || strings.TrimSpace(userB) == "" {
		return ErrInvalidParticipants
	}
	if userA == userB {
		return ErrInvalidParticipants
	}
	return nil
}

// groupMembers dedupes and sorts members, always including the creator.
func groupMembers(creatorID string, participantIDs []string) ([]string, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, ErrInvalidParticipants
	}
	set := map[string]struct{}{creatorID: {}}
	for _, id := range participantIDs {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	if len(set) < 2 {
		return nil, ErrInvalidParticipants
	}
	members := make([]string, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

// sortSummaries orders by last activity, newest first, then by id.
func sortSummaries(list []models.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		ti := list[i].CreatedAt
		if list[i].LastMessageAt != nil {
			ti = *list[i].LastMessageAt
		}
		tj := list[j].CreatedAt
		if list[j].LastMessageAt != nil {
			tj = *list[j].LastMessageAt
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return list[i].ID < list[j].ID
	})
}
