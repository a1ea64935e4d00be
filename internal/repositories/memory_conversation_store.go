package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
)

type conversationLog struct {
	mu       sync.RWMutex
	conv     models.Conversation
	messages []models.Message
	readBy   []map[string]struct{}
}

// MemoryConversationStore keeps conversations in process memory.
// The store lock guards the indexes; each conversation's log has its own lock
// so appends to different conversations do not contend.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversationLog
	direct        map[string]string
	byUser        map[string][]string
	now           func() time.Time
}

// NewMemoryConversationStore constructs an empty store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: make(map[string]*conversationLog),
		direct:        make(map[string]string),
		byUser:        make(map[string][]string),
		now:           time.Now,
	}
}

// FindOrCreateDirect returns the direct conversation for the pair, creating it once.
func (s *MemoryConversationStore) FindOrCreateDirect(ctx context.Context, userA, userB string) (models.Conversation, error) {
	if err := validateDirectPair(userA, userB); err != nil {
		return models.Conversation{}, err
	}
	key := directKey(userA, userB)

	s.mu.RLock()
	if id, ok := s.direct[key]; ok {
		conv := s.conversations[id].conv
		s.mu.RUnlock()
		return copyConversation(conv), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.direct[key]; ok {
		return copyConversation(s.conversations[id].conv), nil
	}

	participants := []string{userA, userB}
	if userA > userB {
		participants = []string{userB, userA}
	}
	conv := models.Conversation{
		ID:           uuid.NewString(),
		Participants: participants,
		Type:         models.ConversationDirect,
		CreatedAt:    s.now().UTC(),
	}
	s.insertLocked(conv)
	s.direct[key] = conv.ID
	return copyConversation(conv), nil
}

// CreateGroup creates a new group conversation.
func (s *MemoryConversationStore) CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (models.Conversation, error) {
	members, err := groupMembers(creatorID, participantIDs)
	if err != nil {
		return models.Conversation{}, err
	}
	conv := models.Conversation{
		ID:           uuid.NewString(),
		Participants: members,
		Type:         models.ConversationGroup,
		Name:         name,
		CreatedAt:    s.now().UTC(),
	}

	s.mu.Lock()
	s.insertLocked(conv)
	s.mu.Unlock()
	return copyConversation(conv), nil
}

func (s *MemoryConversationStore) insertLocked(conv models.Conversation) {
	s.conversations[conv.ID] = &conversationLog{conv: conv}
	for _, p := range conv.Participants {
		s.byUser[p] = append(s.byUser[p], conv.ID)
	}
}

func (s *MemoryConversationStore) lookup(conversationID string) (*conversationLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.conversations[conversationID]
	return l, ok
}

// GetConversation fetches conversation metadata.
func (s *MemoryConversationStore) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	l, ok := s.lookup(conversationID)
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return copyConversation(l.conv), nil
}

// AppendMessage appends a message after all prior messages of the conversation.
func (s *MemoryConversationStore) AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	l, ok := s.lookup(in.ConversationID)
	if !ok {
		return models.Message{}, ErrConversationNotFound
	}
	if !l.conv.HasParticipant(in.SenderID) {
		return models.Message{}, ErrNotParticipant
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sentAt := s.now().UTC()
	if n := len(l.messages); n > 0 && sentAt.Before(l.messages[n-1].SentAt) {
		sentAt = l.messages[n-1].SentAt
	}
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderEmail:    in.SenderEmail,
		Body:           copyString(in.Body),
		AttachmentURL:  copyString(in.AttachmentURL),
		Kind:           in.Kind,
		SentAt:         sentAt,
		ReadBy:         []string{in.SenderID},
	}
	l.messages = append(l.messages, msg)
	l.readBy = append(l.readBy, map[string]struct{}{in.SenderID: {}})
	return copyMessage(msg), nil
}

// MarkRead adds userID to readBy of every message it has not read and did not send.
func (s *MemoryConversationStore) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	l, ok := s.lookup(conversationID)
	if !ok || !l.conv.HasParticipant(userID) {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.markReadLocked(userID, len(l.messages)), nil
}

// MarkReadThrough marks messages up to and including lastMessageID. Messages
// appended after it stay unread; an unknown id marks nothing.
func (s *MemoryConversationStore) MarkReadThrough(ctx context.Context, conversationID, userID, lastMessageID string) (int, error) {
	l, ok := s.lookup(conversationID)
	if !ok || !l.conv.HasParticipant(userID) {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages {
		if l.messages[i].ID == lastMessageID {
			return l.markReadLocked(userID, i+1), nil
		}
	}
	return 0, nil
}

func (l *conversationLog) markReadLocked(userID string, limit int) int {
	changed := 0
	for i := 0; i < limit; i++ {
		if l.messages[i].SenderID == userID {
			continue
		}
		if _, seen := l.readBy[i][userID]; seen {
			continue
		}
		l.readBy[i][userID] = struct{}{}
		l.messages[i].ReadBy = append(l.messages[i].ReadBy, userID)
		changed++
	}
	return changed
}

// ListForUser returns the user's conversations with last message and unread count.
func (s *MemoryConversationStore) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.byUser[userID]...)
	logs := make([]*conversationLog, 0, len(ids))
	for _, id := range ids {
		logs = append(logs, s.conversations[id])
	}
	s.mu.RUnlock()

	result := make([]models.ConversationSummary, 0, len(logs))
	for _, l := range logs {
		result = append(result, l.summary(userID))
	}
	sortSummaries(result)
	return result, nil
}

// GetSummary returns one conversation's summary as userID sees it.
func (s *MemoryConversationStore) GetSummary(ctx context.Context, conversationID, userID string) (models.ConversationSummary, error) {
	l, ok := s.lookup(conversationID)
	if !ok || !l.conv.HasParticipant(userID) {
		return models.ConversationSummary{}, ErrConversationNotFound
	}
	return l.summary(userID), nil
}

func (l *conversationLog) summary(userID string) models.ConversationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	summary := models.ConversationSummary{Conversation: copyConversation(l.conv)}
	if n := len(l.messages); n > 0 {
		last := l.messages[n-1]
		preview := last.Preview(0)
		at := last.SentAt
		summary.LastMessage = &preview
		summary.LastMessageAt = &at
	}
	for i, m := range l.messages {
		if m.SenderID == userID {
			continue
		}
		if _, seen := l.readBy[i][userID]; !seen {
			summary.UnreadCount++
		}
	}
	return summary
}

// GetHistory returns the conversation and its ordered messages for a participant.
func (s *MemoryConversationStore) GetHistory(ctx context.Context, conversationID, userID string) (models.Conversation, []models.Message, error) {
	l, ok := s.lookup(conversationID)
	if !ok || !l.conv.HasParticipant(userID) {
		return models.Conversation{}, nil, ErrConversationNotFound
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	msgs := make([]models.Message, 0, len(l.messages))
	for _, m := range l.messages {
		msgs = append(msgs, copyMessage(m))
	}
	return copyConversation(l.conv), msgs, nil
}

func copyConversation(c models.Conversation) models.Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	return c
}

func copyMessage(m models.Message) models.Message {
	m.ReadBy = append([]string(nil), m.ReadBy...)
	m.Body = copyString(m.Body)
	m.AttachmentURL = copyString(m.AttachmentURL)
	return m
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ ConversationStore = (*MemoryConversationStore)(nil)
