package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

// PostgresConversationStore is a sqlx implementation of ConversationStore.
type PostgresConversationStore struct {
	db *sqlx.DB
}

// NewPostgresConversationStore constructs a PostgresConversationStore.
func NewPostgresConversationStore(db *sqlx.DB) *PostgresConversationStore {
	return &PostgresConversationStore{db: db}
}

type conversationRow struct {
	ID           string         `db:"id"`
	Type         string         `db:"type"`
	Name         string         `db:"name"`
	CreatedAt    time.Time      `db:"created_at"`
	Participants pq.StringArray `db:"participants"`
}

func (r conversationRow) model() models.Conversation {
	return models.Conversation{
		ID:           r.ID,
		Participants: []string(r.Participants),
		Type:         models.ConversationType(r.Type),
		Name:         r.Name,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

const selectConversation = `SELECT c.id, c.type, c.name, c.created_at,
        COALESCE((SELECT array_agg(p.user_id ORDER BY p.user_id) FROM conversation_participants p WHERE p.conversation_id = c.id), '{}') AS participants
        FROM conversations c`

// FindOrCreateDirect relies on the unique direct_key to settle concurrent creators.
func (s *PostgresConversationStore) FindOrCreateDirect(ctx context.Context, userA, userB string) (models.Conversation, error) {
	if err := validateDirectPair(userA, userB); err != nil {
		return models.Conversation{}, err
	}
	key := directKey(userA, userB)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (id, type, name, direct_key) VALUES ($1, 'direct', '', $2)
        ON CONFLICT (direct_key) DO NOTHING RETURNING id`, uuid.NewString(), key).Scan(&id)
	switch {
	case err == nil:
		for _, p := range []string{userA, userB} {
			if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, id, p); err != nil {
				return models.Conversation{}, err
			}
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return models.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}

	var row conversationRow
	if err := s.db.GetContext(ctx, &row, selectConversation+` WHERE c.direct_key = $1`, key); err != nil {
		return models.Conversation{}, err
	}
	return row.model(), nil
}

// CreateGroup inserts a group conversation and its members atomically.
func (s *PostgresConversationStore) CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (models.Conversation, error) {
	members, err := groupMembers(creatorID, participantIDs)
	if err != nil {
		return models.Conversation{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, type, name) VALUES ($1, 'group', $2)`, id, name); err != nil {
		return models.Conversation{}, err
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, id, m); err != nil {
			return models.Conversation{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return s.GetConversation(ctx, id)
}

// GetConversation fetches a conversation by id.
func (s *PostgresConversationStore) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, selectConversation+` WHERE c.id = $1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return row.model(), nil
}

// AppendMessage locks the conversation row so appends are serialized per conversation.
func (s *PostgresConversationStore) AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var locked string
	err = tx.GetContext(ctx, &locked, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, in.ConversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	var member bool
	if err := tx.GetContext(ctx, &member, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`, in.ConversationID, in.SenderID); err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, ErrNotParticipant
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderEmail:    in.SenderEmail,
		Body:           in.Body,
		AttachmentURL:  in.AttachmentURL,
		Kind:           in.Kind,
		ReadBy:         []string{in.SenderID},
	}
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, sender_email, body, attachment_url, kind, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7,
            GREATEST(NOW(), COALESCE((SELECT MAX(sent_at) FROM messages WHERE conversation_id = $2), NOW())))
        RETURNING sent_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderEmail, msg.Body, msg.AttachmentURL, string(msg.Kind)).Scan(&msg.SentAt)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)`, msg.ID, msg.SenderID); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	msg.SentAt = msg.SentAt.UTC()
	return msg, nil
}

// MarkRead inserts read rows; the primary key keeps it idempotent.
func (s *PostgresConversationStore) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	return s.markRead(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT m.id, $2 FROM messages m
        WHERE m.conversation_id = $1 AND m.sender_id <> $2
        AND EXISTS(SELECT 1 FROM conversation_participants p WHERE p.conversation_id = $1 AND p.user_id = $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, conversationID, userID)
}

// MarkReadThrough bounds MarkRead by the seq of lastMessageID. An id outside
// the conversation compares against NULL and marks nothing.
func (s *PostgresConversationStore) MarkReadThrough(ctx context.Context, conversationID, userID, lastMessageID string) (int, error) {
	return s.markRead(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT m.id, $2 FROM messages m
        WHERE m.conversation_id = $1 AND m.sender_id <> $2
        AND m.seq <= (SELECT last.seq FROM messages last WHERE last.id = $3 AND last.conversation_id = $1)
        AND EXISTS(SELECT 1 FROM conversation_participants p WHERE p.conversation_id = $1 AND p.user_id = $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, conversationID, userID, lastMessageID)
}

func (s *PostgresConversationStore) markRead(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type summaryRow struct {
	conversationRow
	LastBody    sql.NullString `db:"last_body"`
	LastKind    sql.NullString `db:"last_kind"`
	LastSentAt  sql.NullTime   `db:"last_sent_at"`
	UnreadCount int            `db:"unread_count"`
}

func (r summaryRow) model() models.ConversationSummary {
	summary := models.ConversationSummary{Conversation: r.conversationRow.model(), UnreadCount: r.UnreadCount}
	if r.LastSentAt.Valid {
		last := models.Message{Kind: models.MessageKind(r.LastKind.String)}
		if r.LastBody.Valid {
			last.Body = &r.LastBody.String
		}
		preview := last.Preview(0)
		at := r.LastSentAt.Time.UTC()
		summary.LastMessage = &preview
		summary.LastMessageAt = &at
	}
	return summary
}

const selectSummary = `SELECT c.id, c.type, c.name, c.created_at,
        COALESCE((SELECT array_agg(p2.user_id ORDER BY p2.user_id) FROM conversation_participants p2 WHERE p2.conversation_id = c.id), '{}') AS participants,
        lm.body AS last_body, lm.kind AS last_kind, lm.sent_at AS last_sent_at,
        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND m.sender_id <> $1
            AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $1)) AS unread_count
        FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
        LEFT JOIN LATERAL (SELECT body, kind, sent_at FROM messages WHERE conversation_id = c.id ORDER BY seq DESC LIMIT 1) lm ON TRUE`

// ListForUser returns summaries of every conversation the user belongs to.
func (s *PostgresConversationStore) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows, selectSummary, userID); err != nil {
		return nil, err
	}

	result := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.model())
	}
	sortSummaries(result)
	return result, nil
}

// GetSummary returns one conversation's summary as userID sees it.
func (s *PostgresConversationStore) GetSummary(ctx context.Context, conversationID, userID string) (models.ConversationSummary, error) {
	var row summaryRow
	err := s.db.GetContext(ctx, &row, selectSummary+` WHERE c.id = $2`, userID, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationSummary{}, ErrConversationNotFound
	}
	if err != nil {
		return models.ConversationSummary{}, err
	}
	return row.model(), nil
}

type messageRow struct {
	models.Message
	Readers pq.StringArray `db:"read_by"`
}

// GetHistory returns conversation metadata and the ordered messages for a participant.
func (s *PostgresConversationStore) GetHistory(ctx context.Context, conversationID, userID string) (models.Conversation, []models.Message, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, selectConversation+`
        JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $2
        WHERE c.id = $1`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, nil, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, nil, err
	}

	var rows []messageRow
	err = s.db.SelectContext(ctx, &rows, `SELECT m.id, m.conversation_id, m.sender_id, m.sender_email, m.body, m.attachment_url, m.kind, m.sent_at,
        COALESCE((SELECT array_agg(r.user_id ORDER BY r.read_at, r.user_id) FROM message_reads r WHERE r.message_id = m.id), '{}') AS read_by
        FROM messages m WHERE m.conversation_id = $1 ORDER BY m.seq ASC`, conversationID)
	if err != nil {
		return models.Conversation{}, nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		m := r.Message
		m.ReadBy = []string(r.Readers)
		m.SentAt = m.SentAt.UTC()
		msgs = append(msgs, m)
	}
	return row.model(), msgs, nil
}

var _ ConversationStore = (*PostgresConversationStore)(nil)
