package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
)

// Session is the per-connection protocol state. Handle is called from a single
// reader goroutine; deliveries from other sessions go through the Sender.
type Session struct {
	id       string
	identity auth.Identity
	sender   presence.Sender
	engine   *Engine
	limiter  *rate.Limiter
	log      *zap.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() auth.Identity { return s.identity }

// Close unregisters the connection. Calling it more than once is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.engine.presence.Unregister(s.id)
	})
}

// Handle dispatches one inbound frame. Failures are sent back to this
// connection as error events and never returned.
func (s *Session) Handle(ctx context.Context, frame models.Frame) {
	if s.closed.Load() {
		return
	}
	command := frame.Event
	label := metricLabel(command)
	start := time.Now()

	ctx, span := otel.Tracer("messaging-service/messaging").Start(ctx, "ws.command")
	span.SetAttributes(
		attribute.String("ws.command", command),
		attribute.String("user.id", s.identity.UserID),
	)
	defer span.End()

	if !s.limiter.Allow() {
		observability.ObserveCommand(label, CodeRateLimited, time.Since(start))
		s.fail(command, &CommandError{Code: CodeRateLimited, Message: "too many commands"})
		return
	}

	err := s.dispatch(ctx, frame)
	result := "ok"
	if err != nil {
		ce, known := classify(err)
		result = ce.Code
		if !known {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error("command failed", zap.String("command", command), zap.Error(err))
		}
		s.fail(command, ce)
	}
	observability.ObserveCommand(label, result, time.Since(start))
}

func (s *Session) dispatch(ctx context.Context, frame models.Frame) error {
	switch frame.Event {
	case models.EventPing:
		s.reply(models.EventPong, nil)
		return nil
	case models.EventGetConversations:
		return s.getConversations(ctx)
	case models.EventGetMessages:
		return s.getMessages(ctx, frame.Data)
	case models.EventStartConversation:
		return s.startConversation(ctx, frame.Data)
	case models.EventSendMessage:
		return s.sendMessage(ctx, frame.Data)
	case models.EventMarkAsRead:
		return s.markAsRead(ctx, frame.Data)
	case models.EventTypingStart:
		return s.typing(ctx, frame.Data, models.EventUserTyping)
	case models.EventTypingStop:
		return s.typing(ctx, frame.Data, models.EventUserStoppedTyping)
	case "":
		return validationError("event is required")
	default:
		return validationError("unknown command %q", frame.Event)
	}
}

// metricLabel keeps client-chosen event names out of metric labels.
func metricLabel(command string) string {
	switch command {
	case models.EventPing, models.EventGetConversations, models.EventGetMessages,
		models.EventStartConversation, models.EventSendMessage, models.EventMarkAsRead,
		models.EventTypingStart, models.EventTypingStop:
		return command
	}
	return "unknown"
}

func (s *Session) reply(event string, payload any) {
	if !s.sender.Send(models.Event{Event: event, Data: payload}) {
		s.log.Warn("reply dropped", zap.String("event", event))
	}
}

func (s *Session) fail(command string, ce *CommandError) {
	s.reply(models.EventError, models.ErrorPayload{Command: command, Code: ce.Code, Message: ce.Message})
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type startConversationPayload struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

type sendMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Message        *string `json:"message"`
	Type           string  `json:"type"`
	FileURL        *string `json:"fileUrl"`
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return validationError("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return validationError("malformed payload")
	}
	return nil
}

func decodeConversationRef(raw json.RawMessage) (string, error) {
	var ref conversationRef
	if err := decode(raw, &ref); err != nil {
		return "", err
	}
	id := strings.TrimSpace(ref.ConversationID)
	if id == "" {
		return "", validationError("conversationId is required")
	}
	return id, nil
}

func (s *Session) getConversations(ctx context.Context) error {
	list, err := s.engine.store.ListForUser(ctx, s.identity.UserID)
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	s.reply(models.EventConversationsList, list)
	return nil
}

func (s *Session) getMessages(ctx context.Context, raw json.RawMessage) error {
	conversationID, err := decodeConversationRef(raw)
	if err != nil {
		return err
	}
	conv, messages, err := s.engine.store.GetHistory(ctx, conversationID, s.identity.UserID)
	if err != nil {
		return err
	}

	marked := 0
	if n := len(messages); n > 0 {
		// only what this reply shows; later appends stay unread
		marked, err = s.engine.store.MarkReadThrough(ctx, conversationID, s.identity.UserID, messages[n-1].ID)
		if err != nil {
			return err
		}
	}
	if marked > 0 {
		for i := range messages {
			if messages[i].SenderID != s.identity.UserID && !messages[i].IsReadBy(s.identity.UserID) {
				messages[i].ReadBy = append(messages[i].ReadBy, s.identity.UserID)
			}
		}
		s.engine.deliverAll(conv.OtherParticipants(s.identity.UserID), models.EventMessagesRead,
			models.ReadReceipt{ConversationID: conversationID, ReadBy: s.identity.UserID})
	}
	if messages == nil {
		messages = []models.Message{}
	}
	s.reply(models.EventMessagesList, models.MessagesList{Conversation: conv, Messages: messages})
	return nil
}

func (s *Session) startConversation(ctx context.Context, raw json.RawMessage) error {
	var p startConversationPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	recipientID := strings.TrimSpace(p.RecipientID)
	if recipientID == "" {
		return validationError("recipientId is required")
	}
	if recipientID == s.identity.UserID {
		return validationError("cannot start a conversation with yourself")
	}
	body, err := s.checkBody(p.Message)
	if err != nil {
		return err
	}
	if body == "" {
		return validationError("message is required")
	}
	if check := s.engine.opts.RecipientChecker; check != nil {
		ok, err := check(ctx, recipientID)
		if err != nil {
			return err
		}
		if !ok {
			return &CommandError{Code: CodeNotFound, Message: "recipient not found"}
		}
	}

	conv, err := s.engine.store.FindOrCreateDirect(ctx, s.identity.UserID, recipientID)
	if err != nil {
		return err
	}
	msg, err := s.append(ctx, models.NewMessage{
		ConversationID: conv.ID,
		SenderID:       s.identity.UserID,
		SenderEmail:    s.identity.Email,
		Body:           &body,
		Kind:           models.MessageText,
	})
	if err != nil {
		return err
	}
	s.announce(ctx, conv, msg)
	return nil
}

func (s *Session) sendMessage(ctx context.Context, raw json.RawMessage) error {
	var p sendMessagePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	conversationID := strings.TrimSpace(p.ConversationID)
	if conversationID == "" {
		return validationError("conversationId is required")
	}

	var body, fileURL *string
	if p.Message != nil {
		b, err := s.checkBody(*p.Message)
		if err != nil {
			return err
		}
		if b != "" {
			body = &b
		}
	}
	if p.FileURL != nil {
		if u := strings.TrimSpace(*p.FileURL); u != "" {
			fileURL = &u
		}
	}
	if body == nil && fileURL == nil {
		return validationError("message or fileUrl is required")
	}

	kind := models.MessageKind(strings.TrimSpace(p.Type))
	switch kind {
	case "":
		kind = models.MessageText
		if body == nil {
			kind = models.MessageFile
		}
	case models.MessageText, models.MessageFile:
	default:
		return validationError("unknown message type %q", p.Type)
	}
	if kind == models.MessageFile && fileURL == nil {
		return validationError("fileUrl is required for file messages")
	}

	conv, err := s.engine.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(s.identity.UserID) {
		return errForbidden
	}
	msg, err := s.append(ctx, models.NewMessage{
		ConversationID: conversationID,
		SenderID:       s.identity.UserID,
		SenderEmail:    s.identity.Email,
		Body:           body,
		AttachmentURL:  fileURL,
		Kind:           kind,
	})
	if err != nil {
		return err
	}
	s.announce(ctx, conv, msg)
	return nil
}

// checkBody trims a body and enforces the length limit.
func (s *Session) checkBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) > s.engine.opts.MaxMessageLength {
		return "", validationError("message exceeds %d characters", s.engine.opts.MaxMessageLength)
	}
	return body, nil
}

func (s *Session) append(ctx context.Context, in models.NewMessage) (models.Message, error) {
	msg, err := s.engine.store.AppendMessage(ctx, in)
	if err != nil {
		return models.Message{}, err
	}
	observability.IncMessageStored(string(msg.Kind))
	return msg, nil
}

// announce pushes new_message and conversation_updated to every participant,
// then hands the bus event and notifications to background work.
func (s *Session) announce(ctx context.Context, conv models.Conversation, msg models.Message) {
	s.engine.deliverAll(conv.Participants, models.EventNewMessage, msg)
	for _, userID := range conv.Participants {
		summary := s.summaryFor(ctx, conv, msg, userID)
		n := s.engine.presence.Deliver(userID, models.EventConversationUpd, summary)
		observability.AddDeliveries(models.EventConversationUpd, n)
	}

	s.engine.publishAsync(ctx, observability.RoutingMessageCreated,
		observability.NewEnvelope("domain_events", "message.created", "", "", map[string]any{
			"message_id":      msg.ID,
			"conversation_id": msg.ConversationID,
			"sender_id":       msg.SenderID,
			"type":            msg.Kind,
		}))
	s.engine.notifyAsync(ctx, msg, conv.OtherParticipants(s.identity.UserID))
}

// summaryFor builds the conversation_updated payload as userID sees it.
func (s *Session) summaryFor(ctx context.Context, conv models.Conversation, msg models.Message, userID string) models.ConversationSummary {
	summary, err := s.engine.store.GetSummary(ctx, conv.ID, userID)
	if err == nil {
		return summary
	}
	s.log.Warn("conversation summary unavailable", zap.String("conversation_id", conv.ID), zap.Error(err))
	preview := msg.Preview(0)
	at := msg.SentAt
	return models.ConversationSummary{Conversation: conv, LastMessage: &preview, LastMessageAt: &at}
}

func (s *Session) markAsRead(ctx context.Context, raw json.RawMessage) error {
	conversationID, err := decodeConversationRef(raw)
	if err != nil {
		return err
	}
	conv, err := s.participantOf(ctx, conversationID)
	if err != nil {
		return err
	}
	if _, err := s.engine.store.MarkRead(ctx, conversationID, s.identity.UserID); err != nil {
		return err
	}
	s.engine.deliverAll(conv.OtherParticipants(s.identity.UserID), models.EventMessagesRead,
		models.ReadReceipt{ConversationID: conversationID, ReadBy: s.identity.UserID})
	return nil
}

// typing relays an ephemeral indicator; the store is never touched.
func (s *Session) typing(ctx context.Context, raw json.RawMessage, event string) error {
	conversationID, err := decodeConversationRef(raw)
	if err != nil {
		return err
	}
	conv, err := s.participantOf(ctx, conversationID)
	if err != nil {
		return err
	}
	s.engine.deliverAll(conv.OtherParticipants(s.identity.UserID), event, models.TypingPayload{
		ConversationID: conversationID,
		UserID:         s.identity.UserID,
		UserEmail:      s.identity.Email,
	})
	return nil
}

func (s *Session) participantOf(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := s.engine.store.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(s.identity.UserID) {
		return models.Conversation{}, errForbidden
	}
	return conv, nil
}
