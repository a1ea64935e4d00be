// Package messaging interprets client commands on a live connection and turns
// them into store mutations and outbound events.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
)

const (
	DefaultMaxMessageLength = 5000
	DefaultFanoutTimeout    = 5 * time.Second
	notificationPreviewLen  = 100
)

// Presence is the subset of the presence registry the engine needs.
type Presence interface {
	Register(conn presence.Connection)
	Unregister(connectionID string)
	Deliver(userID, event string, payload any) int
}

// Notifier stores a notification and pushes it live.
type Notifier interface {
	Notify(ctx context.Context, userID string, notificationType models.NotificationType, title, message string, data map[string]any) (models.Notification, error)
}

// RecipientChecker reports whether a user id may receive a new conversation.
type RecipientChecker func(ctx context.Context, userID string) (bool, error)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	MaxMessageLength int
	CommandRate      float64
	CommandBurst     int
	FanoutTimeout    time.Duration
	RecipientChecker RecipientChecker
}

// Engine owns sessions and the fan-out goroutines they spawn.
type Engine struct {
	store    repositories.ConversationStore
	presence Presence
	notifier Notifier
	log      *zap.Logger
	opts     Options

	// mu orders fanout.Add against Drain; once closing is set no new
	// background work starts.
	mu      sync.Mutex
	closing bool
	fanout  sync.WaitGroup
}

// NewEngine wires an engine. notifier may be nil to disable notifications.
func NewEngine(store repositories.ConversationStore, presence Presence, notifier Notifier, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.FanoutTimeout <= 0 {
		opts.FanoutTimeout = DefaultFanoutTimeout
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = 1
	}
	return &Engine{store: store, presence: presence, notifier: notifier, log: log, opts: opts}
}

// Open registers an authenticated connection and returns its session.
func (e *Engine) Open(identity auth.Identity, sender presence.Sender) *Session {
	limit := rate.Inf
	if e.opts.CommandRate > 0 {
		limit = rate.Limit(e.opts.CommandRate)
	}
	s := &Session{
		id:       uuid.NewString(),
		identity: identity,
		sender:   sender,
		engine:   e,
		limiter:  rate.NewLimiter(limit, e.opts.CommandBurst),
		log:      e.log.With(zap.String("user_id", identity.UserID)),
	}
	s.log = s.log.With(zap.String("conn_id", s.id))
	e.presence.Register(presence.Connection{
		ID:          s.id,
		UserID:      identity.UserID,
		Email:       identity.Email,
		UserType:    identity.UserType,
		ConnectedAt: time.Now().UTC(),
		Sender:      sender,
	})
	return s
}

// Drain stops new background work and waits for outstanding fan-out and
// event publishing, or until ctx is done.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.fanout.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goBackground runs fn on a tracked goroutine. It reports false, without
// running fn, once Drain has started.
func (e *Engine) goBackground(fn func()) bool {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return false
	}
	e.fanout.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.fanout.Done()
		fn()
	}()
	return true
}

// detached keeps the caller's trace but none of its cancellation or deadline.
func detached(parent context.Context) context.Context {
	return trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(parent))
}

// publishAsync puts a domain event on the bus without holding up the command.
func (e *Engine) publishAsync(parent context.Context, routingKey string, env observability.EventEnvelope) {
	started := e.goBackground(func() {
		ctx, cancel := context.WithTimeout(detached(parent), e.opts.FanoutTimeout)
		defer cancel()
		if err := observability.PublishEvent(ctx, routingKey, env); err != nil {
			e.log.Warn("domain event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		}
	})
	if !started {
		e.log.Warn("domain event dropped during shutdown", zap.String("routing_key", routingKey))
	}
}

// deliverAll pushes one event to every listed user and returns the total accepted.
func (e *Engine) deliverAll(userIDs []string, event string, payload any) int {
	total := 0
	for _, id := range userIDs {
		total += e.presence.Deliver(id, event, payload)
	}
	observability.AddDeliveries(event, total)
	return total
}

// notifyAsync fans a new_message notification out to recipients without
// holding up the command that triggered it. The goroutine keeps the caller's
// trace but not its cancellation.
func (e *Engine) notifyAsync(parent context.Context, msg models.Message, recipients []string) {
	if e.notifier == nil || len(recipients) == 0 {
		return
	}
	sender := msg.SenderEmail
	if sender == "" {
		sender = msg.SenderID
	}
	title := fmt.Sprintf("New message from %s", sender)
	preview := msg.Preview(notificationPreviewLen)
	data := map[string]any{
		"conversationId": msg.ConversationID,
		"messageId":      msg.ID,
		"senderId":       msg.SenderID,
	}

	started := e.goBackground(func() {
		ctx, cancel := context.WithTimeout(detached(parent), e.opts.FanoutTimeout)
		defer cancel()
		ctx, span := otel.Tracer("messaging-service/messaging").Start(ctx, "notify.fanout",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.Int("recipients", len(recipients))))
		defer span.End()
		for _, userID := range recipients {
			if _, err := e.notifier.Notify(ctx, userID, models.NotificationNewMessage, title, preview, data); err != nil {
				observability.IncFanoutError()
				e.log.Warn("notification fan-out failed",
					zap.String("user_id", userID),
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}
	})
	if !started {
		observability.IncFanoutError()
		e.log.Warn("notification fan-out refused during shutdown", zap.String("message_id", msg.ID))
	}
}
