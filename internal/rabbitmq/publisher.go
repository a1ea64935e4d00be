package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

const (
	publishTimeout = 5 * time.Second
	appID          = "messaging-service"
)

// ErrConnectionClosed is returned once the broker has dropped the connection.
var ErrConnectionClosed = errors.New("rabbitmq connection closed")

// Publisher publishes domain, websocket and audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to a topic exchange. When the URL is empty or the broker
// cannot be reached it returns a noop publisher that logs instead.
func NewPublisher(amqpURL, exchange string, log *zap.Logger) Publisher {
	if amqpURL == "" {
		log.Warn("rabbitmq disabled, using noop", zap.String("reason", "empty amqp url"))
		return noopPublisher{reason: "empty amqp url", log: log}
	}
	p, err := connect(amqpURL, exchange, log)
	if err != nil {
		log.Warn("rabbitmq disabled, using noop", zap.Error(err))
		return noopPublisher{reason: err.Error(), log: log}
	}
	log.Info("rabbitmq connected", zap.String("exchange", exchange))
	return p
}

func connect(amqpURL, exchange string, log *zap.Logger) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: log}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
	closed   atomic.Bool
}

// watch marks the publisher closed when the broker goes away. The channel is
// closed without a value on a local Close.
func (p *amqpPublisher) watch(notify <-chan *amqp.Error) {
	if amqpErr, ok := <-notify; ok && amqpErr != nil {
		p.log.Error("rabbitmq connection lost", zap.Int("code", amqpErr.Code), zap.String("reason", amqpErr.Reason))
	}
	p.closed.Store(true)
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if p.closed.Load() {
		return ErrConnectionClosed
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    time.Now().UTC(),
		Headers:      headersFor(event),
		Body:         body,
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		return err
	}
	return nil
}

// headersFor copies correlation ids from known envelopes into AMQP headers.
func headersFor(event any) amqp.Table {
	headers := amqp.Table{}
	var requestID, traceID string
	switch env := event.(type) {
	case observability.EventEnvelope:
		requestID, traceID = env.RequestID, env.TraceID
		headers["event_name"] = env.EventName
	case telemetry.AuditEnvelope:
		requestID = env.RequestID
	}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

func (p *amqpPublisher) Close() error {
	p.closed.Store(true)
	_ = p.ch.Close()
	return p.conn.Close()
}

type noopPublisher struct {
	reason string
	log    *zap.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	fields := []zap.Field{zap.String("routing_key", routingKey)}
	switch env := event.(type) {
	case telemetry.AuditEnvelope:
		fields = append(fields, zap.String("event_type", env.EventType), zap.String("request_id", env.RequestID))
	case observability.EventEnvelope:
		fields = append(fields, zap.String("event_type", env.EventType), zap.String("event_name", env.EventName))
	}
	p.log.Debug("rabbitmq noop publish", fields...)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// NewNoopPublisher returns a publisher that only logs.
func NewNoopPublisher(reason string, log *zap.Logger) Publisher {
	return noopPublisher{reason: reason, log: log}
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}

// Healthy reports whether an AMQP publisher still holds its connection. Noop
// publishers are always healthy.
func Healthy(p Publisher) error {
	if ap, ok := p.(*amqpPublisher); ok && ap.closed.Load() {
		return ErrConnectionClosed
	}
	return nil
}
