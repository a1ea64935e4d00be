// Package nats publishes service events to core NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher sends JSON events to a subject derived from the routing key.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.Logger
}

// Connect dials NATS with reconnect handlers wired to the logger.
func Connect(url, subjectPrefix string, log *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("messaging-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("nats connected", zap.String("url", nc.ConnectedUrl()))
	return &Publisher{conn: nc, prefix: subjectPrefix, log: log}, nil
}

// Subject maps a routing key onto the configured prefix.
func (p *Publisher) Subject(routingKey string) string {
	if p.prefix == "" {
		return routingKey
	}
	return p.prefix + "." + routingKey
}

// Publish marshals event and publishes it. Core NATS is fire-and-forget, so
// only local buffering errors surface here.
func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(routingKey), body); err != nil {
		p.log.Warn("nats publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		return err
	}
	return nil
}

// IsConnected reports the connection state.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
