package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type capture struct {
	key    string
	events []any
	err    error
}

func (c *capture) Publish(ctx context.Context, routingKey string, event any) error {
	c.key = routingKey
	c.events = append(c.events, event)
	return c.err
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &capture{}
	e := NewAuditEmitter(pub, "audit.messaging", "messaging-service", "test", nil)

	e.Emit(context.Background(), Record{
		Action:    "upload.create",
		Text:      "attachment uploaded",
		RequestID: "req-1",
		UserID:    "u1",
		Fields:    map[string]any{"size": 10},
	})

	require.Len(t, pub.events, 1)
	env := pub.events[0].(AuditEnvelope)
	assert.Equal(t, "audit.messaging", pub.key)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, 2, env.SchemaVersion)
	assert.Equal(t, "messaging-service", env.Service)
	assert.Equal(t, "u1", env.UserID)
	assert.Equal(t, LevelInfo, env.Payload.Level)
	assert.Equal(t, "upload.create", env.Payload.Action)
	assert.Equal(t, 10, env.Payload.Fields["size"])
	assert.Empty(t, env.TraceID)
}

func TestEmitCarriesTraceID(t *testing.T) {
	pub := &capture{}
	e := NewAuditEmitter(pub, "audit", "svc", "test", nil)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01, 0x02},
		SpanID:  trace.SpanID{0x03},
	})

	e.Emit(trace.ContextWithSpanContext(context.Background(), sc), Record{Level: LevelWarn, Action: "x"})

	env := pub.events[0].(AuditEnvelope)
	assert.Equal(t, sc.TraceID().String(), env.TraceID)
	assert.Equal(t, LevelWarn, env.Payload.Level)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &capture{err: assert.AnError}
	e := NewAuditEmitter(pub, "audit", "svc", "test", nil)
	assert.NotPanics(t, func() { e.Emit(context.Background(), Record{Level: LevelError, Action: "x"}) })
}

func TestNilEmitterIsNoop(t *testing.T) {
	var e *AuditEmitter
	assert.NotPanics(t, func() { e.Emit(context.Background(), Record{Action: "x"}) })
}
