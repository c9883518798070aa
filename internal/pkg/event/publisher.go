// internal/pkg/event/publisher.go
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrRequestTimeout is returned when no matching response envelope
// arrives inside the request window.
var ErrRequestTimeout = errors.New("request timed out")

const defaultRequestTimeout = 5 * time.Second

// Publisher sends events on the bus: fire-and-forget Publish, and
// Request for the synchronous request-reply pattern layered on top of
// it.
type Publisher struct {
	transport Transport
	source    string
	logger    *zap.Logger
}

func NewPublisher(transport Transport, sourceService string, logger *zap.Logger) *Publisher {
	return &Publisher{transport: transport, source: sourceService, logger: logger}
}

// Publish wraps the payload in an envelope and sends it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	env, err := NewEnvelope(p.source, topic, payload)
	if err != nil {
		return err
	}

	p.logger.Info("publishing event",
		zap.String("topic", topic),
		zap.String("eventId", env.Metadata.EventID),
		zap.String("correlationId", env.Metadata.CorrelationID))

	return p.transport.Publish(ctx, topic, env)
}

// Request sends a request envelope and blocks the calling flow until a
// response with the matching correlation ID arrives, or the timeout
// elapses. The reply subscription is opened before the request goes out
// and torn down on every path; a response arriving after the timeout is
// dropped as an orphaned reply.
func (p *Publisher) Request(ctx context.Context, topic string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	env, err := NewRequest(p.source, topic, payload)
	if err != nil {
		return nil, err
	}
	correlationID := env.Metadata.CorrelationID
	replyTopic := ReplyTopic(env.Payload)

	p.logger.Info("sending request",
		zap.String("topic", topic),
		zap.String("correlationId", correlationID))

	result := make(chan json.RawMessage, 1)
	sub, err := p.transport.SubscribeReply(replyTopic, func(_ context.Context, reply Envelope) (bool, error) {
		if reply.Metadata.CorrelationID != correlationID {
			// Not our response; keep listening.
			return false, nil
		}
		select {
		case result <- reply.Payload:
		default:
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open reply subscription for %s: %w", topic, err)
	}
	defer sub.Close()

	if err := p.transport.Publish(ctx, topic, env); err != nil {
		return nil, err
	}

	select {
	case payload := <-result:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		p.logger.Warn("request timed out",
			zap.String("topic", topic),
			zap.String("correlationId", correlationID),
			zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("%w after %s on topic %s", ErrRequestTimeout, timeout, topic)
	}
}
