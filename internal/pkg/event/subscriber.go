// internal/pkg/event/subscriber.go
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Subscriber consumes events from the bus and answers RPC requests.
type Subscriber struct {
	transport Transport
	source    string
	logger    *zap.Logger
}

func NewSubscriber(transport Transport, sourceService string, logger *zap.Logger) *Subscriber {
	return &Subscriber{transport: transport, source: sourceService, logger: logger}
}

// Subscribe dispatches each envelope on the topic to the handler. A
// handler error nacks the message back to the queue.
func (s *Subscriber) Subscribe(topic string, handler func(ctx context.Context, payload json.RawMessage, meta Metadata) error) (Subscription, error) {
	queue := fmt.Sprintf("%s.%s.queue", s.source, topic)

	sub, err := s.transport.Subscribe(topic, queue, func(ctx context.Context, env Envelope) (bool, error) {
		s.logger.Info("processing event",
			zap.String("topic", topic),
			zap.String("eventId", env.Metadata.EventID),
			zap.String("correlationId", env.Metadata.CorrelationID))

		if err := handler(ctx, env.Payload, env.Metadata); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscribed to topic", zap.String("topic", topic))
	return sub, nil
}

// RespondTo serves the request side of the RPC pattern: it computes a
// response from each request payload and publishes it to the caller's
// reply topic. Handler failures become an error-shaped response instead
// of crashing the subscriber loop, and the request is still acked so it
// is not redelivered in an ever-growing cycle. Delivery is
// at-least-once, so handlers must be idempotent.
func (s *Subscriber) RespondTo(topic string, handler func(ctx context.Context, payload json.RawMessage, meta Metadata) (interface{}, error)) (Subscription, error) {
	queue := fmt.Sprintf("%s.%s.responder", s.source, topic)

	sub, err := s.transport.Subscribe(topic, queue, func(ctx context.Context, env Envelope) (handled bool, err error) {
		s.logger.Info("processing request",
			zap.String("topic", topic),
			zap.String("correlationId", env.Metadata.CorrelationID))

		replyTopic := ReplyTopic(env.Payload)

		response := s.invoke(ctx, handler, env)
		if response == nil {
			return true, nil
		}
		if replyTopic == "" {
			// Nothing to answer to; a failed handler gets a retry.
			if _, failed := response.(RPCError); failed {
				return false, fmt.Errorf("request handler failed on topic %s", topic)
			}
			return true, nil
		}

		reply, err := NewResponse(s.source, replyTopic, response, env.Metadata)
		if err != nil {
			return false, err
		}
		if err := s.transport.Publish(ctx, replyTopic, reply); err != nil {
			return false, err
		}

		s.logger.Info("sent response",
			zap.String("replyTo", replyTopic),
			zap.String("correlationId", env.Metadata.CorrelationID))
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("responder registered", zap.String("topic", topic))
	return sub, nil
}

// invoke runs the handler, converting errors and panics into an
// error-shaped payload.
func (s *Subscriber) invoke(ctx context.Context, handler func(ctx context.Context, payload json.RawMessage, meta Metadata) (interface{}, error), env Envelope) (response interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked",
				zap.String("topic", env.Topic),
				zap.Any("panic", r))
			response = RPCError{Error: "internal error", Code: "INTERNAL_ERROR"}
		}
	}()

	result, err := handler(ctx, env.Payload, env.Metadata)
	if err != nil {
		s.logger.Error("request handler failed",
			zap.String("topic", env.Topic),
			zap.String("eventId", env.Metadata.EventID),
			zap.Error(err))
		return RPCError{Error: err.Error(), Code: "INTERNAL_ERROR"}
	}
	return result
}
