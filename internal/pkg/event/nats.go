// internal/pkg/event/nats.go
package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	streamName    = "TOPLULUK_EVENTS"
	subjectPrefix = "events."
)

// NATSTransport implements Transport on a NATS JetStream connection.
// Durable topic consumers ride JetStream; RPC reply topics use plain
// ephemeral subscriptions, which vanish with the subscriber the way an
// exclusive auto-delete queue does.
type NATSTransport struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewNATSTransport connects to the broker and ensures the event stream
// exists.
func NewNATSTransport(url string, logger *zap.Logger, opts ...nats.Option) (*NATSTransport, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}

	return &NATSTransport{conn: nc, js: js, logger: logger}, nil
}

func subjectFor(topic string) string {
	return subjectPrefix + topic
}

func durableFor(queue string) string {
	// JetStream durable names cannot contain dots.
	return strings.ReplaceAll(queue, ".", "_")
}

func (t *NATSTransport) Publish(ctx context.Context, topic string, env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	if _, err := t.js.Publish(subjectFor(topic), data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

type natsSubscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

func (t *NATSTransport) Subscribe(topic, queue string, h Handler) (Subscription, error) {
	handler := func(msg *nats.Msg) {
		env, err := Decode(msg.Data)
		if err != nil {
			t.logger.Error("dropping undecodable message",
				zap.String("topic", topic),
				zap.Error(err))
			_ = msg.Term()
			return
		}

		handled, err := h(context.Background(), env)
		if handled {
			_ = msg.Ack()
			return
		}
		if err != nil {
			t.logger.Error("handler failed, returning message to queue",
				zap.String("topic", topic),
				zap.String("eventId", env.Metadata.EventID),
				zap.Error(err))
		}
		_ = msg.Nak()
	}

	sub, err := t.js.QueueSubscribe(
		subjectFor(topic),
		queue,
		handler,
		nats.Durable(durableFor(queue)),
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (t *NATSTransport) SubscribeReply(topic string, h Handler) (Subscription, error) {
	handler := func(msg *nats.Msg) {
		env, err := Decode(msg.Data)
		if err != nil {
			t.logger.Warn("ignoring undecodable reply",
				zap.String("topic", topic),
				zap.Error(err))
			return
		}
		// handled=false means "not my reply"; keep listening.
		_, _ = h(context.Background(), env)
	}

	sub, err := t.conn.Subscribe(subjectFor(topic), handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply topic %s: %w", topic, err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (t *NATSTransport) Close() error {
	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
