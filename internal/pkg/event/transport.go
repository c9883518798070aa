// internal/pkg/event/transport.go
package event

import "context"

// Handler processes one delivered envelope. Returning handled=true acks
// the message and removes it from the queue; handled=false with an
// error nacks it back for redelivery. Delivery is at-least-once, so
// handlers must tolerate being invoked more than once for the same
// message.
type Handler func(ctx context.Context, env Envelope) (handled bool, err error)

// Subscription is a live consumer that can be torn down.
type Subscription interface {
	Close() error
}

// Transport is the durable topic publish/subscribe primitive the
// publisher and subscriber layers are built on. Implementations take an
// explicit connection handle; there are no process-global clients.
type Transport interface {
	// Publish sends an envelope to a topic, persistently.
	Publish(ctx context.Context, topic string, env Envelope) error

	// Subscribe attaches a durable queue consumer to a topic. Messages
	// are shared among consumers of the same queue name.
	Subscribe(topic, queue string, h Handler) (Subscription, error)

	// SubscribeReply attaches an exclusive, auto-deleted consumer used
	// for RPC reply topics. Returning handled=false keeps listening
	// without consuming the message.
	SubscribeReply(topic string, h Handler) (Subscription, error)

	Close() error
}
