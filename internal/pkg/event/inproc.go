// internal/pkg/event/inproc.go
package event

import (
	"context"
	"sync"
	"time"
)

const inprocRedeliveryLimit = 5

// InprocTransport is an in-process Transport used by tests and local
// development. It keeps the broker's at-least-once contract: a nacked
// message is redelivered, up to a bounded number of attempts.
type InprocTransport struct {
	mu     sync.Mutex
	subs   map[string][]*inprocSub
	closed bool
}

type inprocSub struct {
	transport *InprocTransport
	topic     string
	handler   Handler
	reply     bool
	closed    bool
	mu        sync.Mutex
}

func NewInprocTransport() *InprocTransport {
	return &InprocTransport{subs: make(map[string][]*inprocSub)}
}

func (t *InprocTransport) Publish(_ context.Context, topic string, env Envelope) error {
	t.mu.Lock()
	targets := make([]*inprocSub, len(t.subs[topic]))
	copy(targets, t.subs[topic])
	t.mu.Unlock()

	for _, sub := range targets {
		go sub.deliver(env)
	}
	return nil
}

func (s *inprocSub) deliver(env Envelope) {
	for attempt := 0; attempt < inprocRedeliveryLimit; attempt++ {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		handled, err := s.handler(context.Background(), env)
		if handled {
			return
		}
		// Reply subscriptions never redeliver: handled=false just means
		// "not my reply".
		if s.reply || err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (t *InprocTransport) subscribe(topic string, h Handler, reply bool) (Subscription, error) {
	sub := &inprocSub{transport: t, topic: topic, handler: h, reply: reply}
	t.mu.Lock()
	t.subs[topic] = append(t.subs[topic], sub)
	t.mu.Unlock()
	return sub, nil
}

func (t *InprocTransport) Subscribe(topic, _ string, h Handler) (Subscription, error) {
	return t.subscribe(topic, h, false)
}

func (t *InprocTransport) SubscribeReply(topic string, h Handler) (Subscription, error) {
	return t.subscribe(topic, h, true)
}

func (s *inprocSub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	t := s.transport
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[s.topic]
	for i, candidate := range subs {
		if candidate == s {
			t.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (t *InprocTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = make(map[string][]*inprocSub)
	return nil
}
