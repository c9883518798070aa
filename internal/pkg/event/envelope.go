// internal/pkg/event/envelope.go
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const schemaVersion = "1.0"

// Metadata travels with every envelope and links requests to responses
// through the correlation ID.
type Metadata struct {
	EventID           string    `json:"eventId"`
	Timestamp         time.Time `json:"timestamp"`
	SourceService     string    `json:"sourceService"`
	CorrelationID     string    `json:"correlationId"`
	Version           string    `json:"version"`
	ResponseToEventID string    `json:"responseToEventId,omitempty"`
}

// Envelope is the wire frame for every message on the bus.
type Envelope struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"metadata"`
}

// NewEnvelope wraps a payload for fire-and-forget publishing.
func NewEnvelope(sourceService, topic string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode payload for topic %s: %w", topic, err)
	}
	return Envelope{
		Topic:   topic,
		Payload: data,
		Metadata: Metadata{
			EventID:       uuid.NewString(),
			Timestamp:     time.Now().UTC(),
			SourceService: sourceService,
			CorrelationID: uuid.NewString(),
			Version:       schemaVersion,
		},
	}, nil
}

// NewRequest wraps a payload as an RPC request. The correlation ID
// equals the request ID, and the payload carries the caller's reply
// topic so any responder can answer without prior knowledge of the
// caller.
func NewRequest(sourceService, topic string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode request for topic %s: %w", topic, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("request payload for topic %s must be an object: %w", topic, err)
	}

	requestID := uuid.NewString()
	replyTopic := fmt.Sprintf("%s.reply.%s", sourceService, requestID)
	replyTo, _ := json.Marshal(replyTopic)
	fields["replyTo"] = replyTo

	merged, err := json.Marshal(fields)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode request for topic %s: %w", topic, err)
	}

	return Envelope{
		Topic:   topic,
		Payload: merged,
		Metadata: Metadata{
			EventID:       uuid.NewString(),
			Timestamp:     time.Now().UTC(),
			SourceService: sourceService,
			CorrelationID: requestID,
			Version:       schemaVersion,
		},
	}, nil
}

// NewResponse wraps a payload as the answer to a request, copying the
// request's correlation ID and referencing its event ID.
func NewResponse(sourceService, replyTopic string, payload interface{}, request Metadata) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode response for topic %s: %w", replyTopic, err)
	}
	return Envelope{
		Topic:   replyTopic,
		Payload: data,
		Metadata: Metadata{
			EventID:           uuid.NewString(),
			Timestamp:         time.Now().UTC(),
			SourceService:     sourceService,
			CorrelationID:     request.CorrelationID,
			Version:           schemaVersion,
			ResponseToEventID: request.EventID,
		},
	}, nil
}

// ReplyTopic extracts the replyTo field from a request payload.
// Empty means the sender does not expect a response.
func ReplyTopic(payload json.RawMessage) string {
	var probe struct {
		ReplyTo string `json:"replyTo"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.ReplyTo
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope for topic %s: %w", env.Topic, err)
	}
	return data, nil
}

// Decode parses an envelope off the wire.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}
