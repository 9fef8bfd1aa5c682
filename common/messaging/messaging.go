// Package messaging provides abstractions for message broker communication.
// Services publish through the Publisher interface without being coupled to
// a specific broker implementation.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message represents a message sent to a message broker.
type Message struct {
	// Subject is the topic/channel the message is published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs for message headers.
	Metadata map[string]string

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a message to the specified subject (fire-and-forget).
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message with full control over headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// Close releases any resources held by the publisher.
	Close() error
}

// PublishJSON marshals v and publishes it on subject with the given headers.
func PublishJSON(ctx context.Context, p Publisher, subject string, v interface{}, headers map[string]string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.PublishMsg(ctx, &Message{
		Subject:   subject,
		Data:      data,
		Metadata:  headers,
		Timestamp: time.Now().UTC(),
	})
}

// NopPublisher discards every message. Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return ctx.Err()
}

func (NopPublisher) PublishMsg(ctx context.Context, msg *Message) error {
	return ctx.Err()
}

func (NopPublisher) Close() error {
	return nil
}
