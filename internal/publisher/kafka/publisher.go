// Package kafka publishes creature events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Keyed payloads choose their own partition key.
type Keyed interface {
	MessageKey() string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher wraps a Kafka writer. The writer carries no default topic so each
// message names its own.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// New creates a publisher for the given brokers.
func New(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	return NewWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	})
}

// NewWithWriter builds a publisher on a custom writer.
func NewWithWriter(writer messageWriter) (*Publisher, error) {
	if writer == nil {
		return nil, errors.New("kafka writer is required")
	}
	return &Publisher{writer: writer, now: time.Now}, nil
}

// Publish JSON-encodes payload and writes it to topic. Kafka assigns no
// message ID, so the returned ID is the message key.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Value: data,
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: "content_type", Value: []byte("application/json")},
		},
	}
	var key string
	if k, ok := payload.(Keyed); ok {
		key = k.MessageKey()
		msg.Key = []byte(key)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write message to %s: %w", topic, err)
	}
	return key, nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
