// Package events publishes user lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Skotchmaster/user_auth/pkg/metrics"
)

const (
	DefaultTopic   = "user_events"
	publishTimeout = 5 * time.Second
)

type Type string

const (
	UserRegistered Type = "user_registered"
	UserLoggedIn   Type = "user_logged_in"
	UserUpdated    Type = "user_updated"
	UserRemoved    Type = "user_removed"
)

type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer  messageWriter
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

func NewProducer(brokers []string, topic string, m *metrics.Metrics) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           publishTimeout,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, m), nil
}

func newProducer(w messageWriter, m *metrics.Metrics) *Producer {
	return &Producer{writer: w, metrics: m, timeout: publishTimeout, now: time.Now}
}

// Publish writes e keyed by user id, so one user's events stay ordered.
func (p *Producer) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.metrics.EventPublished(string(e.Type), "error")
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(e.UserID),
		Value:   data,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventPublished(string(e.Type), "error")
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	p.metrics.EventPublished(string(e.Type), "ok")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Noop drops every event; used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error { return nil }
