// Package kafka publishes transcript events to a Kafka topic using
// segmentio/kafka-go. Messages are keyed by session id so every turn of a
// session lands on the same partition, in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/classroom/pkg/eventstream"
)

const eventTypeHeader = "event_type"

var (
	// ErrNoBrokers is returned when no broker address is configured.
	ErrNoBrokers = errors.New("kafka: at least one broker is required")

	// ErrNoTopic is returned when no topic is configured.
	ErrNoTopic = errors.New("kafka: topic is required")
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single produce request. Zero uses the kafka-go default.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Publisher implements eventstream.Publisher on a Kafka topic.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a publisher writing to cfg.Topic on cfg.Brokers.
// No connection is made until the first event is published.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			logger.Error("kafka writer", "error", fmt.Sprintf(msg, args...))
		}),
	}

	return newPublisher(writer, cfg.Topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger,
	}
}

// PublishTranscript encodes event as JSON and writes it keyed by session id.
func (p *Publisher) PublishTranscript(ctx context.Context, event *eventstream.TranscriptCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTranscriptEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling transcript event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Session),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: eventTypeHeader, Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.Debug("published transcript event",
		"topic", p.topic,
		"event_id", event.EventID,
		"session", event.Session,
	)

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
