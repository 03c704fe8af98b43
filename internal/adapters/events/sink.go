// Package events delivers trade lifecycle events to the log and to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"

	"github.com/segmentio/kafka-go"
)

// Envelope is the wire form of a lifecycle event.
type Envelope struct {
	Name       string       `json:"name"`
	TradeID    int64        `json:"tradeId"`
	OccurredAt time.Time    `json:"occurredAt"`
	Payload    domain.Event `json:"payload"`
}

// NewEnvelope wraps an event for publication.
func NewEnvelope(event domain.Event, at time.Time) Envelope {
	return Envelope{Name: event.EventName(), TradeID: event.TradeRef(), OccurredAt: at.UTC(), Payload: event}
}

// LogSink writes every event as a structured log entry.
type LogSink struct {
	logger ports.Logger
}

// NewLogSink creates a sink that logs events at info level.
func NewLogSink(logger ports.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event.
func (s *LogSink) Emit(ctx context.Context, event domain.Event) {
	s.logger.Info(ctx, "Lifecycle event", map[string]interface{}{
		"event":   event.EventName(),
		"tradeId": event.TradeRef(),
		"payload": event,
	})
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a Kafka topic, keyed by trade ID so that the
// events of one trade stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	logger ports.Logger
	now    func() time.Time
}

// KafkaConfig holds the settings of a KafkaSink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Logger  ports.Logger
}

// NewKafkaSink creates an asynchronous Kafka publisher.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kafka sink")
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required: %w", ports.ErrConfigurationError)
	}
	logger := cfg.Logger
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error(context.Background(), err, "Failed to deliver lifecycle events", map[string]interface{}{"count": len(messages)})
			}
		},
	}
	return newKafkaSink(writer, logger), nil
}

func newKafkaSink(w messageWriter, logger ports.Logger) *KafkaSink {
	return &KafkaSink{writer: w, logger: logger, now: time.Now}
}

// Emit encodes the event and hands it to the writer. Failures are logged.
func (s *KafkaSink) Emit(ctx context.Context, event domain.Event) {
	value, err := json.Marshal(NewEnvelope(event, s.now()))
	if err != nil {
		s.logger.Error(ctx, err, "Failed to encode lifecycle event", map[string]interface{}{"event": event.EventName()})
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TradeRef(), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.EventName())},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error(ctx, err, "Failed to publish lifecycle event", map[string]interface{}{"event": event.EventName(), "tradeId": event.TradeRef()})
	}
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// FanOut forwards every event to each of its sinks in order.
type FanOut []ports.EventSink

// Emit delivers the event to all sinks.
func (f FanOut) Emit(ctx context.Context, event domain.Event) {
	for _, s := range f {
		s.Emit(ctx, event)
	}
}
