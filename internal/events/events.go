package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const TypeTaskCreated = "task.created"

// TaskEvent is published after a task has been stored.
type TaskEvent struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	SessionID string    `json:"session_id,omitempty"`
	Source    string    `json:"source"`
	Priority  string    `json:"priority"`
	Tags      []string  `json:"tags,omitempty"`
	Degraded  bool      `json:"degraded"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	PublishTask(ctx context.Context, ev TaskEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes task events to a single topic keyed by task id.
type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishTask(ctx context.Context, ev TaskEvent) error {
	if ev.Type == "" {
		ev.Type = TypeTaskCreated
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.TaskID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug().Str("task_id", ev.TaskID).Str("type", ev.Type).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishTask(context.Context, TaskEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
