package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherKeysByTask(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: zerolog.Nop()}
	if err := p.PublishTask(context.Background(), TaskEvent{TaskID: "t-1", Priority: "urgent", Source: "chat"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "t-1" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	var ev TaskEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != TypeTaskCreated || ev.At.IsZero() || ev.Priority != "urgent" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer closed")
	}
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, logger: zerolog.Nop()}
	if err := p.PublishTask(context.Background(), TaskEvent{TaskID: "t-2"}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.PublishTask(context.Background(), TaskEvent{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}

type fakeSender struct {
	topics   []string
	payloads [][]byte
	err      error
	closed   bool
}

func (f *fakeSender) send(_ context.Context, topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSender) close() { f.closed = true }

func TestMQTTPublisherTopicPerPriority(t *testing.T) {
	s := &fakeSender{}
	p := &MQTTPublisher{sender: s, prefix: "applifix/", logger: zerolog.Nop()}
	if err := p.PublishTask(context.Background(), TaskEvent{TaskID: "t-9", Priority: "urgent"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(s.topics) != 1 || s.topics[0] != "applifix/tasks/urgent" {
		t.Fatalf("unexpected topics %v", s.topics)
	}
	var ev TaskEvent
	if err := json.Unmarshal(s.payloads[0], &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != TypeTaskCreated || ev.At.IsZero() {
		t.Fatalf("expected defaults filled, got %+v", ev)
	}
	if err := p.Close(); err != nil || !s.closed {
		t.Fatalf("expected sender closed")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	w := &fakeWriter{}
	s := &fakeSender{err: errors.New("broker down")}
	m := Multi{
		&KafkaPublisher{writer: w, logger: zerolog.Nop()},
		&MQTTPublisher{sender: s, prefix: "applifix", logger: zerolog.Nop()},
	}
	err := m.PublishTask(context.Background(), TaskEvent{TaskID: "t-1", Priority: "low"})
	if err == nil || len(w.msgs) != 1 {
		t.Fatalf("expected kafka write and joined error, got %v (%d msgs)", err, len(w.msgs))
	}
	if err := m.Close(); err != nil || !w.closed || !s.closed {
		t.Fatalf("expected every publisher closed, got %v", err)
	}
}

func TestTaskTopic(t *testing.T) {
	if got := TaskTopic("applifix", ""); got != "applifix/tasks/unknown" {
		t.Fatalf("unexpected topic %q", got)
	}
}
