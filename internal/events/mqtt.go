package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// TaskTopic is where events for a priority are published, so a dispatch
// board can subscribe to <prefix>/tasks/urgent alone.
func TaskTopic(prefix, priority string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if priority == "" {
		priority = "unknown"
	}
	return prefix + "/tasks/" + priority
}

type mqttSender interface {
	send(ctx context.Context, topic string, payload []byte) error
	close()
}

type pahoSender struct {
	client paho.Client
}

func (s pahoSender) send(ctx context.Context, topic string, payload []byte) error {
	token := s.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s pahoSender) close() {
	s.client.Disconnect(250)
}

// MQTTPublisher pushes task events to technician devices.
type MQTTPublisher struct {
	sender mqttSender
	prefix string
	logger zerolog.Logger
}

func NewMQTTPublisher(cfg MQTTConfig, logger zerolog.Logger) (*MQTTPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "applifix-backend"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "applifix"
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error().Err(err).Msg("mqtt connection lost")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BrokerURL, err)
	}
	return &MQTTPublisher{sender: pahoSender{client: client}, prefix: cfg.TopicPrefix, logger: logger}, nil
}

func (p *MQTTPublisher) PublishTask(ctx context.Context, ev TaskEvent) error {
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
	topic := TaskTopic(p.prefix, ev.Priority)
	if err := p.sender.send(ctx, topic, data); err != nil {
		return err
	}
	p.logger.Debug().Str("task_id", ev.TaskID).Str("topic", topic).Msg("event published")
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.sender.close()
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishTask(ctx context.Context, ev TaskEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishTask(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
