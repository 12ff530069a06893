package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"dcp/pkg/requestcontext"
)

// KafkaPublisher delivers events to a Kafka topic keyed by subject, so all
// events for one credential land on one partition in order.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the brokers and ensures the topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	details, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list audit topic: %w", err)
	}
	if details.Has(topic) {
		return nil
	}
	if _, err := adm.CreateTopic(ctx, 3, 1, nil, topic); err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	return nil
}

// Publish buffers the event for delivery. Delivery failures are logged, not
// raised; losing an audit event must not abort the operation it records.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.log(ctx, "audit event encoding failed", event, err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SubjectID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.log(ctx, "audit event delivery failed", event, err)
		}
	})
}

func (p *KafkaPublisher) log(ctx context.Context, msg string, event Event, err error) {
	if p.logger == nil {
		return
	}
	p.logger.ErrorContext(ctx, msg,
		"event_type", event.Type,
		"subject_id", event.SubjectID,
		"error", err,
	)
}

// Close flushes buffered events and shuts the client down.
func (p *KafkaPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.log(ctx, "audit publisher closed with unflushed events", Event{}, err)
	}
	p.client.Close()
	return nil
}
