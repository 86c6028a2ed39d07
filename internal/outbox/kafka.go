package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes committed events to one topic, keyed by subject so
// every account's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Name() string {
	return "kafka"
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs []Message) error {
	batch := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", msg.Sequence, err)
		}
		batch = append(batch, kafka.Message{
			Key:   []byte(msg.Subject),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "sequence", Value: []byte(strconv.FormatInt(msg.Sequence, 10))},
				{Key: "event_id", Value: []byte(msg.EventID.String())},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		return fmt.Errorf("write kafka batch: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
