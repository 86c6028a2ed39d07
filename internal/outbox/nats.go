package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	EventsStream        = "VAULT_EVENTS"
	EventsSubjectPrefix = "vault.events"
)

// NATSPublisher publishes committed events to JetStream.
// Subjects follow the pattern: vault.events.{event_type}
// The event id is the JetStream message id, so redelivery of a batch after a
// partial failure is deduplicated by the stream.
type NATSPublisher struct {
	js jetstream.JetStream
}

func NewNATSPublisher(js jetstream.JetStream) *NATSPublisher {
	return &NATSPublisher{js: js}
}

func (p *NATSPublisher) Name() string {
	return "nats"
}

func (p *NATSPublisher) Publish(ctx context.Context, msgs []Message) error {
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", msg.Sequence, err)
		}
		subject := EventsSubjectPrefix + "." + msg.EventType
		if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msg.EventID.String())); err != nil {
			return fmt.Errorf("publish event %d: %w", msg.Sequence, err)
		}
	}
	return nil
}

// EnsureEventsStream creates the outbound events stream.
func EnsureEventsStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       EventsStream,
		Subjects:   []string{EventsSubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
