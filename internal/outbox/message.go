package outbox

import (
	"VaultLedger/internal/event"
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is the wire form of one committed event for downstream
// consumers.
type Message struct {
	Sequence       int64           `json:"sequence"`
	EventID        uuid.UUID       `json:"event_id"`
	EventType      string          `json:"event_type"`
	Subject        string          `json:"subject"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewMessage converts a logged envelope.
func NewMessage(env *event.EventEnvelope) Message {
	return Message{
		Sequence:       env.Sequence,
		EventID:        env.EventID,
		EventType:      env.EventType.String(),
		Subject:        env.Subject,
		IdempotencyKey: env.IdempotencyKey,
		Payload:        json.RawMessage(env.Payload),
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Timestamp:      env.Timestamp,
	}
}

// Publisher hands a batch of messages to a broker. A nil return means every
// message was accepted; on error the whole batch is retried.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msgs []Message) error
}
