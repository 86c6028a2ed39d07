package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAccountInitialized
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeLock
	EventTypeUnlock
	EventTypeTransfer
	EventTypeAccountClosed
	EventTypeAuthorityInitialized
	EventTypeCallerAuthorized
	EventTypeCallerDeauthorized
)

// RegistrySubject is the subject of every registry administration event.
const RegistrySubject = "registry"

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence, starting at 1
	Sequence int64

	EventID uuid.UUID

	// Caller-supplied request key, or the event ID when none was given
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Account path or RegistrySubject
	Subject string

	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 chained over the previous hash and this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte

	// Set once the outbox relay has handed the event to the broker
	PublishedAt *time.Time
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// Subject returns the account path or RegistrySubject
	Subject() string

	// OccurredAt returns the transition timestamp
	OccurredAt() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypeAccountInitialized:
		return "AccountInitialized"
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeLock:
		return "Lock"
	case EventTypeUnlock:
		return "Unlock"
	case EventTypeTransfer:
		return "Transfer"
	case EventTypeAccountClosed:
		return "AccountClosed"
	case EventTypeAuthorityInitialized:
		return "AuthorityInitialized"
	case EventTypeCallerAuthorized:
		return "CallerAuthorized"
	case EventTypeCallerDeauthorized:
		return "CallerDeauthorized"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) EventType {
	for et := EventTypeAccountInitialized; et <= EventTypeCallerDeauthorized; et++ {
		if et.String() == s {
			return et
		}
	}
	return EventTypeUnknown
}
