package event

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an event payload for the log.
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return data, nil
}

// Decode rebuilds a typed event from its logged payload.
func Decode(et EventType, payload []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeAccountInitialized:
		evt = &AccountInitialized{}
	case EventTypeDeposit:
		evt = &Deposit{}
	case EventTypeWithdraw:
		evt = &Withdraw{}
	case EventTypeLock:
		evt = &Lock{}
	case EventTypeUnlock:
		evt = &Unlock{}
	case EventTypeTransfer:
		evt = &Transfer{}
	case EventTypeAccountClosed:
		evt = &AccountClosed{}
	case EventTypeAuthorityInitialized:
		evt = &AuthorityInitialized{}
	case EventTypeCallerAuthorized:
		evt = &CallerAuthorized{}
	case EventTypeCallerDeauthorized:
		evt = &CallerDeauthorized{}
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}

// Decode returns the typed payload carried by the envelope.
func (e *EventEnvelope) Decode() (Event, error) {
	return Decode(e.EventType, e.Payload)
}
