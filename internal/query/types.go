package query

import (
	"encoding/json"
	"time"
)

// AccountView is an account as served to API clients. Raw amounts are
// minor units rendered as decimal strings so the full uint64 range
// survives JSON; the *Display fields are scaled by the asset's decimals.
type AccountView struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Asset         string `json:"asset"`
	AssetLocation string `json:"asset_location"`
	Decimals      int32  `json:"decimals"`

	Total     uint64 `json:"total,string"`
	Available uint64 `json:"available,string"`
	Locked    uint64 `json:"locked,string"`

	TotalDisplay     string `json:"total_display"`
	AvailableDisplay string `json:"available_display"`
	LockedDisplay    string `json:"locked_display"`

	LifetimeDeposited uint64 `json:"lifetime_deposited,string"`
	LifetimeWithdrawn uint64 `json:"lifetime_withdrawn,string"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RegistryView is the privileged caller allow-list.
type RegistryView struct {
	Admin     string    `json:"admin"`
	Callers   []string  `json:"callers"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventView is one entry of the event log.
type EventView struct {
	Sequence       int64           `json:"sequence"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Subject        string          `json:"subject"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
	PublishedAt    *time.Time      `json:"published_at,omitempty"`
}

// EventPage is a page of the event log. NextAfter is the cursor for the
// following page; zero when the page was short.
type EventPage struct {
	Events    []EventView `json:"events"`
	NextAfter int64       `json:"next_after,omitempty"`
}

// IntegrityReport is the result of walking the event hash chain.
type IntegrityReport struct {
	IsHealthy     bool   `json:"is_healthy"`
	EventsChecked int64  `json:"events_checked"`
	HeadSequence  int64  `json:"head_sequence"`
	HeadHash      string `json:"head_hash"`
	BrokenAt      int64  `json:"broken_at,omitempty"`
}
