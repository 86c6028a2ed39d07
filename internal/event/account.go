package event

import (
	"VaultLedger/internal/ledger"
	"time"

	"github.com/google/uuid"
)

type AccountInitialized struct {
	AccountID     uuid.UUID        `json:"account_id"`
	Owner         ledger.Identity  `json:"owner"`
	AssetKind     ledger.AssetKind `json:"asset_kind"`
	AssetLocation string           `json:"asset_location"`
	Timestamp     time.Time        `json:"timestamp"`
}

func (e *AccountInitialized) EventType() EventType {
	return EventTypeAccountInitialized
}

func (e *AccountInitialized) Subject() string {
	return ledger.AccountKey{Owner: e.Owner, Asset: e.AssetKind}.AccountPath()
}

func (e *AccountInitialized) OccurredAt() time.Time {
	return e.Timestamp
}

type AccountClosed struct {
	AccountID uuid.UUID        `json:"account_id"`
	Owner     ledger.Identity  `json:"owner"`
	AssetKind ledger.AssetKind `json:"asset_kind"`
	Timestamp time.Time        `json:"timestamp"`
}

func (e *AccountClosed) EventType() EventType {
	return EventTypeAccountClosed
}

func (e *AccountClosed) Subject() string {
	return ledger.AccountKey{Owner: e.Owner, Asset: e.AssetKind}.AccountPath()
}

func (e *AccountClosed) OccurredAt() time.Time {
	return e.Timestamp
}
